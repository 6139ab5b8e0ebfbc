package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance-engine",
	Short: "Face-recognition attendance engine",
	Long: `Attendance Engine matches captured face images against per-student
reference vectors and reconciles the verdicts into attendance sessions.
It serves an HTTP API for session lifecycle and frame ingestion, and
ships CLI commands for enrollment and gallery maintenance.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
