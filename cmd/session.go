package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect persisted attendance sessions",
}

var sessionRecordsCmd = &cobra.Command{
	Use:   "records <sessionID>",
	Short: "Show the persisted attendance records of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRecords,
}

var sessionAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List undelivered absence alert intents",
	RunE:  runSessionAlerts,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionRecordsCmd)
	sessionCmd.AddCommand(sessionAlertsCmd)

	sessionAlertsCmd.Flags().Int("limit", 50, "Maximum number of intents to list")
}

func runSessionRecords(cmd *cobra.Command, args []string) error {
	pool, err := postgres.NewPool(&config.Load().Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	records, err := postgres.NewSessionRepository(pool).LoadRecords(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No records for session %s\n", args[0])
		return nil
	}

	for _, r := range records {
		checkIn := "-"
		if !r.CheckInTime.IsZero() {
			checkIn = r.CheckInTime.Format("15:04:05")
		}
		fmt.Printf("%-12s %-8s method=%-16s algorithm=%-12s confidence=%.2f check-in=%s\n",
			r.StudentID, r.Status, r.Method, r.AlgorithmID, r.Confidence, checkIn)
	}
	return nil
}

func runSessionAlerts(cmd *cobra.Command, args []string) error {
	pool, err := postgres.NewPool(&config.Load().Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	intents, err := postgres.NewAlertRepository(pool).UndeliveredAlerts(cmd.Context(), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if len(intents) == 0 {
		fmt.Println("No undelivered alerts")
		return nil
	}

	for _, intent := range intents {
		fmt.Printf("%-12s session=%-12s type=%-8s %s\n",
			intent.StudentID, intent.SessionID, intent.Type, intent.Reason)
	}
	return nil
}
