package cmd

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/algorithm"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/encoding"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and maintain the reference vector gallery",
}

var galleryHistoryCmd = &cobra.Command{
	Use:   "history <studentID>",
	Short: "Show a student's enrollment history",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryHistory,
}

var galleryDeactivateCmd = &cobra.Command{
	Use:   "deactivate <studentID> <algorithmID>",
	Short: "Retire a student's active reference vector",
	Args:  cobra.ExactArgs(2),
	RunE:  runGalleryDeactivate,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export <algorithmID>",
	Short: "Export active reference vectors in portable text form",
	Long: `Export every active reference vector for an algorithm, one line per
student: "<studentID> <algorithm>:v1:<payload>". The text form is stable
across versions and can be re-imported into another deployment.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryExport,
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import reference vectors exported with 'gallery export'",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryImport,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryHistoryCmd)
	galleryCmd.AddCommand(galleryDeactivateCmd)
	galleryCmd.AddCommand(galleryExportCmd)
	galleryCmd.AddCommand(galleryImportCmd)
}

func openGallery(cfg *config.Config) (*gallery.Gallery, func(), error) {
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return gallery.New(postgres.NewGalleryRepository(pool)), func() { pool.Close() }, nil
}

func runGalleryHistory(cmd *cobra.Command, args []string) error {
	g, cleanup, err := openGallery(config.Load())
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := g.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No gallery entries for %s\n", args[0])
		return nil
	}

	for _, e := range entries {
		state := "retired"
		if e.Active {
			state = "active"
		}
		fmt.Printf("%s  %-12s %-7s dim=%-5d threshold=%.2f  %s\n",
			e.ID, e.AlgorithmID, state, len(e.Vector), e.Threshold,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	g, cleanup, err := openGallery(config.Load())
	if err != nil {
		return err
	}
	defer cleanup()

	algorithmID := args[0]
	vectors, err := g.ActiveVectors(cmd.Context(), nil, algorithmID)
	if err != nil {
		return err
	}

	students := make([]string, 0, len(vectors))
	for id := range vectors {
		students = append(students, id)
	}
	slices.Sort(students)

	for _, id := range students {
		fmt.Printf("%s %s\n", id, encoding.Encode(algorithmID, vectors[id]))
	}
	return nil
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	g, cleanup, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening export file: %w", err)
	}
	defer file.Close()

	var imported int
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		studentID, encoded, ok := strings.Cut(line, " ")
		if !ok {
			return fmt.Errorf("malformed line %q: expected \"<studentID> <encoded>\"", line)
		}

		algorithmID, vector, err := encoding.Decode(encoded)
		if err != nil {
			return fmt.Errorf("student %s: %w", studentID, err)
		}

		// The codec does not know dimensions; validate against the adapter.
		adapter, err := algorithm.New(algorithmID, algorithm.Options{})
		if err != nil {
			return fmt.Errorf("student %s: %w", studentID, err)
		}
		if len(vector) != adapter.Dim() {
			return fmt.Errorf("student %s: %w: got %d, want %d",
				studentID, algorithm.ErrDimensionMismatch, len(vector), adapter.Dim())
		}

		threshold := cfg.Algorithms.Threshold(algorithmID)
		if threshold <= 0 {
			threshold = adapter.DefaultThreshold()
		}
		if _, err := g.Enroll(cmd.Context(), studentID, algorithmID, vector, threshold); err != nil {
			return err
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading export file: %w", err)
	}

	fmt.Printf("Imported %d reference vectors\n", imported)
	return nil
}

func runGalleryDeactivate(cmd *cobra.Command, args []string) error {
	g, cleanup, err := openGallery(config.Load())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := g.Deactivate(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Deactivated %s/%s\n", args[0], args[1])
	return nil
}
