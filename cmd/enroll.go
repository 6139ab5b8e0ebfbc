package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
	"github.com/kozaktomas/attendance-engine/internal/store/mariadb"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <path>",
	Short: "Enroll student reference faces from image files",
	Long: `Enroll reference face vectors into the gallery.

With a single image file and --student (or --name, resolved against the
student information system), enrolls that one student. With a directory,
enrolls every image in it, taking the student id from the file name
(e.g. s1042.jpg enrolls student s1042).`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("student", "", "Student id (for a single image file)")
	enrollCmd.Flags().String("name", "", "Student display name, looked up in the student information system")
	enrollCmd.Flags().Float64("threshold", 0, "Confidence threshold override for the new entries")
}

// resolveStudentName maps a display name to a student id through the SIS
// directory. Diacritics and case differences are tolerated by the lookup.
func resolveStudentName(ctx context.Context, cfg *config.Config, name string) (string, error) {
	pool, err := mariadb.NewPool(cfg.Roster.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("connecting to roster database: %w", err)
	}
	defer pool.Close()

	student, err := pool.FindStudentByName(ctx, name)
	if err != nil {
		return "", err
	}
	if student == nil {
		return "", fmt.Errorf("no student named %q in the student information system", name)
	}
	return student.ID, nil
}

// newEnrollProcessor builds a processor wired to the gallery only.
// Enrollment never touches sessions, so no reconciler is needed.
func newEnrollProcessor(cfg *config.Config, threshold float64) (*pipeline.Processor, func(), error) {
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("building algorithm adapter: %w", err)
	}

	g := gallery.New(postgres.NewGalleryRepository(pool))
	processor := pipeline.NewProcessor(adapter, g, nil, threshold)
	return processor, func() { pool.Close() }, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	processor, cleanup, err := newEnrollProcessor(cfg, mustGetFloat64(cmd, "threshold"))
	if err != nil {
		return err
	}
	defer cleanup()

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if !info.IsDir() {
		student := mustGetString(cmd, "student")
		if student == "" {
			if name := mustGetString(cmd, "name"); name != "" {
				if student, err = resolveStudentName(ctx, cfg, name); err != nil {
					return err
				}
			}
		}
		if student == "" {
			return fmt.Errorf("--student or --name is required when enrolling a single image")
		}

		image, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		entry, err := processor.EnrollStudent(ctx, student, image)
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled %s (%s, dim %d)\n", entry.StudentID, entry.AlgorithmID, len(entry.Vector))
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isImageFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", path)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling students"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	var enrolled int
	var failures []string
	for _, name := range files {
		student := strings.TrimSuffix(name, filepath.Ext(name))

		image, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			bar.Add(1)
			continue
		}

		if _, err := processor.EnrollStudent(ctx, student, image); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			bar.Add(1)
			continue
		}
		enrolled++
		bar.Add(1)
	}

	fmt.Printf("\nEnrolled %d/%d students\n", enrolled, len(files))
	for _, f := range failures {
		fmt.Printf("  failed: %s\n", f)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d enrollments failed", len(failures))
	}
	return nil
}
