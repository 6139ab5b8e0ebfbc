package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
	"github.com/kozaktomas/attendance-engine/internal/session"
	"github.com/kozaktomas/attendance-engine/internal/store/mariadb"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
)

var processCmd = &cobra.Command{
	Use:   "process <dir>",
	Short: "Run a directory of captured frames through a new attendance session",
	Long: `Process captured frames after the fact. Starts a session for the
class, runs every image in the directory through the recognition pipeline
with bounded concurrency, and completes the session. File modification
times serve as capture timestamps, the earliest one as session start.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("class", "", "Class id whose roster the session covers (required)")
	processCmd.Flags().String("session", "", "Session id (defaults to a generated UUID)")
	processCmd.Flags().Duration("grace", 0, "Grace window override (defaults to ATTENDANCE_GRACE_WINDOW)")
	processCmd.Flags().Bool("keep-open", false, "Leave the session active instead of completing it")
}

// loadFrames reads every image in the directory as a frame, capture time
// taken from the file modification time.
func loadFrames(dir string) ([]pipeline.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var frames []pipeline.Frame
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		image, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		frames = append(frames, pipeline.Frame{Image: image, CapturedAt: info.ModTime().UTC()})
	}
	return frames, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	classID := mustGetString(cmd, "class")
	if classID == "" {
		return fmt.Errorf("--class is required")
	}

	frames, err := loadFrames(args[0])
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no image files found in %s", args[0])
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	rosterPool, err := mariadb.NewPool(cfg.Roster.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to roster database: %w", err)
	}
	defer rosterPool.Close()

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return fmt.Errorf("building algorithm adapter: %w", err)
	}

	g := gallery.New(postgres.NewGalleryRepository(pool))
	if usesCosineMetric(adapter.ID()) {
		if err := g.EnableIndex(ctx, adapter.ID()); err != nil {
			fmt.Printf("Warning: failed to build candidate index: %v\n", err)
		}
	}

	reconciler := session.NewReconciler(
		postgres.NewSessionRepository(pool),
		postgres.NewAlertRepository(pool),
		rosterPool,
	)
	processor := pipeline.NewProcessor(adapter, g, reconciler, cfg.Engine.Threshold)

	sessionID := mustGetString(cmd, "session")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	grace := mustGetDuration(cmd, "grace")
	if grace <= 0 {
		grace = cfg.Engine.GraceWindow
	}

	startedAt := frames[0].CapturedAt
	for _, f := range frames[1:] {
		if f.CapturedAt.Before(startedAt) {
			startedAt = f.CapturedAt
		}
	}

	snap, err := reconciler.Start(ctx, sessionID, classID, startedAt, grace)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s started for class %s (%d students, grace %s)\n",
		sessionID, classID, snap.Counts.Total, grace)

	batch, err := processor.ProcessFrames(ctx, sessionID, frames, pipeline.BatchOptions{
		Concurrency: cfg.Engine.Concurrency,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d/%d frames, %d matches\n", batch.ProcessedCount, len(frames), batch.MatchedCount)
	for _, frameErr := range batch.Errors {
		fmt.Printf("  failed: %v\n", frameErr)
	}

	if mustGetBool(cmd, "keep-open") {
		fmt.Printf("Session %s left active\n", sessionID)
	} else {
		counts, err := reconciler.Complete(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("completing session: %w", err)
		}
		fmt.Printf("Session completed: %d present, %d late, %d absent, %d excused\n",
			counts.Present, counts.Late, counts.Absent, counts.Excused)
	}

	if len(batch.Errors) > 0 {
		return fmt.Errorf("%d frames failed", len(batch.Errors))
	}
	return nil
}
