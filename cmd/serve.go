package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/algorithm"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/pipeline"
	"github.com/kozaktomas/attendance-engine/internal/session"
	"github.com/kozaktomas/attendance-engine/internal/store/mariadb"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
	"github.com/kozaktomas/attendance-engine/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the attendance engine HTTP server.
The server manages session lifecycle, accepts captured frames, and
exposes student enrollment over a JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to PORT env or 8080)")
}

// buildAdapter constructs the configured recognition algorithm adapter.
func buildAdapter(cfg *config.Config) (algorithm.Adapter, error) {
	threshold := cfg.Engine.Threshold
	if threshold <= 0 {
		threshold = cfg.Algorithms.Threshold(cfg.Engine.Algorithm)
	}
	return algorithm.New(cfg.Engine.Algorithm, algorithm.Options{
		Threshold:  threshold,
		ServiceURL: cfg.Embedding.URL,
	})
}

// usesCosineMetric reports whether the algorithm's vectors suit the HNSW
// candidate index, which searches by cosine distance.
func usesCosineMetric(algorithmID string) bool {
	switch algorithmID {
	case algorithm.MTCNN, algorithm.Facenet, algorithm.DlibCNN:
		return true
	}
	return false
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = cfg.Web.Port
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	rosterPool, err := mariadb.NewPool(cfg.Roster.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to roster database: %w", err)
	}
	defer rosterPool.Close()

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return fmt.Errorf("building algorithm adapter: %w", err)
	}
	fmt.Printf("Using algorithm %s (dim %d)\n", adapter.ID(), adapter.Dim())

	g := gallery.New(postgres.NewGalleryRepository(pool))
	if usesCosineMetric(adapter.ID()) {
		if err := g.EnableIndex(ctx, adapter.ID()); err != nil {
			fmt.Printf("Warning: failed to build candidate index: %v\n", err)
			fmt.Printf("Matching will scan the full roster slice (slower)\n")
		} else {
			fmt.Printf("Candidate index built with %d students\n", g.IndexCount(adapter.ID()))
		}
	}

	reconciler := session.NewReconciler(
		postgres.NewSessionRepository(pool),
		postgres.NewAlertRepository(pool),
		rosterPool,
	)
	processor := pipeline.NewProcessor(adapter, g, reconciler, cfg.Engine.Threshold)

	server := web.NewServer(port, processor, reconciler, g, cfg.Engine.GraceWindow)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		fmt.Printf("Received %s, shutting down...\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
