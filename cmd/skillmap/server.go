package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/skillmap/internal/api"
	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/config"
	"github.com/kalambet/skillmap/internal/engine"
	"github.com/kalambet/skillmap/internal/ingest"
	"github.com/kalambet/skillmap/internal/kb"
	"github.com/kalambet/skillmap/internal/profile"
	"github.com/kalambet/skillmap/internal/progress"
	"github.com/kalambet/skillmap/internal/retrieval"
	"github.com/kalambet/skillmap/internal/roadmap"
	"github.com/kalambet/skillmap/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the skillmap server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running skillmap server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show skillmap system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "skillmap.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// catalogPaths resolves the catalog file locations, defaulting to
// subpaths of the data directory when unset.
func catalogPaths(cfg config.Config) (catalogPath, roadmapsDir, docsDir string) {
	catalogPath = cfg.Catalog.CatalogPath
	if catalogPath == "" {
		catalogPath = filepath.Join(cfg.Storage.DataDir, "catalog.json")
	}
	roadmapsDir = cfg.Catalog.RoadmapsDir
	if roadmapsDir == "" {
		roadmapsDir = filepath.Join(cfg.Storage.DataDir, "roadmaps")
	}
	docsDir = cfg.Catalog.DocsDir
	if docsDir == "" {
		docsDir = filepath.Join(cfg.Storage.DataDir, "docs")
	}
	return catalogPath, roadmapsDir, docsDir
}

// runtimeRetriever adapts the lazy retrieval runtime to the mapper's
// Retriever interface.
type runtimeRetriever struct {
	rt *retrieval.Runtime
}

func (r runtimeRetriever) Score(ctx context.Context, query string, topK int, threshold float64) ([]retrieval.Hit, error) {
	comps, err := r.rt.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return comps.Scorer.Score(ctx, query, topK, threshold)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "skillmap version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("skillmap is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("skillmap is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check inference engine readiness.
	eng := engine.New(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Load the course catalog and roadmap definitions.
	catalogPath, roadmapsDir, docsDir := catalogPaths(cfg)
	cat, err := catalog.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	slog.Info("catalog loaded", "courses", cat.Len(), "path", catalogPath)
	roadmaps := catalog.NewRoadmapLoader(roadmapsDir)

	// Knowledge base plumbing.
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel, cfg.Ollama.EmbedParallel)
	kbStore := kb.NewStore(store.DB())
	builder := ingest.NewBuilder(cat, docsDir, embedder, kbStore, slog.Default())

	// The runtime builds the knowledge base on first use when the
	// snapshot is empty, so a fresh install serves its first retrieval
	// without a manual kb build.
	runtime := retrieval.NewRuntime(func(initCtx context.Context) (*retrieval.Components, error) {
		count, err := kbStore.Count()
		if err != nil {
			return nil, fmt.Errorf("checking knowledge base: %w", err)
		}
		if count == 0 {
			slog.Info("knowledge base empty, building")
			if count, err = builder.Build(initCtx); err != nil {
				return nil, fmt.Errorf("building knowledge base: %w", err)
			}
		}
		slog.Info("knowledge base ready", "records", count)
		return &retrieval.Components{
			Scorer:   retrieval.NewScorer(embedder, kbStore),
			Store:    kbStore,
			Catalog:  cat,
			Roadmaps: roadmaps,
		}, nil
	})

	mapper := roadmap.NewMapper(
		runtimeRetriever{rt: runtime},
		cat,
		roadmap.NewStoreCache(store, slog.Default()),
		slog.Default(),
	)
	evaluator := progress.NewEvaluator(cfg.Progress.Policy, progress.Thresholds{
		Advanced:     cfg.Progress.AdvancedThreshold,
		Intermediate: cfg.Progress.IntermediateThreshold,
		Beginner:     cfg.Progress.BeginnerThreshold,
	}, cat)
	profiles := profile.NewManager(store)

	appHandler := api.NewAppHandler(api.AppDeps{
		Runtime:   runtime,
		Store:     store,
		Profiles:  profiles,
		Mapper:    mapper,
		Roadmaps:  roadmaps,
		Evaluator: evaluator,
		Rebuild:   builder.Build,
		Token:     cfg.API.Token,
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start the periodic rebuild worker.
	worker := ingest.NewWorker(builder, cfg.Catalog.Interval())
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Runtime:   runtime,
		Mapper:    mapper,
		Roadmaps:  roadmaps,
		Evaluator: evaluator,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "skillmap listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("skillmap is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop skillmap (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to skillmap (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	serverUp := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			serverUp = true
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Progress policy", "%s", cfg.Progress.Policy)

	// Show knowledge base size if the server is running.
	if serverUp {
		if c, err := newAPIClient(); err == nil {
			if kbResp, err := c.get("/kb/status"); err == nil {
				var kbStatus struct {
					Ready   bool `json:"ready"`
					Records int  `json:"records"`
				}
				if decodeJSON(kbResp, &kbStatus) == nil {
					if kbStatus.Ready {
						printStatus("Knowledge base", "%d records", kbStatus.Records)
					} else {
						printStatus("Knowledge base", "not built yet")
					}
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
