package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/vector/pkg/api/rest"
	"github.com/therealutkarshpriyadarshi/vector/pkg/api/rest/middleware"
	"github.com/therealutkarshpriyadarshi/vector/pkg/config"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		configFile  = flag.String("config", "", "path to configuration file (optional)")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "server port (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Vector Search Server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	printBanner()

	cfg := loadConfig(*configFile)
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger(observability.INFO, os.Stdout).WithField("component", "cmd.server")
	metrics := observability.NewMetrics()

	indexPath := filepath.Join(cfg.Database.DataDir, "index.zvix")
	backend := index.NewFileStorageBackendWithSync(cfg.Database.SyncWrites)
	if err := backend.Open(indexPath, false); err != nil {
		log.Fatalf("Failed to open storage path %s: %v", indexPath, err)
	}

	streamer := index.NewStreamer(logger, metrics)
	meta := index.Meta{
		DataType:  rabitq.FP32,
		Dimension: cfg.HNSW.Dimensions,
		Metric:    rabitq.SquaredEuclidean,
	}
	params := paramsFromConfig(cfg)
	if err := streamer.Init(meta, params); err != nil {
		log.Fatalf("Failed to init streamer: %v", err)
	}

	if _, err := backend.ReadSegment(1); err != nil {
		log.Fatalf("No built index found at %s — run `vector-cli build` first: %v", indexPath, err)
	}
	if err := streamer.OpenFromStorage(backend); err != nil {
		log.Fatalf("Failed to open index from %s: %v", indexPath, err)
	}
	log.Printf("Opened index at %s (checkpoint=%q)", indexPath, streamer.Checkpoint())

	printStartupInfo(cfg, indexPath)

	restConfig := rest.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSEnabled: cfg.REST.CORSEnabled,
		CORSOrigins: cfg.REST.CORSOrigins,
		Auth: middleware.AuthConfig{
			Enabled:     cfg.REST.AuthEnabled,
			JWTSecret:   cfg.REST.JWTSecret,
			PublicPaths: cfg.REST.PublicPaths,
			AdminPaths:  cfg.REST.AdminPaths,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        cfg.REST.RateLimitEnabled,
			RequestsPerSec: cfg.REST.RateLimitPerSec,
			Burst:          cfg.REST.RateLimitBurst,
			PerIP:          cfg.REST.RateLimitPerIP,
			PerUser:        cfg.REST.RateLimitPerUser,
			GlobalLimit:    cfg.REST.RateLimitGlobal,
		},
	}

	server, err := rest.NewServer(restConfig, streamer, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to create REST server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		log.Println("Starting REST API server...")
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("REST server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	log.Println("Server is ready. Press Ctrl+C to stop.")
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping REST server: %v", err)
	}
	if err := streamer.FlushToStorage(backend, fmt.Sprintf("shutdown-%d", time.Now().Unix())); err != nil {
		log.Printf("Error flushing index on shutdown: %v", err)
	}

	log.Println("Server stopped. Goodbye!")
}

// paramsFromConfig adapts the flat environment-driven config.Config into
// K5's Params. cmd/cli does not read config.Config: its offline build path
// takes these knobs from its own command-line flags, whose defaults differ
// from the ones here (M is 32 there, 16 here).
func paramsFromConfig(cfg *config.Config) index.Params {
	params := index.DefaultParams()
	params.HNSW.M = cfg.HNSW.M
	params.HNSW.EfConstruction = cfg.HNSW.EfConstruction
	params.HNSW.DocsHardLimit = cfg.Streamer.DocsHardLimit
	params.HNSW.DocsSoftLimit = cfg.Streamer.DocsSoftLimit
	params.HNSW.BruteForceThreshold = cfg.Streamer.BruteForceThreshold
	params.HNSW.MaxScanRatio = cfg.Streamer.MaxScanRatio
	params.HNSW.MinScanLimit = cfg.Streamer.MinScanLimit
	params.HNSW.MaxScanLimit = cfg.Streamer.MaxScanLimit
	params.HNSW.BloomFilterEnable = cfg.Streamer.BloomFilterEnable
	params.HNSW.BloomFilterNegativeProb = cfg.Streamer.BloomFilterNegativeProb
	params.Quantizer.NumClusters = cfg.Quantizer.NumClusters
	params.Quantizer.TotalBits = cfg.Quantizer.TotalBits
	params.Quantizer.SampleCount = cfg.Quantizer.SampleCount
	params.Quantizer.RotatorKind = rabitq.ParseRotatorKind(cfg.Quantizer.RotatorKind)
	params.MemoryQuotaBytes = cfg.Streamer.MemoryQuotaBytes
	params.CheckCRC = cfg.Streamer.CheckCRCEnable
	return params
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		log.Printf("Warning: config file support not yet implemented, using environment variables")
	}
	return config.LoadFromEnv()
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   __     __        _              ____  ____              ║
║   \ \   / /__  ___| |_ ___  _ __ |  _ \| __ )             ║
║    \ \ / / _ \/ __| __/ _ \| '__|| | | |  _ \             ║
║     \ V /  __/ (__| || (_) | |   | |_| | |_) |            ║
║      \_/ \___|\___|\__\___/|_|   |____/|____/             ║
║                                                           ║
║   HNSW + RaBitQ Approximate Nearest Neighbor Search       ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("Version: %s (commit: %s)\n\n", version, commit)
}

func printStartupInfo(cfg *config.Config, indexPath string) {
	fmt.Println("\n╔════════════════════════════════════════════════════════╗")
	fmt.Println("║               REST API Configuration                   ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Address:          %-35s ║\n", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	fmt.Printf("║ Auth Enabled:     %-35v ║\n", cfg.REST.AuthEnabled)
	fmt.Printf("║ CORS Enabled:     %-35v ║\n", cfg.REST.CORSEnabled)
	fmt.Printf("║ Rate Limiting:    %-35v ║\n", cfg.REST.RateLimitEnabled)
	if cfg.REST.RateLimitEnabled {
		fmt.Printf("║ Rate:             %-35s ║\n", fmt.Sprintf("%.1f req/s (burst: %d)", cfg.REST.RateLimitPerSec, cfg.REST.RateLimitBurst))
	}
	fmt.Printf("║ API Docs:         %-35s ║\n", fmt.Sprintf("http://%s:%d/docs", cfg.Server.Host, cfg.Server.Port))
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               HNSW Configuration                       ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ M:                %-35d ║\n", cfg.HNSW.M)
	fmt.Printf("║ efConstruction:   %-35d ║\n", cfg.HNSW.EfConstruction)
	fmt.Printf("║ efSearch:         %-35d ║\n", cfg.HNSW.DefaultEfSearch)
	fmt.Printf("║ Dimensions:       %-35d ║\n", cfg.HNSW.Dimensions)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               Storage Configuration                    ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Index path:       %-35s ║\n", indexPath)
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func showUsage() {
	fmt.Println("Vector Search Server - HNSW + RaBitQ approximate nearest neighbor search")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vector-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             Show this help message")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -config PATH      Ignored; configuration is read from environment variables")
	fmt.Println("  -host HOST        Server host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        Server port (default: 50051)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  VECTOR_HOST                    Server host")
	fmt.Println("  VECTOR_PORT                    Server port")
	fmt.Println("  VECTOR_REQUEST_TIMEOUT         Request timeout (e.g., 30s)")
	fmt.Println("  VECTOR_REST_AUTH_ENABLED       Enable JWT auth (true/false)")
	fmt.Println("  VECTOR_REST_JWT_SECRET         JWT signing secret")
	fmt.Println("  VECTOR_REST_RATE_LIMIT_ENABLED Enable rate limiting (true/false)")
	fmt.Println("  VECTOR_HNSW_M                  HNSW M parameter")
	fmt.Println("  VECTOR_HNSW_EF_CONSTRUCTION    HNSW efConstruction")
	fmt.Println("  VECTOR_DIMENSIONS              Vector dimensions")
	fmt.Println("  VECTOR_DATA_DIR                Data directory path (index.zvix lives here)")
	fmt.Println()
	fmt.Println("The server expects a previously built index at <data-dir>/index.zvix.")
	fmt.Println("Use `vector-cli build` to produce one before starting the server.")
	fmt.Println()
}
