package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig
	REST      RESTConfig
	HNSW      HNSWConfig
	Streamer  StreamerConfig
	Quantizer QuantizerConfig
	Database  DatabaseConfig
}

// RESTConfig holds the HTTP front end's own options: the wire surface is a
// single REST API over an in-process K5 Streamer (ServerConfig.Host/Port is
// the listen address), so this struct only carries the add-ons layered on
// top — CORS, JWT auth and rate limiting.
type RESTConfig struct {
	CORSEnabled      bool
	CORSOrigins      []string
	AuthEnabled      bool
	JWTSecret        string
	PublicPaths      []string
	AdminPaths       []string
	RateLimitEnabled bool
	RateLimitPerSec  float64
	RateLimitBurst   int
	RateLimitPerIP   bool
	RateLimitPerUser bool
	RateLimitGlobal  bool
}

// StreamerConfig holds the K5 Streamer options of spec.md §6, layered on
// top of HNSWConfig's builder options.
type StreamerConfig struct {
	DocsHardLimit           uint64  // 0 = unlimited
	DocsSoftLimit           uint64  // 0 = 0.9 * hard limit
	MaxScanRatio            float64 // default 1.0
	MinScanLimit            int     // default 0
	MaxScanLimit            int     // 0 = unlimited
	BloomFilterEnable       bool    // default false
	BloomFilterNegativeProb float64 // default 0.001
	BruteForceThreshold     uint64  // default 0
	CheckCRCEnable          bool    // default false
	MemoryQuotaBytes        uint64  // 0 = unlimited
}

// QuantizerConfig holds the K2 RaBitQ training options of spec.md §6.
type QuantizerConfig struct {
	NumClusters int    // default 16
	TotalBits   int    // default 7, in [1,9]
	SampleCount int    // default 200000
	RotatorKind string // "kac" or "fht"
}

// ServerConfig holds the HTTP listen address and connection tuning shared
// by the REST front end.
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // Server port (default: 50051)
	MaxConnections  int           // Max concurrent connections
	RequestTimeout  time.Duration // Request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
	EnableTLS       bool          // Enable TLS
	CertFile        string        // TLS certificate file
	KeyFile         string        // TLS key file
}

// HNSWConfig holds HNSW index configuration
type HNSWConfig struct {
	M              int // Number of connections per layer (default: 16)
	EfConstruction int // Construction time accuracy (default: 200)
	DefaultEfSearch int // Default search time accuracy (default: 50)
	Dimensions     int // Vector dimensions (default: 768)
}

// DatabaseConfig holds storage configuration for the FileStorageBackend.
type DatabaseConfig struct {
	DataDir    string // Data directory path
	SyncWrites bool   // fsync the temp file before the commit rename (default: true)
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableTLS:       false,
		},
		REST: RESTConfig{
			CORSEnabled:      true,
			CORSOrigins:      []string{"*"},
			AuthEnabled:      false,
			PublicPaths:      []string{"/v1/health", "/docs", "/docs/openapi.yaml"},
			AdminPaths:       []string{},
			RateLimitEnabled: false,
			RateLimitPerSec:  100,
			RateLimitBurst:   200,
			RateLimitPerIP:   true,
		},
		HNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			DefaultEfSearch: 50,
			Dimensions:     768,
		},
		Streamer: StreamerConfig{
			DocsHardLimit:           0,
			DocsSoftLimit:           0,
			MaxScanRatio:            1.0,
			MinScanLimit:            0,
			MaxScanLimit:            0,
			BloomFilterEnable:       false,
			BloomFilterNegativeProb: 0.001,
			BruteForceThreshold:     0,
			CheckCRCEnable:          false,
			MemoryQuotaBytes:        0,
		},
		Quantizer: QuantizerConfig{
			NumClusters: 16,
			TotalBits:   7,
			SampleCount: 200000,
			RotatorKind: "kac",
		},
		Database: DatabaseConfig{
			DataDir:    "./data",
			SyncWrites: true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()

	// Server configuration
	if host := os.Getenv("VECTOR_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("VECTOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if maxConn := os.Getenv("VECTOR_MAX_CONNECTIONS"); maxConn != "" {
		if mc, err := strconv.Atoi(maxConn); err == nil {
			cfg.Server.MaxConnections = mc
		}
	}
	if timeout := os.Getenv("VECTOR_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("VECTOR_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("VECTOR_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("VECTOR_TLS_KEY")
	}

	// REST configuration
	if v := os.Getenv("VECTOR_REST_CORS_ENABLED"); v != "" {
		cfg.REST.CORSEnabled = v == "true"
	}
	if v := os.Getenv("VECTOR_REST_AUTH_ENABLED"); v == "true" {
		cfg.REST.AuthEnabled = true
	}
	if v := os.Getenv("VECTOR_REST_JWT_SECRET"); v != "" {
		cfg.REST.JWTSecret = v
	}
	if v := os.Getenv("VECTOR_REST_RATE_LIMIT_ENABLED"); v == "true" {
		cfg.REST.RateLimitEnabled = true
	}
	if v := os.Getenv("VECTOR_REST_RATE_LIMIT_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.REST.RateLimitPerSec = f
		}
	}
	if v := os.Getenv("VECTOR_REST_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.REST.RateLimitBurst = n
		}
	}

	// HNSW configuration
	if m := os.Getenv("VECTOR_HNSW_M"); m != "" {
		if mVal, err := strconv.Atoi(m); err == nil {
			cfg.HNSW.M = mVal
		}
	}
	if ef := os.Getenv("VECTOR_HNSW_EF_CONSTRUCTION"); ef != "" {
		if efVal, err := strconv.Atoi(ef); err == nil {
			cfg.HNSW.EfConstruction = efVal
		}
	}
	if dims := os.Getenv("VECTOR_DIMENSIONS"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil {
			cfg.HNSW.Dimensions = d
		}
	}

	// Streamer configuration
	if v := os.Getenv("VECTOR_DOCS_HARD_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Streamer.DocsHardLimit = n
		}
	}
	if v := os.Getenv("VECTOR_DOCS_SOFT_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Streamer.DocsSoftLimit = n
		}
	}
	if v := os.Getenv("VECTOR_BLOOMFILTER_ENABLE"); v == "true" {
		cfg.Streamer.BloomFilterEnable = true
	}
	if v := os.Getenv("VECTOR_BRUTEFORCE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Streamer.BruteForceThreshold = n
		}
	}
	if v := os.Getenv("VECTOR_CHECK_CRC_ENABLE"); v == "true" {
		cfg.Streamer.CheckCRCEnable = true
	}
	if v := os.Getenv("VECTOR_MEMORY_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Streamer.MemoryQuotaBytes = n
		}
	}

	// Quantizer configuration
	if v := os.Getenv("VECTOR_NUM_CLUSTERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quantizer.NumClusters = n
		}
	}
	if v := os.Getenv("VECTOR_TOTAL_BITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quantizer.TotalBits = n
		}
	}
	if v := os.Getenv("VECTOR_ROTATOR_KIND"); v != "" {
		cfg.Quantizer.RotatorKind = v
	}

	// Database configuration
	if dataDir := os.Getenv("VECTOR_DATA_DIR"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if sync := os.Getenv("VECTOR_SYNC_WRITES"); sync != "" {
		cfg.Database.SyncWrites = sync != "false"
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d (must be > 0)", c.Server.MaxConnections)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	// HNSW validation
	if c.HNSW.M < 2 || c.HNSW.M > 100 {
		return fmt.Errorf("invalid HNSW M: %d (recommended: 16)", c.HNSW.M)
	}
	if c.HNSW.EfConstruction < 10 {
		return fmt.Errorf("invalid HNSW efConstruction: %d (must be >= 10)", c.HNSW.EfConstruction)
	}
	if c.HNSW.Dimensions < 1 {
		return fmt.Errorf("invalid dimensions: %d (must be > 0)", c.HNSW.Dimensions)
	}

	// REST validation
	if c.REST.AuthEnabled && c.REST.JWTSecret == "" {
		return fmt.Errorf("REST auth enabled but no JWT secret configured")
	}

	// Quantizer validation
	if c.Quantizer.NumClusters < 1 || c.Quantizer.NumClusters > 256 {
		return fmt.Errorf("invalid quantizer num_clusters: %d (must be 1-256)", c.Quantizer.NumClusters)
	}
	if c.Quantizer.TotalBits < 1 || c.Quantizer.TotalBits > 9 {
		return fmt.Errorf("invalid quantizer total_bits: %d (must be 1-9)", c.Quantizer.TotalBits)
	}
	if c.Quantizer.NumClusters*c.Quantizer.TotalBits > 511 {
		return fmt.Errorf("quantizer num_clusters * total_bits exceeds the implementation cap")
	}

	// Database validation
	if c.Database.DataDir == "" {
		return fmt.Errorf("data directory not specified")
	}

	return nil
}

// Address returns the server address (host:port)
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
