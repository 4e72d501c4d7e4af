package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Blob storage backends.
const (
	BlobBackendDisk  = "disk"
	BlobBackendMinIO = "minio"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort    string
	ServiceName    string
	MaxUploadBytes int64

	// Logging
	LogLevel  string
	LogFormat string

	// Blob storage
	BlobBackend string
	FolderPath  string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool
	MinIOPrefix     string

	// TiDB configuration
	TiDBHost      string
	TiDBPort      string
	TiDBUser      string
	TiDBPassword  string
	TiDBDatabase  string
	RunMigrations bool

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Auth
	SessionTTL time.Duration
	BcryptCost int

	// Worker
	WorkerConcurrency int
	JobMaxAttempts    int

	// Jaeger configuration
	TracingEnabled bool
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		// Service defaults
		ServicePort:    getEnv("SERVICE_PORT", "5000"),
		ServiceName:    getEnv("SERVICE_NAME", "files-manager"),
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		BlobBackend: getEnv("BLOB_BACKEND", BlobBackendDisk),
		FolderPath:  getEnv("FOLDER_PATH", "/tmp/files_manager"),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "files-manager"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),
		MinIOPrefix:     getEnv("MINIO_PREFIX", ""),

		// TiDB defaults
		TiDBHost:      getEnv("TIDB_HOST", "localhost"),
		TiDBPort:      getEnv("TIDB_PORT", "4000"),
		TiDBUser:      getEnv("TIDB_USER", "root"),
		TiDBPassword:  getEnv("TIDB_PASSWORD", ""),
		TiDBDatabase:  getEnv("TIDB_DATABASE", "files_manager"),
		RunMigrations: getEnvAsBool("RUN_MIGRATIONS", true),

		// Redis defaults
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		BcryptCost: getEnvAsInt("BCRYPT_COST", 10),

		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		JobMaxAttempts:    getEnvAsInt("JOB_MAX_ATTEMPTS", 3),

		// Jaeger defaults
		TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "localhost:4318"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case BlobBackendDisk:
		if c.FolderPath == "" {
			return fmt.Errorf("FOLDER_PATH must not be empty")
		}
	case BlobBackendMinIO:
		if c.MinIOBucketName == "" {
			return fmt.Errorf("MINIO_BUCKET_NAME must not be empty")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", c.JobMaxAttempts)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
