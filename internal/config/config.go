package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations and ints
// for time windows and limits.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	// Object storage (S3-compatible).
	StorageEndpoint  string        // host:port of the object store
	StorageAccessKey string        // access key id
	StorageSecretKey string        // secret access key
	StorageBucket    string        // bucket holding material files
	StorageUseSSL    bool          // connect with TLS
	StorageTimeout   time.Duration // per-attempt timeout for storage calls
	SignedURLTTL     time.Duration // lifetime of presigned download URLs

	// Material metadata cache.
	MaterialCacheTTL time.Duration // staleness bound for slug lookups

	// Access-endpoint rate limiting (per user, sliding window).
	RateLimitEnabled bool
	RateLimitMax     int           // requests allowed per window
	RateLimitWindow  time.Duration // window length

	// Analytics aggregator.
	AggregateInterval  time.Duration // tick between drain cycles
	AggregateBatchSize int           // max events popped per cycle
	AggregateTimeout   time.Duration // wall-clock bound on one cycle

	TokenCleanupInterval time.Duration // sweep cadence for expired refresh tokens

	AMQPURL string // RabbitMQ URL for abuse alerts (optional)
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		StorageEndpoint:  must("STORAGE_ENDPOINT"),
		StorageAccessKey: must("STORAGE_ACCESS_KEY"),
		StorageSecretKey: must("STORAGE_SECRET_KEY"),
		StorageBucket:    must("STORAGE_BUCKET"),
		StorageUseSSL:    envBool("STORAGE_USE_SSL", false),
		StorageTimeout:   envDur("STORAGE_TIMEOUT", 5*time.Second),
		SignedURLTTL:     envDur("SIGNED_URL_TTL", 2*time.Minute),

		MaterialCacheTTL: envDur("MATERIAL_CACHE_TTL", 30*time.Second),

		RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
		RateLimitMax:     envInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow:  envDur("RATE_LIMIT_WINDOW", 5*time.Minute),

		AggregateInterval:  envDur("AGGREGATE_INTERVAL", time.Minute),
		AggregateBatchSize: envInt("AGGREGATE_BATCH_SIZE", 1000),
		AggregateTimeout:   envDur("AGGREGATE_TIMEOUT", 30*time.Second),

		TokenCleanupInterval: envDur("TOKEN_CLEANUP_INTERVAL", time.Hour),

		AMQPURL: os.Getenv("RABBITMQ_URL"), // empty disables alert publishing
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
