/*
Package configs loads the application's configuration settings.

Every setting comes from an environment variable with a development-friendly
default; production environments must supply secrets explicitly.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// WebSocket handshake rate limit per client IP.
	WSConnectRate  float64
	WSConnectBurst int

	// Database Settings. Either a postgres:// DSN or sqlite://<path>.
	DatabaseDSN string

	// NATS relay settings. An empty URL disables the relay.
	NATSURL           string
	NATSSubjectPrefix string

	// S3 snapshot archive settings. All four are required together or not at all.
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// SnapshotArchiveEnabled reports whether S3 settings were supplied.
func (c *AppConfig) SnapshotArchiveEnabled() bool {
	return c.S3BucketName != ""
}

// LoadConfig reads and parses the application configuration from environment variables.
func LoadConfig() (*AppConfig, error) {
	return loadFrom(os.Getenv)
}

// loadFrom parses the configuration from any getenv-shaped lookup so tests can inject values.
func loadFrom(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	if originsStr := getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	jwtSecret := getenv("JWT_SECRET")
	if jwtSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		jwtSecret = "your_default_insecure_secret_key_change_me"
	}
	cfg.JWTSecret = jwtSecret

	cfg.WSConnectRate = 0.5
	if v := getenv("WS_CONNECT_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("invalid WS_CONNECT_RATE environment variable %q", v)
		}
		cfg.WSConnectRate = r
	}

	cfg.WSConnectBurst = 10
	if v := getenv("WS_CONNECT_BURST"); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil || b <= 0 {
			return nil, fmt.Errorf("invalid WS_CONNECT_BURST environment variable %q", v)
		}
		cfg.WSConnectBurst = b
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
		}
		cfg.DatabaseDSN = "sqlite://realchat.db"
	}

	// --- NATS Relay Settings ---
	cfg.NATSURL = getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenv("NATS_SUBJECT_PREFIX")
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = "realchat"
	}

	// --- S3 Snapshot Archive Settings ---
	cfg.S3BucketName = getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = getenv("S3_ENDPOINT")
	cfg.S3AccessKeyID = getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = getenv("S3_SECRET_ACCESS_KEY")

	s3Set := 0
	for _, v := range []string{cfg.S3BucketName, cfg.S3Endpoint, cfg.S3AccessKeyID, cfg.S3SecretAccessKey} {
		if v != "" {
			s3Set++
		}
	}
	if s3Set != 0 && s3Set != 4 {
		return nil, fmt.Errorf("S3_BUCKET_NAME, S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}

	return cfg, nil
}
