// Package config handles configuration for the pilgrim server: defaults,
// .env and environment variables, a JSON overlay and command-line flags,
// applied in that order.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses for the API and the ops (health) listener.
//   - DatabaseDSN / DatabaseDriver: relational store; an empty DSN selects the in-memory store.
//   - RedisAddr: when set, sessions live in Redis instead of the user store's backend.
//   - SecretKey: HMAC secret for the session cookie (HS256). Do not use the default in prod.
//   - SessionTTL / SessionSweepInterval: session lifetime and how often expired rows are purged.
//   - AutoVerify: create users already verified. Refused when Production is set.
//   - AllowAdminRegistration: accept role=admin on /register. Refused when Production is set.
//   - AtomicPasswordReset: run the reset-token clear and the password write in one transaction.
//   - PublicBaseURL / ClientBaseURL: where mail links and the verification redirect point.
//   - AdminUsername / AdminPasswordHash: the virtual administrator's credential; no hash disables admin login.
//   - ResendAPIKey / MailFrom: transactional mail; without a key mail is only logged.
//   - S3*: object storage for avatars.
type Config struct {
	EndpointAddrHTTP       string
	EndpointAddrGRPC       string
	DatabaseDSN            string
	DatabaseDriver         string
	RedisAddr              string
	SecretKey              string
	SessionTTL             time.Duration
	SessionSweepInterval   time.Duration
	AutoVerify             bool
	Production             bool
	AtomicPasswordReset    bool
	AllowAdminRegistration bool
	PublicBaseURL          string
	ClientBaseURL          string
	AdminUsername          string
	AdminPasswordHash      string
	ResendAPIKey           string
	MailFrom               string
	S3RootUser             string
	S3RootPassword         string
	S3Bucket               string
	S3Region               string
	S3BaseEndpoint         string
	LogFormat              string
	AllowedOrigins         []string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.DatabaseDriver = "pgx"
	c.SecretKey = "secretKey"
	c.SessionTTL = 24 * time.Hour
	c.SessionSweepInterval = 10 * time.Minute
	c.PublicBaseURL = "http://localhost:8080"
	c.ClientBaseURL = "http://localhost:5173"
	c.AdminUsername = "admin"
	c.MailFrom = "Pilgrim <no-reply@pilgrim.local>"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "avatars"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.LogFormat = "json"
	c.AllowedOrigins = []string{"http://localhost:5173"}
}

// Validate rejects combinations the server must not start with.
func (c *Config) Validate() error {
	if c.Production && c.AutoVerify {
		return fmt.Errorf("auto-verify is not allowed in production")
	}
	if c.Production && c.AllowAdminRegistration {
		return fmt.Errorf("admin registration is not allowed in production")
	}
	if c.Production && c.SecretKey == "secretKey" {
		return fmt.Errorf("default secret key is not allowed in production")
	}
	if c.DatabaseDSN != "" && c.DatabaseDriver != "pgx" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be positive")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then the environment
// (optionally seeded from a .env file), then an optional JSON file and
// finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
