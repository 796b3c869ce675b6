package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "PILGRIM_"

// parseEnv overlays PILGRIM_* environment variables. A .env file (the -env
// flag, or ./.env when present) is loaded first; it never overrides
// variables that are already set. Unset or empty variables leave the field
// alone.
func parseEnv(config *Config) {
	path := flagx.EnvFileFlag()
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	}

	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("GRPC_ADDR", &config.EndpointAddrGRPC)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("DATABASE_DRIVER", &config.DatabaseDriver)
	envString("REDIS_ADDR", &config.RedisAddr)
	envString("SECRET_KEY", &config.SecretKey)
	envDuration("SESSION_TTL", &config.SessionTTL)
	envDuration("SESSION_SWEEP_INTERVAL", &config.SessionSweepInterval)
	envBool("AUTO_VERIFY", &config.AutoVerify)
	envBool("PRODUCTION", &config.Production)
	envBool("ATOMIC_PASSWORD_RESET", &config.AtomicPasswordReset)
	envBool("ALLOW_ADMIN_REGISTRATION", &config.AllowAdminRegistration)
	envString("PUBLIC_BASE_URL", &config.PublicBaseURL)
	envString("CLIENT_BASE_URL", &config.ClientBaseURL)
	envString("ADMIN_USERNAME", &config.AdminUsername)
	envString("ADMIN_PASSWORD_HASH", &config.AdminPasswordHash)
	envString("RESEND_API_KEY", &config.ResendAPIKey)
	envString("MAIL_FROM", &config.MailFrom)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("LOG_FORMAT", &config.LogFormat)

	if v := lookup("ALLOWED_ORIGINS"); v != "" {
		config.AllowedOrigins = splitCSV(v)
	}
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envString(key string, dst *string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	v := lookup(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}

func envDuration(key string, dst *time.Duration) {
	v := lookup(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
