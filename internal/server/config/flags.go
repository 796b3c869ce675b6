package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/pilgrim/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC ops bind address (e.g., ":50051")
//	-d string     database DSN; empty keeps everything in memory
//	-driver string database/sql driver: pgx or sqlite
//	-redis string Redis address for sessions
//	-s string     session cookie HMAC secret
//	-ttl duration session lifetime (e.g., "24h")
//	-auto-verify  create users already verified (development only)
//	-prod         production mode
//	-log string   log format: json, text or zap
//	-origins string comma separated CORS origins
//
// os.Args is first narrowed with flagx.FilterArgs so -c and -env, which
// are parsed elsewhere, do not trip this flag set.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-g", "-d", "-driver", "-redis", "-s", "-ttl", "-auto-verify", "-prod", "-log", "-origins",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC ops address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver (pgx|sqlite)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for sessions")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.SessionTTL, "ttl", config.SessionTTL, "session lifetime")
	fs.BoolVar(&config.AutoVerify, "auto-verify", config.AutoVerify, "create users verified")
	fs.BoolVar(&config.Production, "prod", config.Production, "production mode")
	fs.StringVar(&config.LogFormat, "log", config.LogFormat, "log format (json|text|zap)")
	origins := fs.String("origins", strings.Join(config.AllowedOrigins, ","), "allowed CORS origins")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AllowedOrigins = splitCSV(*origins)
}
