package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/flagx"
	"github.com/dmitrijs2005/pilgrim/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Pointer booleans distinguish "false" from "absent".
type JsonConfig struct {
	EndpointAddrHTTP       string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC       string         `json:"endpoint_addr_grpc"`
	DatabaseDSN            string         `json:"database_dsn"`
	DatabaseDriver         string         `json:"database_driver"`
	RedisAddr              string         `json:"redis_addr"`
	SecretKey              string         `json:"secret_key"`
	SessionTTL             timex.Duration `json:"session_ttl"`
	SessionSweepInterval   timex.Duration `json:"session_sweep_interval"`
	AutoVerify             *bool          `json:"auto_verify"`
	Production             *bool          `json:"production"`
	AtomicPasswordReset    *bool          `json:"atomic_password_reset"`
	AllowAdminRegistration *bool          `json:"allow_admin_registration"`
	PublicBaseURL          string         `json:"public_base_url"`
	ClientBaseURL          string         `json:"client_base_url"`
	AdminUsername          string         `json:"admin_username"`
	AdminPasswordHash      string         `json:"admin_password_hash"`
	ResendAPIKey           string         `json:"resend_api_key"`
	MailFrom               string         `json:"mail_from"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	LogFormat              string         `json:"log_format"`
	AllowedOrigins         []string       `json:"allowed_origins"`
}

// parseJson overlays values from the JSON file named by -c/-config. Keys
// missing from the file leave the current value untouched. A file that
// cannot be read or parsed panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.SessionSweepInterval, c.SessionSweepInterval)
	setBool(&config.AutoVerify, c.AutoVerify)
	setBool(&config.Production, c.Production)
	setBool(&config.AtomicPasswordReset, c.AtomicPasswordReset)
	setBool(&config.AllowAdminRegistration, c.AllowAdminRegistration)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.ClientBaseURL, c.ClientBaseURL)
	setString(&config.AdminUsername, c.AdminUsername)
	setString(&config.AdminPasswordHash, c.AdminPasswordHash)
	setString(&config.ResendAPIKey, c.ResendAPIKey)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
