package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// BybitEnv identifies which Bybit deployment the adapter connects to.
type BybitEnv string

const (
	BybitMainnet BybitEnv = "Mainnet"
	BybitTestnet BybitEnv = "Testnet"
	BybitDemo    BybitEnv = "Demo"
)

var bybitWSURLs = map[BybitEnv]string{
	BybitMainnet: "wss://stream.bybit.com/v5/public/linear",
	BybitTestnet: "wss://stream-testnet.bybit.com/v5/public/linear",
	BybitDemo:    "wss://stream-demo.bybit.com/v5/public/linear",
}

// ParseBybitEnv canonicalizes a BYBIT_ENV value, defaulting to Mainnet.
func ParseBybitEnv(s string) BybitEnv {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "testnet":
		return BybitTestnet
	case "demo":
		return BybitDemo
	default:
		return BybitMainnet
	}
}

// WSURL returns the public stream endpoint for the environment.
func (e BybitEnv) WSURL() string {
	if url, ok := bybitWSURLs[e]; ok {
		return url
	}
	return bybitWSURLs[BybitMainnet]
}

// applyEnvOverrides layers recognized environment variables over the file
// configuration. Values from the environment always win.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BYBIT_ENV"); v != "" {
		cfg.Venue.Env = string(ParseBybitEnv(v))
	}
	if v := os.Getenv("BYBIT_WS_URL"); v != "" {
		cfg.Venue.WSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Venue.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Venue.APISecret = strings.TrimSpace(v)
	}
	if v := envInt("HEARTBEAT_SECONDS"); v > 0 {
		cfg.Venue.HeartbeatSecs = v
	}
	if v := envInt("RECONNECT_INITIAL_MS"); v > 0 {
		cfg.Venue.Reconnect.InitialMs = v
	}
	if v := envInt("RECONNECT_MAX_MS"); v > 0 {
		cfg.Venue.Reconnect.MaxMs = v
	}
	if v := os.Getenv("RECONNECT_BACKOFF"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 1 {
			cfg.Venue.Reconnect.Backoff = f
		}
	}
	if v := envInt("RECONNECT_JITTER_MS"); v >= 0 && os.Getenv("RECONNECT_JITTER_MS") != "" {
		cfg.Venue.Reconnect.JitterMs = v
	}
	if v := envInt("RECONNECT_TIMEOUT_MS"); v > 0 {
		cfg.Venue.Reconnect.TimeoutMs = v
	}
	if cfg.Venue.WSURL == "" {
		cfg.Venue.WSURL = ParseBybitEnv(cfg.Venue.Env).WSURL()
	}

	if cfg.Catalog.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Catalog.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Catalog.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Catalog.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Catalog.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ReconnectInitial returns the initial reconnect delay with a sane default.
func (r ReconnectConfig) ReconnectInitial() time.Duration {
	if r.InitialMs <= 0 {
		return time.Second
	}
	return time.Duration(r.InitialMs) * time.Millisecond
}

// ReconnectMax returns the reconnect delay ceiling with a sane default.
func (r ReconnectConfig) ReconnectMax() time.Duration {
	if r.MaxMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.MaxMs) * time.Millisecond
}

// ReconnectFactor returns the backoff multiplier with a sane default.
func (r ReconnectConfig) ReconnectFactor() float64 {
	if r.Backoff < 1 {
		return 2
	}
	return r.Backoff
}

// ReconnectTimeout bounds a single reconnect attempt.
func (r ReconnectConfig) ReconnectTimeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}
