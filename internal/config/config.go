// Package config loads the handful of knobs the media library engine
// itself needs, trimmed from the teacher's env/envInt loader down to what
// an embedded engine (no HTTP port, no JWT secret) actually takes.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	DatabasePath            string
	ThumbnailDir            string
	CacheDir                string
	NbDiscovererJobs        int
	NbParserJobs            int
	NetworkDiscoveryEnabled bool
	CacheQuotaBytes         int64
}

func Load() *Config {
	return &Config{
		DatabasePath:            env("MEDIALIB_DB_PATH", "medialib.db"),
		ThumbnailDir:            env("MEDIALIB_THUMBNAIL_DIR", "thumbnails"),
		CacheDir:                env("MEDIALIB_CACHE_DIR", "cache"),
		NbDiscovererJobs:        1,
		NbParserJobs:            envInt("MEDIALIB_PARSER_JOBS", 4),
		NetworkDiscoveryEnabled: envBool("MEDIALIB_NETWORK_DISCOVERY", false),
		CacheQuotaBytes:         envInt64("MEDIALIB_CACHE_QUOTA_BYTES", 1<<30),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
