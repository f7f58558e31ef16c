package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PGR report service
type Config struct {
	// GCS configuration
	Bucket     string
	LogoObject string

	// Limits and security for URL downloads
	MaxImageBytes     int64
	AllowedImageHosts []string
	HTTPTimeout       time.Duration

	// Prefer the GCS client when an image URL points at cloud storage
	UseGCSForStorageURLs bool
	// Hosts recognized as cloud-storage addressing when classifying URLs
	StorageURLHosts []string

	// Date formatting policy: strict reports "Data inválida" on parse
	// failure, lax passes the original string through
	StrictDates bool
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{}

	cfg.Bucket = getEnv("GCS_BUCKET", "docs-superapp")
	cfg.LogoObject = getEnv("LOGO_BLOB", "logo.png")

	cfg.MaxImageBytes = getEnvInt64("MAX_IMAGE_BYTES", 10*1024*1024)
	cfg.AllowedImageHosts = splitHosts(getEnv("ALLOWED_IMAGE_HOSTS",
		"storage.googleapis.com,storage.cloud.google.com"))
	cfg.HTTPTimeout = time.Duration(getEnvInt64("HTTP_TIMEOUT_SECONDS", 20)) * time.Second

	cfg.UseGCSForStorageURLs = getEnvBool("USE_GCS_FOR_STORAGE_URLS", true)
	cfg.StorageURLHosts = splitHosts(getEnv("STORAGE_URL_HOSTS",
		"storage.googleapis.com,storage.cloud.google.com"))
	cfg.StrictDates = getEnvBool("STRICT_DATES", true)

	return cfg
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitHosts(raw string) []string {
	hosts := []string{}
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
