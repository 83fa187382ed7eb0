package config

import (
	"os"
	"strconv"
)

type Config struct {
	Backend   string // "local" or "nomad"
	DockerBin string

	NomadAddr  string
	ConsulAddr string
	Datacenter string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	LogBucket   string

	SidecarFile         string // optional YAML overlay for the sidecar registry
	SidecarGraceSeconds int
	DefaultTimeout      int // seconds, applied when a request carries none
}

func Load() *Config {
	return &Config{
		Backend:   envOr("RIG_BACKEND", "local"),
		DockerBin: envOr("RIG_DOCKER_BIN", "docker"),

		NomadAddr:  envOr("RIG_NOMAD_ADDR", "http://localhost:4646"),
		ConsulAddr: envOr("RIG_CONSUL_ADDR", "http://localhost:8500"),
		Datacenter: envOr("RIG_DATACENTER", "dc1"),

		S3Endpoint:  os.Getenv("RIG_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("RIG_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("RIG_S3_SECRET_KEY"),
		S3Region:    envOr("RIG_S3_REGION", "auto"),
		S3UseSSL:    os.Getenv("RIG_S3_USE_SSL") != "false",
		LogBucket:   envOr("RIG_LOG_BUCKET", "rig-test-logs"),

		SidecarFile:         os.Getenv("RIG_SIDECAR_FILE"),
		SidecarGraceSeconds: envOrInt("RIG_SIDECAR_GRACE", 5),
		DefaultTimeout:      envOrInt("RIG_DEFAULT_TIMEOUT", 600),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
