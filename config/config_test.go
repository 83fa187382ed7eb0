package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"RIG_BACKEND", "RIG_DOCKER_BIN", "RIG_NOMAD_ADDR", "RIG_CONSUL_ADDR",
		"RIG_DATACENTER", "RIG_S3_ENDPOINT", "RIG_S3_USE_SSL", "RIG_LOG_BUCKET",
		"RIG_SIDECAR_FILE", "RIG_SIDECAR_GRACE", "RIG_DEFAULT_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Backend != "local" {
		t.Errorf("Backend = %q, want local", cfg.Backend)
	}
	if cfg.DockerBin != "docker" {
		t.Errorf("DockerBin = %q, want docker", cfg.DockerBin)
	}
	if cfg.NomadAddr != "http://localhost:4646" {
		t.Errorf("NomadAddr = %q", cfg.NomadAddr)
	}
	if cfg.Datacenter != "dc1" {
		t.Errorf("Datacenter = %q, want dc1", cfg.Datacenter)
	}
	if cfg.LogBucket != "rig-test-logs" {
		t.Errorf("LogBucket = %q", cfg.LogBucket)
	}
	if cfg.SidecarGraceSeconds != 5 {
		t.Errorf("SidecarGraceSeconds = %d, want 5", cfg.SidecarGraceSeconds)
	}
	if cfg.DefaultTimeout != 600 {
		t.Errorf("DefaultTimeout = %d, want 600", cfg.DefaultTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RIG_BACKEND", "nomad")
	t.Setenv("RIG_NOMAD_ADDR", "http://nomad.internal:4646")
	t.Setenv("RIG_S3_ENDPOINT", "minio.internal:9000")
	t.Setenv("RIG_S3_USE_SSL", "false")
	t.Setenv("RIG_SIDECAR_GRACE", "10")
	t.Setenv("RIG_DEFAULT_TIMEOUT", "120")

	cfg := Load()

	if cfg.Backend != "nomad" {
		t.Errorf("Backend = %q, want nomad", cfg.Backend)
	}
	if cfg.NomadAddr != "http://nomad.internal:4646" {
		t.Errorf("NomadAddr = %q", cfg.NomadAddr)
	}
	if cfg.S3Endpoint != "minio.internal:9000" {
		t.Errorf("S3Endpoint = %q", cfg.S3Endpoint)
	}
	if cfg.S3UseSSL {
		t.Error("S3UseSSL should be false")
	}
	if cfg.SidecarGraceSeconds != 10 {
		t.Errorf("SidecarGraceSeconds = %d, want 10", cfg.SidecarGraceSeconds)
	}
	if cfg.DefaultTimeout != 120 {
		t.Errorf("DefaultTimeout = %d, want 120", cfg.DefaultTimeout)
	}
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	t.Setenv("RIG_SIDECAR_GRACE", "soon")

	if got := Load().SidecarGraceSeconds; got != 5 {
		t.Errorf("SidecarGraceSeconds = %d, want fallback 5", got)
	}
}
