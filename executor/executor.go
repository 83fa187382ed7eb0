// Package executor runs test suites in disposable container groups. Two
// backends implement the same contract: a local docker-CLI backend and a
// Nomad batch-job backend. The run-bookkeeping layer picks one at startup
// and only ever holds opaque execution ids.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rig/config"
	"rig/consul"
	"rig/docker"
	"rig/model"
	"rig/nomad"
	"rig/sidecar"
	"rig/storage"
)

// Executor is the backend-agnostic contract consumed by the bookkeeping
// component. ExecuteTestRun returns immediately; everything after
// dispatch surfaces through status snapshots, never as raised errors.
type Executor interface {
	ExecuteTestRun(ctx context.Context, req model.ExecutionRequest) (string, error)
	GetExecutionStatus(ctx context.Context, executionID string) *model.Execution
	GetExecutionLogs(ctx context.Context, executionID string) (stdout, stderr string)
	CancelExecution(ctx context.Context, executionID string) bool
}

// MockPrefix marks synthetic executions created when no compute substrate
// is reachable. Callers distinguish real from synthetic by prefix alone.
const MockPrefix = "mock-"

func IsMock(executionID string) bool {
	return strings.HasPrefix(executionID, MockPrefix)
}

// New selects a backend from configuration. This is the single strategy
// switch; callers never inspect backend types.
func New(cfg *config.Config, reg *sidecar.Registry) (Executor, error) {
	var store *storage.Client
	if cfg.S3Endpoint != "" {
		s, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.LogBucket,
		})
		if err != nil {
			log.Warn().Err(err).Msg("log archive unavailable")
		} else {
			store = s
		}
	}

	switch cfg.Backend {
	case "local":
		return NewLocal(docker.NewClient(cfg.DockerBin), reg, store, cfg), nil
	case "nomad":
		var nomadClient *nomad.Client
		if c, err := nomad.NewClient(cfg.NomadAddr); err != nil {
			log.Warn().Err(err).Msg("nomad unavailable, executions will be synthetic")
		} else if err := c.Healthy(); err != nil {
			log.Warn().Err(err).Msg("nomad not healthy, executions will be synthetic")
		} else {
			nomadClient = c
		}
		var consulClient *consul.Client
		if c, err := consul.NewClient(cfg.ConsulAddr); err != nil {
			log.Warn().Err(err).Msg("consul unavailable, sidecar health disabled")
		} else {
			consulClient = c
		}
		return NewNomad(nomadClient, consulClient, store, reg, cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func shortID() string {
	return uuid.New().String()[:8]
}

// unknownExecution is what status queries return for ids this backend
// never issued; callers get a well-formed snapshot, not an error.
func unknownExecution(executionID string) *model.Execution {
	return &model.Execution{
		ID:     executionID,
		Status: model.StatusError,
		Error:  fmt.Sprintf("unknown execution id %q", executionID),
	}
}

// mockExecution is the deterministic result reported when the compute
// substrate is absent. It keeps the interface usable in environments with
// no runtime installed.
func mockExecution(executionID string) *model.Execution {
	code := 0
	dur := 0.0
	return &model.Execution{
		ID:              executionID,
		Status:          model.StatusPassed,
		ExitCode:        &code,
		DurationSeconds: &dur,
		Stdout:          "mock execution: no compute substrate configured, reporting synthetic success\n",
	}
}

// mergeEnv layers the fixed service-discovery variables over the
// caller's. Fixed keys win; a collision is logged, not rejected, so a run
// degrades rather than aborts.
func mergeEnv(caller, fixed map[string]string) map[string]string {
	env := make(map[string]string, len(caller)+len(fixed))
	for k, v := range caller {
		env[k] = v
	}
	for k, v := range fixed {
		if prev, ok := env[k]; ok && prev != v {
			log.Warn().Str("key", k).Msg("caller env overridden by service-discovery variable")
		}
		env[k] = v
	}
	return env
}

// imagePlaceholder is replaced with a public language-family image so a
// local run never depends on private registry credentials.
const imagePlaceholder = "{project}"

var languageImages = map[string]string{
	"node":   "node:20-bookworm",
	"python": "python:3.12-bookworm",
	"go":     "golang:1.24-bookworm",
}

const defaultImage = "node:20-bookworm"

// resolveImage turns the requested image into something runnable without
// registry credentials: placeholder images map to a public equivalent for
// the detected language family, private-registry references fall back to
// the generic default.
func resolveImage(req model.ExecutionRequest) string {
	if req.Image == "" || strings.Contains(req.Image, imagePlaceholder) {
		return languageImages[languageFamily(req.TestCommand)]
	}
	if isPrivateRegistry(req.Image) {
		return defaultImage
	}
	return req.Image
}

func languageFamily(testCommand string) string {
	cmd := strings.ToLower(testCommand)
	switch {
	case strings.Contains(cmd, "pytest") || strings.Contains(cmd, "python") || strings.Contains(cmd, "pip"):
		return "python"
	case strings.Contains(cmd, "go test") || strings.Contains(cmd, "gotestsum"):
		return "go"
	default:
		return "node"
	}
}

// isPrivateRegistry treats any dotted registry host other than docker.io
// as private.
func isPrivateRegistry(image string) bool {
	host, _, found := strings.Cut(image, "/")
	if !found {
		return false
	}
	if !strings.Contains(host, ".") && !strings.Contains(host, ":") {
		return false // docker hub namespace, e.g. library/redis
	}
	return host != "docker.io"
}
