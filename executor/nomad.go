package executor

import (
	"context"
	"fmt"
	"strings"

	nomadapi "github.com/hashicorp/nomad/api"
	"github.com/rs/zerolog/log"

	"rig/bootstrap"
	"rig/config"
	"rig/consul"
	"rig/model"
	"rig/nomad"
	"rig/sidecar"
	"rig/storage"
)

const nomadPrefix = "nomad-"

// nomadAPI is the slice of the Nomad client the executor exercises,
// extracted so tests can substitute a fake.
type nomadAPI interface {
	RegisterJob(job *nomadapi.Job) (string, error)
	DeregisterJob(jobID string, purge bool) error
	JobInfo(jobID string) (*nomadapi.Job, error)
	JobAllocations(jobID string) ([]*nomadapi.AllocationListStub, error)
}

// Nomad dispatches each test run as one batch job and keeps no state of
// its own; every operation is a single synchronous call against the
// provider.
type Nomad struct {
	client nomadAPI       // nil when unconfigured: executions are synthetic
	consul *consul.Client // optional, for sidecar health introspection
	store  *storage.Client
	reg    *sidecar.Registry

	graceSeconds   int
	defaultTimeout int
	datacenter     string
}

func NewNomad(client *nomad.Client, consulClient *consul.Client, store *storage.Client, reg *sidecar.Registry, cfg *config.Config) *Nomad {
	n := &Nomad{
		consul:         consulClient,
		store:          store,
		reg:            reg,
		graceSeconds:   cfg.SidecarGraceSeconds,
		defaultTimeout: cfg.DefaultTimeout,
		datacenter:     cfg.Datacenter,
	}
	if client != nil {
		n.client = client
	}
	return n
}

// ExecuteTestRun registers and implicitly starts one batch job. With no
// provider configured it returns a mock-prefixed id and touches no
// network.
func (n *Nomad) ExecuteTestRun(ctx context.Context, req model.ExecutionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if n.client == nil {
		id := MockPrefix + shortID()
		log.Info().Str("execution", id).Msg("nomad unconfigured, returning synthetic execution")
		return id, nil
	}

	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = n.defaultTimeout
	}

	jobID := "rig-" + shortID()
	specs := n.reg.Resolve(req.Sidecars)
	// Sidecar tasks share the allocation network namespace with the main
	// task, so discovery addresses are always localhost.
	discovery := sidecar.DiscoveryEnv(specs, func(sidecar.Spec) string { return "localhost" })
	env := mergeEnv(req.Env, discovery)

	script := bootstrap.Build(req.RepoURL, req.Branch, req.TestCommand, n.graceSeconds)
	job := nomad.Translate(jobID, resolveImage(req), script, env, specs, timeout, n.datacenter)
	if _, err := n.client.RegisterJob(job); err != nil {
		id := MockPrefix + shortID()
		log.Warn().Err(err).Str("execution", id).Msg("nomad unreachable, degrading to synthetic execution")
		return id, nil
	}
	return nomadPrefix + jobID, nil
}

// GetExecutionStatus maps the job's allocation counters to the unified
// status enum, preferring the most specific outcome in the order
// succeeded > failed > cancelled > running > pending.
func (n *Nomad) GetExecutionStatus(ctx context.Context, executionID string) *model.Execution {
	if IsMock(executionID) {
		return mockExecution(executionID)
	}
	if n.client == nil || !strings.HasPrefix(executionID, nomadPrefix) {
		return unknownExecution(executionID)
	}
	jobID := strings.TrimPrefix(executionID, nomadPrefix)

	allocs, err := n.client.JobAllocations(jobID)
	if err != nil {
		return &model.Execution{
			ID:     executionID,
			Handle: jobID,
			Status: model.StatusError,
			Error:  fmt.Sprintf("query execution: %v", err),
		}
	}

	var succeeded, failed, cancelled, running int
	var duration *float64
	for _, a := range allocs {
		switch a.ClientStatus {
		case "complete":
			if mainTaskFailed(a) {
				failed++
			} else {
				succeeded++
			}
			if d := mainTaskDuration(a); d != nil {
				duration = d
			}
		case "failed", "lost":
			failed++
			if d := mainTaskDuration(a); d != nil {
				duration = d
			}
		case "running":
			running++
		}
	}
	if succeeded == 0 && failed == 0 {
		if job, infoErr := n.client.JobInfo(jobID); infoErr == nil && job != nil && job.Stop != nil && *job.Stop {
			cancelled++
		}
	}

	exec := &model.Execution{ID: executionID, Handle: jobID, DurationSeconds: duration}
	switch {
	case succeeded > 0:
		code := 0
		exec.Status = model.StatusPassed
		exec.ExitCode = &code
	case failed > 0:
		code := 1
		exec.Status = model.StatusFailed
		exec.ExitCode = &code
	case cancelled > 0:
		exec.Status = model.StatusCancelled
		exec.Error = "cancelled by caller"
	case running > 0:
		exec.Status = model.StatusRunning
	default:
		exec.Status = model.StatusPending
	}
	return exec
}

// GetExecutionLogs reads the S3 archive when one is configured. The
// unconfigured path is a known gap: production log retrieval belongs to
// an external aggregation system.
func (n *Nomad) GetExecutionLogs(ctx context.Context, executionID string) (string, string) {
	if IsMock(executionID) || n.store == nil {
		if n.store == nil {
			log.Debug().Str("execution", executionID).Msg("no log archive configured, returning empty logs")
		}
		return "", ""
	}
	stdout, stderr, err := n.store.FetchLogs(ctx, executionID)
	if err != nil {
		log.Warn().Str("execution", executionID).Err(err).Msg("log fetch failed")
		return "", ""
	}
	return stdout, stderr
}

// CancelExecution stops the job without purging it. Provider errors are
// swallowed; false means the cancel was not accepted.
func (n *Nomad) CancelExecution(ctx context.Context, executionID string) bool {
	if IsMock(executionID) {
		return true
	}
	if n.client == nil || !strings.HasPrefix(executionID, nomadPrefix) {
		return false
	}
	jobID := strings.TrimPrefix(executionID, nomadPrefix)
	if err := n.client.DeregisterJob(jobID, false); err != nil {
		log.Warn().Str("execution", executionID).Err(err).Msg("cancel failed")
		return false
	}
	return true
}

// CleanupJob purges the job definition once results have been collected.
// Best-effort and non-fatal.
func (n *Nomad) CleanupJob(executionID string) {
	if IsMock(executionID) || n.client == nil {
		return
	}
	jobID := strings.TrimPrefix(executionID, nomadPrefix)
	if err := n.client.DeregisterJob(jobID, true); err != nil {
		log.Warn().Str("execution", executionID).Err(err).Msg("job cleanup failed")
	}
}

// SidecarHealth reports the Consul check status of each sidecar service
// for a run, for diagnosing dependency startup failures. Nil when Consul
// is not configured.
func (n *Nomad) SidecarHealth(executionID string, sidecars []string) map[string]string {
	if n.consul == nil {
		return nil
	}
	jobID := strings.TrimPrefix(executionID, nomadPrefix)
	out := make(map[string]string, len(sidecars))
	for _, name := range sidecars {
		if _, ok := n.reg.Lookup(name); !ok {
			continue
		}
		status, err := n.consul.ServiceStatus(fmt.Sprintf("%s-%s", jobID, name))
		if err != nil {
			status = "unknown"
		}
		out[name] = status
	}
	return out
}

func mainTaskFailed(a *nomadapi.AllocationListStub) bool {
	if ts, ok := a.TaskStates["main"]; ok {
		return ts.Failed
	}
	for _, ts := range a.TaskStates {
		if ts.State == "dead" && ts.Failed {
			return true
		}
	}
	return false
}

func mainTaskDuration(a *nomadapi.AllocationListStub) *float64 {
	ts, ok := a.TaskStates["main"]
	if !ok || ts.StartedAt.IsZero() || ts.FinishedAt.IsZero() {
		return nil
	}
	d := ts.FinishedAt.Sub(ts.StartedAt).Seconds()
	return &d
}
