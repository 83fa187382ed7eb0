package nomad

import (
	"fmt"
	"strconv"
	"time"

	nomadapi "github.com/hashicorp/nomad/api"

	"rig/sidecar"
)

// Translate converts one test-run request into a Nomad batch job: a main
// task running the bootstrap script plus one prestart sidecar task per
// resolved dependency. All tasks share the group's network namespace, so
// the main task reaches sidecars on localhost.
func Translate(jobID, image, script string, env map[string]string, sidecars []sidecar.Spec, timeoutSeconds int, datacenter string) *nomadapi.Job {
	job := nomadapi.NewBatchJob(jobID, jobID, "global", 50)
	job.Datacenters = []string{datacenter}
	job.Meta = map[string]string{
		"rig":            "test-run",
		"timeoutSeconds": strconv.Itoa(timeoutSeconds),
		"submit_ts":      fmt.Sprintf("%d", time.Now().UnixMilli()),
	}

	tg := nomadapi.NewTaskGroup("run", 1)

	// Test runs never restart; the exit code is the verdict.
	attempts := 0
	mode := "fail"
	tg.RestartPolicy = &nomadapi.RestartPolicy{
		Attempts: &attempts,
		Mode:     &mode,
	}
	tg.Networks = []*nomadapi.NetworkResource{{Mode: "bridge"}}

	for _, sc := range sidecars {
		task := nomadapi.NewTask(sc.Name, "docker")
		task.Config = map[string]interface{}{
			"image": sc.Image,
		}
		task.Env = sc.Env
		task.Lifecycle = &nomadapi.TaskLifecycle{
			Hook:    nomadapi.TaskLifecycleHookPrestart,
			Sidecar: true,
		}
		cpu := sc.CPUMHz
		mem := sc.MemoryMB
		task.Resources = &nomadapi.Resources{CPU: &cpu, MemoryMB: &mem}
		task.Services = []*nomadapi.Service{{
			Name:        fmt.Sprintf("%s-%s", jobID, sc.Name),
			PortLabel:   strconv.Itoa(sc.Port),
			AddressMode: "driver",
			Provider:    "consul",
		}}
		tg.Tasks = append(tg.Tasks, task)
	}

	// The caller's timeout bounds the script itself; Nomad has no
	// per-task wall clock, so the shell enforces it.
	main := nomadapi.NewTask("main", "docker")
	main.Config = map[string]interface{}{
		"image":   image,
		"command": "/bin/sh",
		"args":    []string{"-c", wrapTimeout(script, timeoutSeconds)},
	}
	main.Env = env
	cpu := 1000
	mem := 2048
	main.Resources = &nomadapi.Resources{CPU: &cpu, MemoryMB: &mem}
	main.Identity = &nomadapi.WorkloadIdentity{Name: "default", Env: true}
	tg.Tasks = append(tg.Tasks, main)

	job.TaskGroups = []*nomadapi.TaskGroup{tg}
	return job
}

func wrapTimeout(script string, timeoutSeconds int) string {
	if timeoutSeconds <= 0 {
		return script
	}
	return fmt.Sprintf("timeout %d sh <<'RIG_EOF'\n%sRIG_EOF", timeoutSeconds, script)
}
