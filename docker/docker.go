// Package docker drives the local container runtime through the docker
// CLI. Keeping the surface behind Runtime lets the executor run against a
// fake in tests and keeps the CLI dependency in one place.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runtime is the subset of container operations the local executor needs.
type Runtime interface {
	Ping(ctx context.Context) error
	NetworkCreate(ctx context.Context, name string) error
	NetworkRemove(ctx context.Context, name string) error
	RunDetached(ctx context.Context, opts RunOpts) (string, error)
	Wait(ctx context.Context, containerID string) (int, error)
	Logs(ctx context.Context, containerID string) (stdout, stderr string, err error)
	Stop(ctx context.Context, containerID string, grace time.Duration) error
	Remove(ctx context.Context, containerID string) error
}

// RunOpts describes one container start.
type RunOpts struct {
	Name     string
	Image    string
	Network  string
	Env      map[string]string
	Command  []string // empty means the image's default
	MemoryMB int
	CPUMHz   int
}

// Client shells out to the docker binary.
type Client struct {
	bin string
}

func NewClient(bin string) *Client {
	if bin == "" {
		bin = "docker"
	}
	return &Client{bin: bin}
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.output(ctx, "version", "--format", "{{.Server.Version}}")
	return err
}

func (c *Client) NetworkCreate(ctx context.Context, name string) error {
	_, err := c.output(ctx, "network", "create", name)
	return err
}

func (c *Client) NetworkRemove(ctx context.Context, name string) error {
	_, err := c.output(ctx, "network", "rm", name)
	return err
}

func (c *Client) RunDetached(ctx context.Context, opts RunOpts) (string, error) {
	args := []string{"run", "-d", "--name", opts.Name}
	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}
	if opts.MemoryMB > 0 {
		args = append(args, fmt.Sprintf("--memory=%dm", opts.MemoryMB))
	}
	if opts.CPUMHz > 0 {
		args = append(args, fmt.Sprintf("--cpus=%.2f", float64(opts.CPUMHz)/1000))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	out, err := c.output(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Wait blocks until the container exits or ctx is done, returning the
// exit code. A context error is returned as-is so callers can treat a
// timeout as a failed run.
func (c *Client) Wait(ctx context.Context, containerID string) (int, error) {
	out, err := c.output(ctx, "wait", containerID)
	if err != nil {
		return 1, err
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 1, fmt.Errorf("docker wait: unexpected output %q", out)
	}
	return code, nil
}

// Logs captures the container's stdout and stderr independently. Bytes
// that are not valid UTF-8 are replaced rather than surfaced as an error.
func (c *Client) Logs(ctx context.Context, containerID string) (string, string, error) {
	cmd := exec.CommandContext(ctx, c.bin, "logs", containerID)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("docker logs: %w", err)
	}
	return sanitize(outBuf.String()), sanitize(errBuf.String()), nil
}

func (c *Client) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	secs := int(grace.Seconds())
	if secs < 1 {
		secs = 1
	}
	_, err := c.output(ctx, "stop", "-t", strconv.Itoa(secs), containerID)
	return err
}

func (c *Client) Remove(ctx context.Context, containerID string) error {
	_, err := c.output(ctx, "rm", "-f", containerID)
	return err
}

func (c *Client) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return outBuf.String(), ctx.Err()
		}
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = err.Error()
		}
		return outBuf.String(), fmt.Errorf("docker %s: %s", args[0], msg)
	}
	return outBuf.String(), nil
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}
