// Package nomad wraps the Nomad API in the handful of calls the cloud
// executor needs.
package nomad

import (
	"fmt"

	nomadapi "github.com/hashicorp/nomad/api"
)

type Client struct {
	api *nomadapi.Client
}

func NewClient(addr string) (*Client, error) {
	cfg := nomadapi.DefaultConfig()
	cfg.Address = addr

	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad client: %w", err)
	}
	return &Client{api: client}, nil
}

// Healthy checks connectivity to Nomad.
func (c *Client) Healthy() error {
	_, err := c.api.Agent().NodeName()
	return err
}

// RegisterJob submits a job and returns its evaluation id.
func (c *Client) RegisterJob(job *nomadapi.Job) (string, error) {
	resp, _, err := c.api.Jobs().Register(job, nil)
	if err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	return resp.EvalID, nil
}

// DeregisterJob stops a job. With purge the job definition is removed
// from the server as well.
func (c *Client) DeregisterJob(jobID string, purge bool) error {
	_, _, err := c.api.Jobs().Deregister(jobID, purge, nil)
	return err
}

// JobInfo returns the full job specification.
func (c *Client) JobInfo(jobID string) (*nomadapi.Job, error) {
	job, _, err := c.api.Jobs().Info(jobID, nil)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// JobAllocations lists allocations for a job.
func (c *Client) JobAllocations(jobID string) ([]*nomadapi.AllocationListStub, error) {
	allocs, _, err := c.api.Jobs().Allocations(jobID, false, nil)
	if err != nil {
		return nil, err
	}
	return allocs, nil
}
