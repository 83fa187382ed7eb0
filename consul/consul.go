// Package consul looks up the health of sidecar services registered by
// Nomad-backed test runs.
package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

type Client struct {
	api *consulapi.Client
}

func NewClient(addr string) (*Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Client{api: client}, nil
}

// Healthy checks connectivity to Consul.
func (c *Client) Healthy() error {
	_, err := c.api.Status().Leader()
	return err
}

// ServiceStatus is the aggregated check state of one registered service:
// passing, warning, critical, or unknown when no instance is registered.
func (c *Client) ServiceStatus(serviceName string) (string, error) {
	entries, _, err := c.api.Health().Service(serviceName, "", false, nil)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "unknown", nil
	}
	worst := "passing"
	for _, entry := range entries {
		for _, check := range entry.Checks {
			switch check.Status {
			case "critical":
				return "critical", nil
			case "warning":
				worst = "warning"
			}
		}
	}
	return worst, nil
}
