package executor

import (
	"testing"

	"rig/model"
)

func TestResolveImage(t *testing.T) {
	cases := []struct {
		name string
		req  model.ExecutionRequest
		want string
	}{
		{
			"placeholder maps to language family",
			model.ExecutionRequest{Image: "registry.internal/{project}:latest", TestCommand: "pytest -q"},
			"python:3.12-bookworm",
		},
		{
			"placeholder with go tests",
			model.ExecutionRequest{Image: "{project}", TestCommand: "go test ./..."},
			"golang:1.24-bookworm",
		},
		{
			"empty image defaults by command",
			model.ExecutionRequest{TestCommand: "npm test"},
			"node:20-bookworm",
		},
		{
			"public image passes through",
			model.ExecutionRequest{Image: "python:3.11", TestCommand: "pytest"},
			"python:3.11",
		},
		{
			"docker hub namespace passes through",
			model.ExecutionRequest{Image: "library/redis:7", TestCommand: "npm test"},
			"library/redis:7",
		},
		{
			"private registry falls back to default",
			model.ExecutionRequest{Image: "registry.corp.example.com/app:ci", TestCommand: "npm test"},
			"node:20-bookworm",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveImage(tc.req); got != tc.want {
				t.Errorf("resolveImage = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMergeEnvFixedKeysWin(t *testing.T) {
	caller := map[string]string{
		"DATABASE_URL": "postgres://attacker@evil:5432/x",
		"EXTRA":        "kept",
	}
	fixed := map[string]string{
		"DATABASE_URL": "postgres://test:test@db:5432/test",
	}

	merged := mergeEnv(caller, fixed)

	if merged["DATABASE_URL"] != fixed["DATABASE_URL"] {
		t.Errorf("DATABASE_URL = %q, fixed discovery key must win", merged["DATABASE_URL"])
	}
	if merged["EXTRA"] != "kept" {
		t.Error("caller-only keys must survive the merge")
	}
}

func TestIsMock(t *testing.T) {
	if !IsMock("mock-1234") {
		t.Error("mock-1234 should be synthetic")
	}
	if IsMock("local-1234") || IsMock("nomad-rig-1234") {
		t.Error("real ids must not read as synthetic")
	}
}
