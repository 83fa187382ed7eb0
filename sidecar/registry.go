package sidecar

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Spec describes one sidecar service a test run can depend on. Env is
// fixed at registry-definition time; Discovery holds the environment
// injected into the main container, with "{host}" standing in for the
// sidecar's address on the execution network.
type Spec struct {
	Name      string            `yaml:"name" json:"name"`
	Image     string            `yaml:"image" json:"image"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	MemoryMB  int               `yaml:"memory,omitempty" json:"memory,omitempty"`
	CPUMHz    int               `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Port      int               `yaml:"port,omitempty" json:"port,omitempty"`
	Discovery map[string]string `yaml:"discovery,omitempty" json:"discovery,omitempty"`
}

// Registry is the single source of truth for which sidecars exist. Both
// executor backends consult it and never duplicate its contents.
type Registry struct {
	specs map[string]Spec
}

// Builtin returns the registry preloaded with the stock sidecar table.
func Builtin() *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	for _, s := range builtinSpecs {
		r.specs[s.Name] = s
	}
	return r
}

var builtinSpecs = []Spec{
	{
		Name:  "postgres",
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		MemoryMB: 512,
		CPUMHz:   500,
		Port:     5432,
		Discovery: map[string]string{
			"POSTGRES_HOST": "{host}",
			"POSTGRES_PORT": "5432",
			"DATABASE_URL":  "postgres://test:test@{host}:5432/test",
		},
	},
	{
		Name:     "redis",
		Image:    "redis:7-alpine",
		MemoryMB: 256,
		CPUMHz:   250,
		Port:     6379,
		Discovery: map[string]string{
			"REDIS_HOST": "{host}",
			"REDIS_PORT": "6379",
			"REDIS_URL":  "redis://{host}:6379/0",
		},
	},
	{
		Name:  "mysql",
		Image: "mysql:8",
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "test",
			"MYSQL_DATABASE":      "test",
		},
		MemoryMB: 768,
		CPUMHz:   500,
		Port:     3306,
		Discovery: map[string]string{
			"MYSQL_HOST": "{host}",
			"MYSQL_PORT": "3306",
			"MYSQL_URL":  "mysql://root:test@{host}:3306/test",
		},
	},
}

type registryFile struct {
	Sidecars []Spec `yaml:"sidecars"`
}

// LoadFile merges operator-defined sidecars from a YAML file over the
// built-in table. Entries with the same name replace the built-in one.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sidecar file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse sidecar file: %w", err)
	}
	for _, s := range f.Sidecars {
		if s.Name == "" || s.Image == "" {
			return fmt.Errorf("sidecar file: entries need both name and image")
		}
		r.specs[s.Name] = s
	}
	return nil
}

// Lookup returns the spec for a sidecar name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Resolve maps requested names to specs. Unknown names are skipped with a
// warning so a run proceeds with degraded dependencies instead of failing.
func (r *Registry) Resolve(names []string) []Spec {
	var out []Spec
	for _, name := range names {
		s, ok := r.specs[name]
		if !ok {
			log.Warn().Str("sidecar", name).Msg("unknown sidecar requested, skipping")
			continue
		}
		out = append(out, s)
	}
	return out
}

// DiscoveryEnv assembles the fixed service-discovery variables for a set
// of resolved sidecars. host maps a spec to the address the main
// container should use for it.
func DiscoveryEnv(specs []Spec, host func(Spec) string) map[string]string {
	env := make(map[string]string)
	for _, s := range specs {
		h := host(s)
		for k, v := range s.Discovery {
			env[k] = strings.ReplaceAll(v, "{host}", h)
		}
	}
	return env
}
