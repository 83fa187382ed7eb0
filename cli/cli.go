// Package cli implements the rig command surface: submit a test run,
// inspect or cancel it, and normalize raw test output.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"rig/config"
	"rig/executor"
	"rig/model"
	"rig/parser"
	"rig/sidecar"
)

const AppName = "rig"

type App struct {
	logger zerolog.Logger
	cli    *cli.App

	exec executor.Executor
}

func New() *App {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
	log.Logger = logger

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run a project's test suite in a disposable container group",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	app.cli.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Submit a test run",
			Action: app.run,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "repo", Usage: "Repository URL", Required: true},
				&cli.StringFlag{Name: "branch", Usage: "Branch to clone"},
				&cli.StringFlag{Name: "cmd", Usage: "Test command", Required: true},
				&cli.StringFlag{Name: "image", Usage: "Main container image"},
				&cli.StringFlag{Name: "project", Usage: "Project identifier"},
				&cli.StringSliceFlag{Name: "sidecar", Usage: "Sidecar name (repeatable)"},
				&cli.StringSliceFlag{Name: "env", Usage: "Extra KEY=VALUE for the main container (repeatable)"},
				&cli.IntFlag{Name: "timeout", Usage: "Timeout in seconds"},
				&cli.BoolFlag{Name: "wait", Usage: "Poll until the run is terminal and print parsed results"},
				&cli.StringFlag{Name: "framework", Usage: "Test framework hint: jest, pytest, or gotest"},
			},
		},
		{
			Name:      "status",
			Usage:     "Show an execution snapshot",
			ArgsUsage: "EXECUTION_ID",
			Action:    app.status,
		},
		{
			Name:      "logs",
			Usage:     "Print captured stdout and stderr",
			ArgsUsage: "EXECUTION_ID",
			Action:    app.logs,
		},
		{
			Name:      "cancel",
			Usage:     "Request cancellation of an execution",
			ArgsUsage: "EXECUTION_ID",
			Action:    app.cancel,
		},
		{
			Name:      "parse",
			Usage:     "Normalize raw test output from a file (or - for stdin)",
			ArgsUsage: "FILE",
			Action:    app.parse,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "framework", Usage: "Test framework hint: jest, pytest, or gotest"},
			},
		},
	}
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

func (a *App) executor() (executor.Executor, error) {
	if a.exec != nil {
		return a.exec, nil
	}
	cfg := config.Load()
	reg := sidecar.Builtin()
	if cfg.SidecarFile != "" {
		if err := reg.LoadFile(cfg.SidecarFile); err != nil {
			return nil, err
		}
	}
	ex, err := executor.New(cfg, reg)
	if err != nil {
		return nil, err
	}
	a.exec = ex
	return ex, nil
}

func (a *App) run(c *cli.Context) error {
	ex, err := a.executor()
	if err != nil {
		return err
	}

	env := make(map[string]string)
	for _, kv := range c.StringSlice("env") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
		}
		env[k] = v
	}

	req := model.ExecutionRequest{
		ProjectID:      c.String("project"),
		RepoURL:        c.String("repo"),
		Branch:         c.String("branch"),
		TestCommand:    c.String("cmd"),
		Image:          c.String("image"),
		Sidecars:       c.StringSlice("sidecar"),
		TimeoutSeconds: c.Int("timeout"),
		Env:            env,
	}

	id, err := ex.ExecuteTestRun(c.Context, req)
	if err != nil {
		return err
	}
	a.logger.Info().Str("execution", id).Msg("test run dispatched")
	fmt.Println(id)

	if !c.Bool("wait") {
		return nil
	}

	snap := a.poll(c.Context, ex, id)
	results := parser.Parse(snap.Stdout+"\n"+snap.Stderr, parser.Framework(c.String("framework")))
	return printJSON(map[string]any{
		"execution": snap,
		"results":   results,
	})
}

func (a *App) poll(ctx context.Context, ex executor.Executor, id string) *model.Execution {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		snap := ex.GetExecutionStatus(ctx, id)
		if snap.Status.Terminal() {
			return snap
		}
		select {
		case <-ctx.Done():
			return snap
		case <-ticker.C:
		}
	}
}

func (a *App) status(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: %s status EXECUTION_ID", AppName)
	}
	ex, err := a.executor()
	if err != nil {
		return err
	}
	return printJSON(ex.GetExecutionStatus(c.Context, id))
}

func (a *App) logs(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: %s logs EXECUTION_ID", AppName)
	}
	ex, err := a.executor()
	if err != nil {
		return err
	}
	stdout, stderr := ex.GetExecutionLogs(c.Context, id)
	fmt.Print(stdout)
	if stderr != "" {
		fmt.Fprint(os.Stderr, stderr)
	}
	return nil
}

func (a *App) cancel(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: %s cancel EXECUTION_ID", AppName)
	}
	ex, err := a.executor()
	if err != nil {
		return err
	}
	if ex.CancelExecution(c.Context, id) {
		a.logger.Info().Str("execution", id).Msg("cancellation accepted")
		return nil
	}
	return fmt.Errorf("cancellation not accepted for %s", id)
}

func (a *App) parse(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: %s parse FILE", AppName)
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	results := parser.Parse(string(raw), parser.Framework(c.String("framework")))
	return printJSON(results)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
