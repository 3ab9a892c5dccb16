package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/jorge-barreto/docchain/internal/config"
	"github.com/jorge-barreto/docchain/internal/docs"
	"github.com/jorge-barreto/docchain/internal/doctor"
	"github.com/jorge-barreto/docchain/internal/inputs"
	"github.com/jorge-barreto/docchain/internal/invoke"
	"github.com/jorge-barreto/docchain/internal/logging"
	"github.com/jorge-barreto/docchain/internal/metrics"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/repair"
	"github.com/jorge-barreto/docchain/internal/scaffold"
	"github.com/jorge-barreto/docchain/internal/scheduler"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/store"
	"github.com/jorge-barreto/docchain/internal/ux"
	"github.com/jorge-barreto/docchain/internal/validate"
	"github.com/jorge-barreto/docchain/internal/watch"
)

func main() {
	app := &cli.Command{
		Name:        "docchain",
		Usage:       "Generate a chain of validated design documents",
		Description: "Run 'docchain docs' for documentation on config, stages, contracts, and more.",
		Commands: []*cli.Command{
			initCmd(),
			runCmd(),
			statusCmd(),
			graphCmd(),
			validateCmd(),
			doctorCmd(),
			docsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run every stage whose artifact is missing or stale",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the stage plan without executing"},
			&cli.BoolFlag{Name: "watch", Usage: "Keep running and regenerate when input files change"},
			&cli.StringSliceFlag{Name: "rerun", Usage: "Regenerate `STAGE` even if its artifact is fresh (repeatable)"},
			&cli.StringSliceFlag{Name: "input", Usage: "Supply an input stage from a file or glob: `STAGE=PATH` (repeatable)"},
			&cli.IntFlag{Name: "max-parallel", Usage: "Stages generated concurrently (overrides config)"},
			&cli.BoolFlag{Name: "fresh", Usage: "Discard previous artifacts and start over"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Copy the structured run log to stderr at debug level"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Run log level: debug, info, warn, or error"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			cfg := p.Config

			// CLAUDECODE guard
			if cfg.Invoker.Type == config.InvokerClaude && os.Getenv("CLAUDECODE") != "" {
				return fmt.Errorf("docchain cannot drive claude from inside Claude Code (CLAUDECODE env var is set). Run from a regular terminal")
			}

			specs, err := p.inputSpecs(cmd.StringSlice("input"))
			if err != nil {
				return err
			}
			if cmd.Bool("dry-run") {
				return dryRun(p, specs)
			}
			if err := invoke.Preflight(cfg.Invoker); err != nil {
				return err
			}

			if cmd.Bool("fresh") {
				if err := state.Reset(p.ArtifactsDir); err != nil {
					return err
				}
			}
			if err := state.EnsureDir(p.ArtifactsDir); err != nil {
				return err
			}

			logOpts := logging.Options{Level: logging.ParseLevel(cmd.String("log-level"))}
			if cmd.Bool("verbose") {
				logOpts = logging.Options{Level: slog.LevelDebug, Verbose: os.Stderr}
			}
			logger, err := logging.Open(p.ArtifactsDir, logOpts)
			if err != nil {
				return err
			}
			defer logger.Close()

			repo, err := p.openRepository()
			if err != nil {
				return fmt.Errorf("opening run state: %w", err)
			}
			defer repo.Close()
			prev, err := repo.Load(ctx)
			if err != nil && !errors.Is(err, state.ErrNoRun) {
				return fmt.Errorf("loading run state: %w", err)
			}

			supplied, err := inputs.Load(p.Root, specs)
			if err != nil {
				return err
			}

			run := state.NewRun(cfg.Name)
			env := p.environment(run.RunID)
			m := metrics.New()
			console := ux.NewConsole(os.Stdout)
			log := logger.With("run", run.RunID)

			maxParallel := cfg.MaxParallel
			if n := cmd.Int("max-parallel"); n > 0 {
				maxParallel = int(n)
			}
			sched := &scheduler.Scheduler{
				Registry: p.Registry,
				Store:    store.New(),
				Repair: &repair.Controller{
					Invoker:     invoke.New(cfg.Invoker, env, state.LogDir(p.ArtifactsDir)),
					Policy:      cfg,
					Instruction: p.instruction(env),
					Journal:     state.Journal{Dir: p.ArtifactsDir},
					Metrics:     m,
					Logger:      log,
				},
				Budget:      func(st registry.Stage) int { return cfg.Budget(st.ID, st.Contract.Kind) },
				MaxParallel: maxParallel,
				State:       run,
				Repository:  repo,
				Workspace:   p.ArtifactsDir,
				Timing:      &state.Timing{},
				Progress:    console,
				Metrics:     m,
				Logger:      logger.Logger,
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			opts := scheduler.Options{Rerun: cmd.StringSlice("rerun")}
			if cmd.Bool("watch") {
				w, err := watch.New(watch.Config{Root: p.Root, Inputs: specs, Logger: log})
				if err != nil {
					return err
				}
				w.Prime(supplied)
				go w.Run(ctx)
				opts.Updates = w.Updates()
				opts.OnIdle = func(*scheduler.Result) { console.Watching(len(specs)) }
			}

			console.RunHeader(cfg.Name, run.RunID, p.Registry.Len())
			res, runErr := sched.Run(ctx, seed(p.Registry, prev, supplied), opts)
			if err := m.WriteFile(filepath.Join(p.ArtifactsDir, "metrics.prom")); err != nil {
				log.Warn("failed to write metrics", "error", err)
			}
			if res != nil {
				timing, _ := state.LoadTiming(p.ArtifactsDir)
				fmt.Println()
				ux.RenderStatus(os.Stdout, p.Registry, run, timing)
			}
			if errors.Is(runErr, context.Canceled) {
				if cmd.Bool("watch") {
					return nil
				}
				console.ResumeHint()
				return fmt.Errorf("interrupted")
			}
			if runErr != nil {
				return runErr
			}
			if !res.OK() {
				console.ResumeHint()
				return fmt.Errorf("%d stage(s) failed, %d blocked", len(res.Failed), len(res.Blocked))
			}
			console.Success(len(res.Succeeded))
			return nil
		},
	}
}

// dryRun prints the stage waves and which inputs would be supplied.
func dryRun(p *project, specs map[string]string) error {
	waves, err := scheduler.Plan(p.Registry)
	if err != nil {
		return err
	}
	fmt.Printf("%sPlan for %s%s\n\n", ux.Bold, p.Config.Name, ux.Reset)
	ux.RenderGraph(os.Stdout, p.Registry, waves)
	fmt.Printf("\n%sInputs:%s\n", ux.Bold, ux.Reset)
	for _, st := range p.Registry.Stages() {
		if !st.Input {
			continue
		}
		spec, ok := specs[st.ID]
		if !ok {
			fmt.Printf("  %-18s %s(not supplied)%s\n", st.ID, ux.Dim, ux.Reset)
			continue
		}
		files, err := inputs.Resolve(p.Root, spec)
		if err != nil {
			fmt.Printf("  %-18s %s%s: %v%s\n", st.ID, ux.Red, spec, err, ux.Reset)
			continue
		}
		fmt.Printf("  %-18s %s (%d file(s))\n", st.ID, spec, len(files))
	}
	fmt.Println()
	return nil
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stages of the latest run",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			run, err := p.lastRun(ctx)
			if err != nil {
				return fmt.Errorf("loading run state: %w", err)
			}
			if run == nil {
				fmt.Println("No runs yet. Start one with 'docchain run'.")
				return nil
			}
			timing, _ := state.LoadTiming(p.ArtifactsDir)
			ux.RenderStatus(os.Stdout, p.Registry, run, timing)
			return nil
		},
	}
}

func graphCmd() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Show the stage dependency graph as execution waves",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			waves, err := scheduler.Plan(p.Registry)
			if err != nil {
				return err
			}
			ux.RenderGraph(os.Stdout, p.Registry, waves)
			return nil
		},
	}
}

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a file against a stage's output contract",
		ArgsUsage: "<stage> <file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("usage: docchain validate <stage> <file>")
			}
			p, err := loadProject()
			if err != nil {
				return err
			}
			id, path := cmd.Args().Get(0), cmd.Args().Get(1)
			st, ok := p.Registry.Stage(id)
			if !ok {
				return fmt.Errorf("unknown stage %q", id)
			}
			if st.Input {
				return fmt.Errorf("stage %q is an input and has no contract", id)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			// Reference rules check against the latest accepted upstream artifacts.
			upstream := make(map[string]string)
			run, err := p.lastRun(ctx)
			if err != nil {
				return fmt.Errorf("loading run state: %w", err)
			}
			if run != nil {
				for _, dep := range st.Deps() {
					if rec, ok := run.Stages[dep]; ok && rec.Status == state.StatusSucceeded {
						upstream[dep] = rec.Content
					}
				}
			}

			res := validate.Validate(st, string(data), upstream)
			if res.Accepted() {
				fmt.Printf("%s✓ %s satisfies the %s contract%s\n", ux.Green, path, id, ux.Reset)
				return nil
			}
			fmt.Print(res.Feedback())
			return res.Err(id)
		},
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Diagnose a failed stage using the configured generator",
		ArgsUsage: "[stage]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			run, err := p.lastRun(ctx)
			if err != nil {
				return fmt.Errorf("loading run state: %w", err)
			}
			if run == nil {
				fmt.Println("No runs yet.")
				return nil
			}
			if err := invoke.Preflight(p.Config.Invoker); err != nil {
				return err
			}
			env := p.environment(run.RunID)
			inv := invoke.New(p.Config.Invoker, env, state.LogDir(p.ArtifactsDir))
			return doctor.Run(ctx, os.Stdout, p.ArtifactsDir, p.Config, p.Registry, run, cmd.Args().First(), inv)
		},
	}
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a new .docchain/ directory with example config and inputs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "registry", Usage: "Also write the built-in stage chain to .docchain/registry.yaml for editing"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			return scaffold.Init(dir, os.Stdout, scaffold.Options{EjectRegistry: cmd.Bool("registry")})
		},
	}
}

func docsCmd() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "Show documentation",
		ArgsUsage: "[topic]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				fmt.Print("\nAvailable topics:\n\n")
				for _, t := range docs.All() {
					fmt.Printf("  %-14s %s\n", t.Name, t.Summary)
				}
				fmt.Println("\nRun 'docchain docs <topic>' to read a topic.")
				return nil
			}
			t, err := docs.Get(name)
			if err != nil {
				return err
			}
			fmt.Print(t.Content)
			return nil
		},
	}
}
