package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bottlesync/cli/render"
	"github.com/pithecene-io/bottlesync/types"
)

// Exit codes for the run command.
const (
	exitSuccess = 0 // full success or no-op
	exitPartial = 1 // per-artifact failures or incomplete run
	exitFatal   = 2 // systemic failure, no progress guaranteed
)

// RunCommand returns the run command, the only command that transfers
// bytes.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute one sync run (fetch catalog, plan, transfer, commit)",
		Flags: append([]cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (assigned if empty)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Resync the full catalog, ignoring the manifest",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		}, ReadOnlyFlags()...),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	// SIGINT/SIGTERM cancel the run context. The engine drains in-flight
	// downloads and commits a final checkpoint before exiting.
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := buildWiring(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer w.Close()

	orchestrator, err := w.buildOrchestrator()
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	trigger := types.Trigger{
		RunID: c.String("run-id"),
		Force: c.Bool("force"),
	}
	result, err := orchestrator.Run(ctx, trigger)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	if !c.Bool("quiet") {
		printRunSummary(r, result)
		if err := r.Render(result); err != nil {
			return cli.Exit(err.Error(), exitFatal)
		}
	}

	return cli.Exit("", exitCodeFor(result))
}

// exitCodeFor maps a finalized result to the run exit code.
func exitCodeFor(result *types.SyncResult) int {
	switch {
	case result.Failed():
		return exitFatal
	case result.Incomplete || len(result.ArtifactsFailed) > 0:
		return exitPartial
	default:
		return exitSuccess
	}
}

// outcomeFor names the result state for the summary line.
func outcomeFor(result *types.SyncResult) string {
	switch {
	case result.Failed():
		return "failed"
	case result.Incomplete:
		return "incomplete"
	case len(result.ArtifactsFailed) > 0:
		return "partial"
	case result.ArtifactsSucceeded == 0:
		return "no-op"
	default:
		return "success"
	}
}

func printRunSummary(r *render.Renderer, result *types.SyncResult) {
	fmt.Fprintf(os.Stderr, "run_id=%s outcome=%s succeeded=%d failed=%d skipped=%d bytes=%d duration=%s\n",
		result.RunID,
		r.Outcome(outcomeFor(result)),
		result.ArtifactsSucceeded,
		len(result.ArtifactsFailed),
		result.ArtifactsSkipped,
		result.BytesTransferred,
		result.Duration.Round(time.Millisecond),
	)
}
