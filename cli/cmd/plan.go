package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bottlesync/cli/render"
	"github.com/pithecene-io/bottlesync/router"
	"github.com/pithecene-io/bottlesync/types"
)

// PlanResponse is the response for the plan command.
type PlanResponse struct {
	Path             types.PathKind `json:"path"`
	DeltaCount       int            `json:"delta_count"`
	EstimatedBytes   int64          `json:"estimated_bytes"`
	SkippedUpToDate  int            `json:"skipped_up_to_date"`
	ManifestRevision int64          `json:"manifest_revision"`
	ManifestEntries  int            `json:"manifest_entries"`
}

// PlanEntry is one delta row in verbose plan output.
type PlanEntry struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

// PlanCommand returns the plan command: compute and print the delta
// without transferring anything. Read-only, including the manifest.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Compute the sync delta without transferring (dry run)",
		Flags: append([]cli.Flag{
			ConfigFlag,
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Plan against an empty manifest",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "List every delta artifact instead of the summary",
			},
		}, ReadOnlyFlags()...),
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	w, err := buildWiring(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer w.Close()

	artifacts, err := w.catalog.Fetch(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	m, _, err := w.manifests.Load(c.Context)
	if err != nil {
		// plan never repairs; a corrupt manifest surfaces as-is
		return cli.Exit(err.Error(), 1)
	}

	planManifest := m
	if c.Bool("force") {
		planManifest = types.NewManifest()
	}

	plan := router.Plan(artifacts, planManifest, cfg.Sync.Platforms, cfg.SizeThresholdBytes())

	if c.Bool("verbose") {
		entries := make([]PlanEntry, 0, len(plan.Delta))
		for _, a := range plan.Delta {
			entries = append(entries, PlanEntry{
				Key:       a.Key(),
				SizeBytes: a.SizeBytes,
				URL:       a.DownloadURL,
			})
		}
		return r.Render(entries)
	}

	return r.Render(PlanResponse{
		Path:             plan.Path,
		DeltaCount:       len(plan.Delta),
		EstimatedBytes:   plan.EstimatedBytes,
		SkippedUpToDate:  plan.SkippedUpToDate,
		ManifestRevision: m.Revision,
		ManifestEntries:  len(m.Bottles),
	})
}
