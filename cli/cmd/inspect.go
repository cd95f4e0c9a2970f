package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bottlesync/cli/render"
	"github.com/pithecene-io/bottlesync/journal"
)

// InspectCommand returns the inspect command: replay a run journal and
// print its summary or raw records.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Replay a run journal",
		ArgsUsage: "<journal-file>",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "records",
				Usage: "Print every record instead of the summary",
			},
		}, ReadOnlyFlags()...),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.NArg() != 1 {
		return cli.Exit("usage: bottlesync inspect <journal-file>", 1)
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer f.Close()

	// A truncated tail is expected after a crash and reported in the
	// summary, not treated as a read failure.
	records, truncated, err := journal.ReadAll(f)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("records") {
		return r.Render(records)
	}
	return r.Render(journal.Summarize(records, truncated))
}
