package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/organization-ai-projects/ai-search/internal/journal"
	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/snapshot"
)

func learnCmd() *cli.Command {
	var o options

	return &cli.Command{
		Name:  "learn",
		Usage: "Run the online learning loop over two alternating domain requests",
		Flags: concat(
			[]cli.Flag{configFlag(&o)},
			loggingFlags(&o),
			specFlags(&o),
			runnerFlags(&o),
			storeFlags(&o),
			[]cli.Flag{
				&cli.Int64Flag{
					Name:        "steps",
					Aliases:     []string{"n"},
					Usage:       "interaction steps to run",
					Value:       10,
					Destination: &o.Steps,
				},
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, err := prepare(ctx, cmd, &o)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			ws, err := openWorkspace(ctx, &o)
			if err != nil {
				return err
			}
			loop := ws.loop(&o, ws.runner(&o))
			if o.JournalPath != "" {
				j, err := journal.Open(o.JournalPath)
				if err != nil {
					return err
				}
				defer func() {
					if err := j.Close(); err != nil {
						log.Warn("closing journal", "error", err)
					}
				}()
				loop.Recorder = j
			}

			if err := runLearn(ctx, os.Stdout, loop, demoRequests(ws.spec), int(o.Steps)); err != nil {
				return err
			}
			if o.SnapshotDir != "" {
				if err := snapshot.Save(o.SnapshotDir, ws.repo); err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}
				log.Info("saved snapshot", "dir", o.SnapshotDir, "commits", ws.repo.Len(), "blobs", ws.repo.Blobs().Len())
			}
			return printHistory(os.Stdout, ws.repo, ws.repo.History())
		},
	}
}

// runLearn alternates reqs for steps interaction steps and prints one line
// per step.
func runLearn(ctx context.Context, w io.Writer, loop *learner.Loop, reqs []demoRequest, steps int) error {
	if len(reqs) == 0 {
		return fmt.Errorf("no requests to run")
	}
	for i := range steps {
		dr := reqs[i%len(reqs)]
		res, err := loop.Step(ctx, dr.req)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		printStep(w, dr.label, res)
	}
	return nil
}

func printStep(w io.Writer, label string, res learner.StepResult) {
	var y0 float32
	if len(res.Response.Y) > 0 {
		y0 = res.Response.Y[0]
	}
	_, _ = fmt.Fprintf(w, "Step %d | %s commit_used=%s score=%.3f y[0]=%.3f",
		res.Step, label, res.Response.CommitUsed, res.Response.Score, y0)
	if res.NewCommit != "" {
		_, _ = fmt.Fprintf(w, " -> %s (%s %s)", res.NewCommit, res.Param, res.Delta)
	}
	if res.Packed {
		_, _ = fmt.Fprint(w, " [packed]")
	}
	if res.Forked {
		_, _ = fmt.Fprint(w, " [forked]")
	}
	if res.Consolidated {
		_, _ = fmt.Fprint(w, " [consolidated]")
	}
	_, _ = fmt.Fprintln(w)
}
