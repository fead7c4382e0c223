package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/organization-ai-projects/ai-search/internal/delta"
	"github.com/organization-ai-projects/ai-search/internal/journal"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/snapshot"
)

func inspectCmd() *cli.Command {
	var (
		o         options
		commit    string
		limit     int64
		recent    int64
		showBlobs bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the commit history of a snapshot",
		Flags: concat(
			[]cli.Flag{configFlag(&o)},
			loggingFlags(&o),
			storeFlags(&o),
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "commit",
					Aliases:     []string{"c"},
					Usage:       "walk parents from this commit instead of listing all",
					Destination: &commit,
				},
				&cli.Int64Flag{
					Name:        "limit",
					Usage:       "max commits printed with --commit (0 = all)",
					Destination: &limit,
				},
				&cli.Int64Flag{
					Name:        "recent",
					Usage:       "journal entries printed with --journal",
					Value:       10,
					Destination: &recent,
				},
				&cli.BoolFlag{
					Name:        "blobs",
					Usage:       "also list stored blob ids",
					Destination: &showBlobs,
				},
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, err := prepare(ctx, cmd, &o)
			if err != nil {
				return err
			}
			if o.SnapshotDir == "" {
				return fmt.Errorf("--snapshot is required")
			}
			r, err := snapshot.Load(o.SnapshotDir)
			if err != nil {
				return err
			}

			commits := r.History()
			if commit != "" {
				commits, err = r.Log(repo.CommitID(commit), int(limit))
				if err != nil {
					return err
				}
			}
			if err := printHistory(os.Stdout, r, commits); err != nil {
				return err
			}
			if showBlobs {
				printBlobs(os.Stdout, r)
			}
			if o.JournalPath != "" {
				return printJournal(ctx, os.Stdout, o.JournalPath, int(recent))
			}
			return nil
		},
	}
}

// printHistory renders commits with their params and delta chains.
func printHistory(w io.Writer, r *repo.Repo, commits []repo.Commit) error {
	_, _ = fmt.Fprintln(w, "\n--- Commit history ---")
	for _, c := range commits {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = string(p)
		}
		_, _ = fmt.Fprintf(w, "Commit %s\n", c.ID)
		_, _ = fmt.Fprintf(w, "  Parents: [%s]\n", strings.Join(parents, ", "))
		_, _ = fmt.Fprintf(w, "  Message: %s\n", c.Meta.Message)
		_, _ = fmt.Fprintf(w, "  Forked: %t\n", c.Meta.Forked)
		for _, name := range c.ParamNames() {
			pv := c.Params[name]
			b, err := r.GetBlob(pv.Blob)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "    Param: %s %s\n", name, b.Shape)
			_, _ = fmt.Fprintf(w, "      Blob: %s\n", pv.Blob)
			_, _ = fmt.Fprintf(w, "      Deltas: %d\n", len(pv.Deltas))
			for i, d := range pv.Deltas {
				_, _ = fmt.Fprintf(w, "        [%d] %s\n", i, delta.Describe(d))
			}
		}
	}
	_, _ = fmt.Fprintln(w, "----------------------")
	return nil
}

func printBlobs(w io.Writer, r *repo.Repo) {
	ids := r.Blobs().IDs()
	_, _ = fmt.Fprintf(w, "Blobs (%d):\n", len(ids))
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "  %s\n", id)
	}
}

func printJournal(ctx context.Context, w io.Writer, path string, n int) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	entries, err := j.Recent(ctx, n)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Journal (%d most recent):\n", len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("  %s step=%d domain=%s commit_used=%s score=%.3f",
			e.Time.Format(time.DateTime), e.Step, e.Domain, e.CommitUsed, e.Score)
		if e.NewCommit != "" {
			line += fmt.Sprintf(" new=%s param=%s", e.NewCommit, e.Param)
		}
		if e.Forked {
			line += " forked"
		}
		if e.Packed {
			line += " packed"
		}
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}
