package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/organization-ai-projects/ai-search/internal/api"
	"github.com/organization-ai-projects/ai-search/internal/journal"
	"github.com/organization-ai-projects/ai-search/internal/logger"
	"github.com/organization-ai-projects/ai-search/internal/snapshot"
)

func serveCmd() *cli.Command {
	var o options

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the repository and interaction loop over HTTP",
		Flags: concat(
			[]cli.Flag{configFlag(&o)},
			loggingFlags(&o),
			specFlags(&o),
			runnerFlags(&o),
			storeFlags(&o),
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "addr",
					Usage:       "listen address",
					Value:       "127.0.0.1:8080",
					Destination: &o.Addr,
				},
				&cli.DurationFlag{
					Name:        "read-timeout",
					Usage:       "read header timeout",
					Value:       30 * time.Second,
					Destination: &o.ReadTimeout,
				},
				&cli.Float64Flag{
					Name:        "rate-limit",
					Usage:       "requests per second across all clients (0 = unlimited)",
					Value:       50,
					Destination: &o.RateLimit,
				},
				&cli.Int64Flag{
					Name:        "rate-burst",
					Usage:       "rate limiter burst size",
					Value:       20,
					Destination: &o.RateBurst,
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
			runner := ws.runner(&o)
			loop := ws.loop(&o, runner)
			if o.JournalPath != "" {
				j, err := journal.Open(o.JournalPath)
				if err != nil {
					return err
				}
				defer func() { _ = j.Close() }()
				loop.Recorder = j
			}

			server := api.NewServer(ws.repo, runner, loop, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RateLimit(o.RateLimit, int(o.RateBurst)))
			server.Register(e)

			log.Info("starting server", "address", o.Addr, "pool", loop.Pool())
			sc := echo.StartConfig{
				Address: o.Addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = o.ReadTimeout
					return nil
				},
			}
			serveErr := sc.Start(ctx, e)

			if o.SnapshotDir != "" {
				if err := snapshot.Save(o.SnapshotDir, ws.repo); err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}
				log.Info("saved snapshot", "dir", o.SnapshotDir, "commits", ws.repo.Len())
			}
			return serveErr
		},
	}
}
