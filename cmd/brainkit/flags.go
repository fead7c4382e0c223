package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/mlp"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
)

// options collects every flag value a command may read. Each command owns
// its own copy.
type options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Debug      bool

	DIn     int64
	DHidden int64
	DOut    int64
	Seed    int64

	KCand     int64
	KPool     int64
	Workers   int64
	TieMargin float64
	Steps     int64

	SnapshotDir string
	JournalPath string

	Addr        string
	ReadTimeout time.Duration
	RateLimit   float64
	RateBurst   int64
}

func (o *options) spec() mlp.Spec {
	return mlp.Spec{DIn: int(o.DIn), DHidden: int(o.DHidden), DOut: int(o.DOut)}
}

func configFlag(o *options) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       configPath(),
		Destination: &o.ConfigPath,
	}
}

func loggingFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &o.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &o.LogFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &o.Debug,
		},
	}
}

func specFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "d-in",
			Usage:       "network input size",
			Value:       int64(mlp.DefaultSpec.DIn),
			Destination: &o.DIn,
		},
		&cli.Int64Flag{
			Name:        "d-hidden",
			Usage:       "network hidden size",
			Value:       int64(mlp.DefaultSpec.DHidden),
			Destination: &o.DHidden,
		},
		&cli.Int64Flag{
			Name:        "d-out",
			Usage:       "network output size",
			Value:       int64(mlp.DefaultSpec.DOut),
			Destination: &o.DOut,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for bootstrap weights and the learner",
			Value:       123,
			Destination: &o.Seed,
		},
	}
}

func runnerFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "k-cand",
			Usage:       "candidates evaluated per request",
			Value:       scenario.KCand,
			Destination: &o.KCand,
		},
		&cli.Int64Flag{
			Name:        "k-pool",
			Usage:       "commits kept in the candidate pool",
			Value:       learner.KPool,
			Destination: &o.KPool,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "concurrent forward passes (0 = GOMAXPROCS)",
			Destination: &o.Workers,
		},
		&cli.Float64Flag{
			Name:        "tie-margin",
			Usage:       "score gap below which the top two candidates are re-evaluated",
			Value:       scenario.TieMargin,
			Destination: &o.TieMargin,
		},
	}
}

func storeFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "snapshot",
			Aliases:     []string{"s"},
			Usage:       "snapshot directory",
			Destination: &o.SnapshotDir,
		},
		&cli.StringFlag{
			Name:        "journal",
			Aliases:     []string{"j"},
			Usage:       "path to the sqlite step journal",
			Destination: &o.JournalPath,
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
