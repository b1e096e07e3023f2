package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"github.com/joho/godotenv"

	"gtdetl/internal/config"
	"gtdetl/internal/metrics"
	ddmetrics "gtdetl/internal/metrics/datadog"
	"gtdetl/internal/oplog"
	"gtdetl/internal/pipeline"
	"gtdetl/internal/storage"
	_ "gtdetl/internal/storage/all"
)

func main() { os.Exit(run()) }

func run() int {
	var (
		cfgPath        string
		validateOnly   bool
		reset          bool
		verbose        bool
		metricsBackend string
	)
	flag.StringVar(&cfgPath, "config", "", "path to pipeline config JSON")
	flag.BoolVar(&validateOnly, "validate", false, "validate the config and exit")
	flag.BoolVar(&reset, "reset", false, "empty the warehouse tables and exit")
	flag.BoolVar(&verbose, "v", false, "log pipeline stages to stderr")
	flag.StringVar(&metricsBackend, "metrics", "none", `metrics backend: "none" or "datadog"`)
	flag.Parse()

	if cfgPath == "" {
		fmt.Fprintln(os.Stderr, "usage: gtdetl -config path/to/pipeline.json [-validate] [-reset] [-v]")
		return 2
	}

	// Local development convenience; credentials normally come from the
	// real environment.
	_ = godotenv.Load()

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		return 1
	}
	var cfg config.Pipeline
	if err := json.Unmarshal(raw, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		return 1
	}

	bad := false
	for _, issue := range config.ValidatePipeline(cfg) {
		fmt.Fprintf(os.Stderr, "config %s: %s: %s\n", issue.Severity, issue.Path, issue.Message)
		if issue.Severity == config.SeverityError {
			bad = true
		}
	}
	if validateOnly {
		if bad {
			return 1
		}
		fmt.Println("config ok")
		return 0
	}
	if bad {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch metricsBackend {
	case "none":
	case "datadog":
		be, err := ddmetrics.NewBackend(ctx, ddmetrics.Options{JobName: cfg.Job})
		if err != nil {
			fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
			return 1
		}
		metrics.SetBackend(be)
	default:
		fmt.Fprintf(os.Stderr, "unknown metrics backend %q\n", metricsBackend)
		return 2
	}
	defer func() {
		if err := metrics.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "metrics close: %v\n", err)
		}
	}()

	dsn := os.ExpandEnv(cfg.Storage.DB.DSN)
	repo, err := backoff.Retry(ctx, func() (storage.Repository, error) {
		r, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: dsn})
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect %s: %v\n", cfg.Storage.Kind, err)
		}
		return r, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(4))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer repo.Close()

	eng := &pipeline.Engine{Repo: repo, Ops: oplog.New(repo)}
	if verbose {
		eng.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	if reset {
		if err := eng.Reset(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "reset: %v\n", err)
			return 1
		}
		fmt.Println("reset ok")
		return 0
	}

	rep, err := eng.Run(ctx, cfg)
	if rep != nil {
		fmt.Print(rep.Summary())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}
	if rep.Failed() {
		return 1
	}
	return 0
}
