// Command wmsctl runs operator tasks against the warehouse database and job queue.
//
//	wmsctl import -file orders.xlsx [-dry-run] [-json]
//	wmsctl repair -line ACME_0000042 [-enqueue] [-json]
//	wmsctl sweep [-batch 200] [-enqueue] [-json]
//	wmsctl queue [-scheduled 5] [-json]
//	wmsctl migrate [-down N]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-wms/cmd/wmsctl/cli"
	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/importer"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
	"github.com/odyssey-erp/odyssey-wms/migrations"
)

const usage = `usage: wmsctl <command> [flags]

commands:
  import   create order lines from a .csv or .xlsx file
  repair   replay the receiving ledger of one line
  sweep    replay every line and repair drift
  queue    show job queue depths
  migrate  apply or roll back schema migrations
`

func main() {
	if len(os.Args) < 2 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		os.Exit(cli.ExitFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(cli.ExitFailed)
	}
	// Logs go to stderr so -json output stays machine readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	code := run(ctx, cfg, logger, os.Args[1], os.Args[2:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	jsonOut := fs.Bool("json", false, "print machine readable JSON")

	switch command {
	case "import":
		path := fs.String("file", "", "Required: .csv or .xlsx file to import")
		dryRun := fs.Bool("dry-run", false, "preview expected units without writing")
		if fs.Parse(args) != nil {
			return cli.ExitFailed
		}
		var creator importer.LineCreator
		if !*dryRun {
			svc, closeFn, err := openService(ctx, cfg, logger)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "import: %v\n", err)
				return cli.ExitFailed
			}
			defer closeFn()
			creator = svc
		}
		return cli.ImportCommand(ctx, importer.New(creator, logger), cli.ImportOptions{
			Output: cli.Output{JSONOutput: *jsonOut},
			Path:   *path,
			DryRun: *dryRun,
		})

	case "repair":
		lineID := fs.String("line", "", "Required: line id, e.g. ACME_0000042")
		enqueue := fs.Bool("enqueue", false, "hand the repair to the worker instead of running it here")
		if fs.Parse(args) != nil {
			return cli.ExitFailed
		}
		if *enqueue {
			return withJobs(cfg, func(jobsCLI *cli.JobsCLI) int {
				return cli.EnqueueRepairCommand(ctx, jobsCLI, cli.EnqueueOptions{LineID: *lineID})
			})
		}
		svc, closeFn, err := openService(ctx, cfg, logger)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "repair: %v\n", err)
			return cli.ExitFailed
		}
		defer closeFn()
		return cli.RepairCommand(ctx, svc, cli.RepairOptions{Output: cli.Output{JSONOutput: *jsonOut}, LineID: *lineID})

	case "sweep":
		batch := fs.Int("batch", cfg.ReconcileSweepBatch, "lines per page")
		enqueue := fs.Bool("enqueue", false, "hand the sweep to the worker instead of running it here")
		if fs.Parse(args) != nil {
			return cli.ExitFailed
		}
		if *enqueue {
			return withJobs(cfg, func(jobsCLI *cli.JobsCLI) int {
				return cli.EnqueueSweepCommand(ctx, jobsCLI, cli.EnqueueOptions{Batch: *batch})
			})
		}
		svc, closeFn, err := openService(ctx, cfg, logger)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			return cli.ExitFailed
		}
		defer closeFn()
		return cli.SweepCommand(ctx, svc, cli.SweepOptions{Output: cli.Output{JSONOutput: *jsonOut}, Batch: *batch})

	case "queue":
		scheduled := fs.Int("scheduled", 0, "also list this many scheduled maintenance tasks")
		if fs.Parse(args) != nil {
			return cli.ExitFailed
		}
		return withJobs(cfg, func(jobsCLI *cli.JobsCLI) int {
			return cli.QueueCommand(ctx, jobsCLI, cli.QueueOptions{Output: cli.Output{JSONOutput: *jsonOut}, Scheduled: *scheduled})
		})

	case "migrate":
		down := fs.Int("down", 0, "roll back this many migrations instead of applying")
		if fs.Parse(args) != nil {
			return cli.ExitFailed
		}
		migrator, err := db.NewMigrator(migrations.FS, cfg.PGDSN)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return cli.ExitFailed
		}
		defer func() { _ = migrator.Close() }()
		return cli.MigrateCommand(migrator, cli.MigrateOptions{Output: cli.Output{JSONOutput: *jsonOut}, Down: *down})

	case "help", "-h", "--help":
		_, _ = fmt.Fprint(os.Stdout, usage)
		return cli.ExitOK
	}

	_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
	return cli.ExitFailed
}

// openService connects to Postgres and Redis and builds the warehouse service.
// A missing Redis only disables caching.
func openService(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*warehouseorders.Service, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, nil, err
	}
	closers := []io.Closer{}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, cache invalidation skipped", slog.Any("error", err))
	} else {
		closers = append(closers, redisClient)
	}
	svc := warehouseorders.NewService(warehouseorders.NewRepository(pool), warehouseorders.ServiceDeps{
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Cache:       cache.NewCache(redisClient, "wms", cfg.SnapshotCacheTTL),
		Logger:      logger,
	})
	return svc, func() {
		for _, c := range closers {
			_ = c.Close()
		}
		pool.Close()
	}, nil
}

func withJobs(cfg *app.Config, fn func(*cli.JobsCLI) int) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitFailed
	}
	defer func() { _ = jobsCLI.Close() }()
	return fn(jobsCLI)
}
