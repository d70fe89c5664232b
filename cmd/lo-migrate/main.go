// Command lo-migrate runs the large-object migration engine: it reads
// binary blobs out of Postgres large objects, writes them to an
// object-store bucket keyed by their content hash, and records that hash
// back in the source table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pgerber/lo-migrate/internal/logging"
	"github.com/pgerber/lo-migrate/internal/migrate"
	"github.com/pgerber/lo-migrate/internal/pgdb"
	"github.com/pgerber/lo-migrate/internal/s3store"
)

var (
	dsnFlag       = &cli.StringFlag{Name: "dsn", Usage: "Postgres connection string", Required: true}
	bucketFlag    = &cli.StringFlag{Name: "bucket", Usage: "destination object-store bucket", Required: true}
	tableFlag     = &cli.StringFlag{Name: "table", Usage: "source table name", Required: true}
	legacyColFlag = &cli.StringFlag{Name: "legacy-hash-column", Value: "legacy_hash"}
	dataColFlag   = &cli.StringFlag{Name: "data-column", Value: "data_oid"}
	sizeColFlag   = &cli.StringFlag{Name: "size-column", Value: "declared_size"}
	mimeColFlag   = &cli.StringFlag{Name: "mime-column", Value: "mime_type"}
	targetColFlag = &cli.StringFlag{Name: "target-hash-column", Value: "target_hash"}

	receiverThreadsFlag  = &cli.IntFlag{Name: "receiver-threads"}
	storerThreadsFlag    = &cli.IntFlag{Name: "storer-threads"}
	committerThreadsFlag = &cli.IntFlag{Name: "committer-threads"}
	spillThresholdFlag   = &cli.Int64Flag{Name: "spill-threshold-bytes"}
	multipartChunkFlag   = &cli.Int64Flag{Name: "multipart-chunk-bytes"}
	commitBatchFlag      = &cli.IntFlag{Name: "commit-batch-size"}
	monitorIntervalFlag  = &cli.IntFlag{Name: "monitor-interval-seconds"}

	logDirFlag = &cli.StringFlag{Name: "log-dir"}
	debugFlag  = &cli.BoolFlag{Name: "debug"}
)

func main() {
	app := cli.NewApp()
	app.Name = "lo-migrate"
	app.Usage = "migrate Postgres large objects into a hash-keyed object store"
	app.Flags = []cli.Flag{
		dsnFlag, bucketFlag, tableFlag,
		legacyColFlag, dataColFlag, sizeColFlag, mimeColFlag, targetColFlag,
		receiverThreadsFlag, storerThreadsFlag, committerThreadsFlag,
		spillThresholdFlag, multipartChunkFlag, commitBatchFlag, monitorIntervalFlag,
		logDirFlag, debugFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := logging.New(logging.Options{Dir: cliCtx.String(logDirFlag.Name), Debug: cliCtx.Bool(debugFlag.Name)})
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()
	go handleTerminationSignals(cancel, logger)

	pool, err := pgxpool.New(ctx, cliCtx.String(dsnFlag.Name))
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	store := s3store.New(s3.NewFromConfig(awsCfg))

	db := pgdb.New(pool, pgdb.Schema{
		Table:            cliCtx.String(tableFlag.Name),
		LegacyHashColumn: cliCtx.String(legacyColFlag.Name),
		DataColumn:       cliCtx.String(dataColFlag.Name),
		SizeColumn:       cliCtx.String(sizeColFlag.Name),
		MimeColumn:       cliCtx.String(mimeColFlag.Name),
		TargetHashColumn: cliCtx.String(targetColFlag.Name),
	})

	if err := db.AddTargetHashColumn(ctx); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	if err := migrate.DisableBatchJob(ctx, db, migrate.BatchJobName, os.Stdout); err != nil {
		return fmt.Errorf("disabling batch job: %w", err)
	}

	cfg := migrate.Config{
		Bucket:             cliCtx.String(bucketFlag.Name),
		ReceiverThreads:    cliCtx.Int(receiverThreadsFlag.Name),
		StorerThreads:      cliCtx.Int(storerThreadsFlag.Name),
		CommitterThreads:   cliCtx.Int(committerThreadsFlag.Name),
		SpillThreshold:     cliCtx.Int64(spillThresholdFlag.Name),
		MultipartChunkSize: cliCtx.Int64(multipartChunkFlag.Name),
		CommitBatchSize:    cliCtx.Int(commitBatchFlag.Name),
		MonitorInterval:    cliCtx.Int(monitorIntervalFlag.Name),
	}

	engine, err := migrate.NewEngine(cfg, db, store, logger)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("running migration: %w", err)
	}

	logger.Info("migration finished",
		zap.Uint64("observed", result.Observed),
		zap.Uint64("received", result.Received),
		zap.Uint64("stored", result.Stored),
		zap.Uint64("committed", result.Committed),
		zap.Uint64("failed", result.Failed),
	)

	if result.ShouldExitNonZero() {
		os.Exit(1)
	}
	return nil
}

// handleTerminationSignals mirrors cmd/snapshots/main.go's signal handling:
// SIGTERM requests graceful shutdown via cancel, SIGINT terminates
// immediately.
func handleTerminationSignals(stopFunc func(), logger *zap.Logger) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	switch s := <-signalCh; s {
	case syscall.SIGTERM:
		logger.Info("stopping")
		stopFunc()
	case syscall.SIGINT:
		logger.Info("terminating")
		os.Exit(-int(syscall.SIGINT))
	}
}
