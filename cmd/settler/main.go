// Command settler runs the round settlement daemon: it serves the operator
// API and settles each game on its configured cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/api"
	"github.com/lamas-finance/round-settler/internal/config"
	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/ledger"
	"github.com/lamas-finance/round-settler/internal/logging"
	"github.com/lamas-finance/round-settler/internal/metrics"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/scheduler"
	"github.com/lamas-finance/round-settler/internal/settle"
	"github.com/lamas-finance/round-settler/internal/store"
)

const (
	passTimeout     = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (default .env if present)")
	once := flag.Bool("once", false, "settle every game once and exit")
	opName := flag.String("op", "", "run one lifecycle operation (start, go-live, end-live, cleanup, cancel) and exit")
	gameName := flag.String("game", "", "game the -op flag applies to")
	flag.Parse()

	mode := runMode{once: *once}
	if *opName != "" {
		op, err := settle.ParseOp(*opName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "op: %v\n", err)
			os.Exit(2)
		}
		game, err := round.ParseGame(*gameName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "game: %v\n", err)
			os.Exit(2)
		}
		mode.op, mode.game = op, game
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, mode); err != nil {
		logger.Error("settler exited", zap.Error(err))
		os.Exit(1)
	}
}

// runMode selects a one-shot pass instead of the daemon.
type runMode struct {
	once bool
	op   settle.Op
	game round.Game
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, mode runMode) (err error) {
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if n, err := db.RecoverInterrupted(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("recovered interrupted settlement runs", zap.Int64("runs", n))
	}

	m := metrics.New()
	settler, err := newSettler(cfg, db, logger, m)
	if err != nil {
		return err
	}

	switch {
	case mode.op != "":
		results, err := settler.RunOp(ctx, mode.game, mode.op)
		if settle.Idle(err) {
			logger.Info("nothing to do", zap.String("game", string(mode.game)), zap.String("op", string(mode.op)), zap.Error(err))
			return nil
		}
		logger.Info("op finished", zap.String("game", string(mode.game)), zap.String("op", string(mode.op)), zap.Int("steps", len(results)))
		return err
	case mode.once:
		results, err := settler.SettleAll(ctx, round.Games())
		for g, rs := range results {
			logger.Info("settled", zap.String("game", string(g)), zap.Int("steps", len(rs)))
		}
		for _, idle := range settle.IdleErrors(err) {
			logger.Info("nothing to settle", zap.Error(idle))
		}
		return settle.Significant(err)
	}

	sched := scheduler.New(settler, logger, passTimeout)
	for g, spec := range cfg.Schedules {
		if err := sched.Add(g, spec); err != nil {
			return err
		}
	}

	server := api.NewServer(api.Options{
		Settler:          settler,
		Runs:             db,
		DB:               db,
		Mirror:           db,
		IngestToken:      cfg.IngestToken,
		Metrics:          m,
		Scheduler:        sched,
		Logger:           logger,
		LotteryMaxNumber: cfg.LotteryMaxNumber,
		LotteryTicketLen: cfg.LotteryTicketLen,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Bool("dry_run", settler.Dry()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	sched.Start()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = multierr.Combine(err, srv.Shutdown(shutdownCtx), sched.Stop(shutdownCtx))
	return err
}

// newSettler reads from the ledger gateway when one is configured and from the
// local mirror otherwise.
func newSettler(cfg config.Config, db *store.SQLiteDB, logger *zap.Logger, m *metrics.Metrics) (*settle.Settler, error) {
	lottery := games.DefaultLottery()
	lottery.MaxNumber = cfg.LotteryMaxNumber
	lottery.TicketLen = cfg.LotteryTicketLen
	registry := games.NewRegistry(
		lottery,
		games.DefaultSpinner(),
		games.PricePredictGame{Limits: engine.DefaultLimits()},
		games.UpOrDownGame{},
	)

	opts := []settle.Option{
		settle.WithJournal(db),
		settle.WithRegistry(registry),
		settle.WithLogger(logger),
		settle.WithMetrics(m),
	}

	var reader settle.Reader = db
	if cfg.LedgerURL != "" {
		client, err := ledger.NewClient(ledger.Config{
			BaseURL:           cfg.LedgerURL,
			Token:             cfg.LedgerToken,
			RequestsPerSecond: cfg.LedgerRPS,
			MaxRetries:        cfg.LedgerMaxRetries,
			Logger:            logger.Named("ledger"),
		})
		if err != nil {
			return nil, err
		}
		reader = client
		opts = append(opts, settle.WithSubmitter(client))
	}

	return settle.New(settle.Config{
		Window:     cfg.RoundWindow,
		BonusTable: cfg.BonusTable,
		ClearAfter: cfg.ClearAfter,
		Submit:     !cfg.Dry(),
	}, reader, opts...)
}
