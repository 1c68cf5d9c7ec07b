// Package config loads the settler's configuration from an optional .env file
// and SETTLER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/scan"
)

// Prefix is prepended to every environment variable name.
const Prefix = "SETTLER_"

// Config is immutable once loaded; pass it by value.
type Config struct {
	ListenAddr string
	DBPath     string

	// LedgerURL is the gateway root. Empty means rounds are read from the
	// local mirror and nothing is submitted.
	LedgerURL        string
	LedgerToken      string
	LedgerRPS        float64
	LedgerMaxRetries uint64

	// IngestToken guards the mirror ingest endpoint. Empty disables the check.
	IngestToken string

	RoundWindow      int
	BonusTable       engine.BonusTable
	LotteryMaxNumber int
	LotteryTicketLen int

	// Schedules maps a game to a cron spec. Games without one are only settled
	// on demand.
	Schedules map[round.Game]string

	// Submit sends settlement instructions; when false passes are planned and
	// logged only.
	Submit     bool
	ClearAfter time.Duration

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DBPath:           "settler.db",
		LedgerRPS:        20,
		LedgerMaxRetries: 3,
		RoundWindow:      scan.DefaultWindow,
		BonusTable:       engine.DefaultBonusTable(),
		LotteryMaxNumber: 36,
		LotteryTicketLen: 4,
		Schedules:        map[round.Game]string{},
		Submit:           true,
		ClearAfter:       round.DefaultClearAfter,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load reads envFile (".env" when empty, ignored if absent) into the process
// environment without overriding variables already set, then builds the
// configuration from the environment.
func Load(envFile string) (Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration from a variable lookup such as
// os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(Prefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs error
	if v, ok := get("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := get("DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := get("LEDGER_URL"); ok {
		cfg.LedgerURL = v
	}
	if v, ok := get("LEDGER_TOKEN"); ok {
		cfg.LedgerToken = v
	}
	if v, ok := get("INGEST_TOKEN"); ok {
		cfg.IngestToken = v
	}
	if v, ok := get("LEDGER_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		errs = multierr.Append(errs, wrap("LEDGER_RPS", err))
		cfg.LedgerRPS = f
	}
	if v, ok := get("LEDGER_MAX_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		errs = multierr.Append(errs, wrap("LEDGER_MAX_RETRIES", err))
		cfg.LedgerMaxRetries = n
	}
	if v, ok := get("ROUND_WINDOW"); ok {
		n, err := strconv.Atoi(v)
		errs = multierr.Append(errs, wrap("ROUND_WINDOW", err))
		cfg.RoundWindow = n
	}
	if v, ok := get("BONUS_TABLE"); ok {
		t, err := engine.ParseBonusTable(v)
		errs = multierr.Append(errs, wrap("BONUS_TABLE", err))
		cfg.BonusTable = t
	}
	if v, ok := get("LOTTERY_MAX_NUMBER"); ok {
		n, err := strconv.Atoi(v)
		errs = multierr.Append(errs, wrap("LOTTERY_MAX_NUMBER", err))
		cfg.LotteryMaxNumber = n
	}
	if v, ok := get("LOTTERY_TICKET_LEN"); ok {
		n, err := strconv.Atoi(v)
		errs = multierr.Append(errs, wrap("LOTTERY_TICKET_LEN", err))
		cfg.LotteryTicketLen = n
	}
	for _, g := range round.Games() {
		if v, ok := get(ScheduleKey(g)); ok {
			cfg.Schedules[g] = v
		}
	}
	if v, ok := get("SUBMIT"); ok {
		b, err := strconv.ParseBool(v)
		errs = multierr.Append(errs, wrap("SUBMIT", err))
		cfg.Submit = b
	}
	if v, ok := get("CLEAR_AFTER"); ok {
		d, err := time.ParseDuration(v)
		errs = multierr.Append(errs, wrap("CLEAR_AFTER", err))
		cfg.ClearAfter = d
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}

	if errs != nil {
		return Config{}, errs
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ScheduleKey is the variable name suffix holding game's cron spec, e.g.
// SCHEDULE_UP_OR_DOWN.
func ScheduleKey(g round.Game) string {
	return "SCHEDULE_" + strings.ToUpper(strings.ReplaceAll(string(g), "-", "_"))
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if c.ListenAddr == "" {
		errs = multierr.Append(errs, errors.New("listen address is empty"))
	}
	if c.DBPath == "" {
		errs = multierr.Append(errs, errors.New("database path is empty"))
	}
	if c.LedgerURL != "" {
		u, err := url.Parse(c.LedgerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("ledger url %q is not an http(s) URL", c.LedgerURL))
		}
	}
	if c.LedgerRPS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ledger rps must be positive, got %v", c.LedgerRPS))
	}
	if c.RoundWindow < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: got %d", scan.ErrInvalidWindow, c.RoundWindow))
	}
	if c.LotteryMaxNumber < 1 {
		errs = multierr.Append(errs, fmt.Errorf("lottery max number must be positive, got %d", c.LotteryMaxNumber))
	}
	if c.LotteryTicketLen < 1 || c.LotteryTicketLen > engine.MaxTicketLen {
		errs = multierr.Append(errs, fmt.Errorf("lottery ticket length %d outside 1..%d", c.LotteryTicketLen, engine.MaxTicketLen))
	}
	if c.ClearAfter < 0 {
		errs = multierr.Append(errs, fmt.Errorf("clear after must not be negative, got %s", c.ClearAfter))
	}
	return errs
}

// Dry reports whether passes are planned without submitting.
func (c Config) Dry() bool {
	return !c.Submit || c.LedgerURL == ""
}

func wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s%s: %w", Prefix, key, err)
}
