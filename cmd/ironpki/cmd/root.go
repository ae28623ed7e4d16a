package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironpki/internal/config"
	"github.com/jmcleod/ironpki/journal"
	bboltjournal "github.com/jmcleod/ironpki/journal/bbolt"
	pgjournal "github.com/jmcleod/ironpki/journal/postgres"
	"github.com/jmcleod/ironpki/pki"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile     string
	pkiDir      string
	easyRSADir  string
	journalPath string
	logLevel    string
	logFormat   string
	envFile     string

	promptPasswords bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ironpki",
	Short: "IronPKI manages an Easy-RSA certificate authority",
	Long: `IronPKI drives an Easy-RSA installation to initialise a key-store, build a
certificate authority, issue, revoke and renew certificates and publish
revocation lists, from the command line or over HTTP.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		memguard.SafeExit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Path to YAML configuration file")
	pf.StringVar(&pkiDir, "pki", "", "Key-store directory (default easy-rsa/pki)")
	pf.StringVar(&easyRSADir, "easyrsa", "", "Easy-RSA installation directory (default /usr/share/easy-rsa)")
	pf.StringVar(&journalPath, "journal", "", "Operation journal: a BBolt file path or a postgres:// URL")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&envFile, "env-file", "", "Load environment variables (e.g. IRONPKI_CA_PASSWORD) from a dotenv file")
	pf.BoolVar(&promptPasswords, "prompt", false, "Prompt on the terminal for passwords not supplied by file or environment")
}

// setup loads the configuration file, applies flag overrides and installs
// the default logger.
func setup(cmd *cobra.Command, _ []string) error {
	// Variables already set in the environment win over the file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	var err error
	if cfgFile != "" {
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	overrides := map[string]*string{
		"pki":        &cfg.PKI,
		"easyrsa":    &cfg.EasyRSA,
		"journal":    &cfg.Journal,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	values := map[string]string{
		"pki":        pkiDir,
		"easyrsa":    easyRSADir,
		"journal":    journalPath,
		"log-level":  logLevel,
		"log-format": logFormat,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst = values[name]
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
	return nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// journalStore is a journal repository that holds an open database.
type journalStore interface {
	journal.Repository
	Close() error
}

// openJournal opens the configured journal. A postgres:// or postgresql://
// URL selects PostgreSQL; anything else is a BBolt file path. It returns
// nil when no journal is configured.
func openJournal() (journalStore, error) {
	switch {
	case cfg.Journal == "":
		return nil, nil
	case strings.HasPrefix(cfg.Journal, "postgres://"), strings.HasPrefix(cfg.Journal, "postgresql://"):
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := pgjournal.NewRepositoryFromDSN(ctx, cfg.Journal)
		if err != nil {
			// The DSN may carry a password; do not echo it.
			return nil, fmt.Errorf("opening postgres journal: %w", err)
		}
		return store, nil
	default:
		store, err := bboltjournal.NewRepositoryFromFile(cfg.Journal, &bbolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("opening journal %s: %w", cfg.Journal, err)
		}
		return store, nil
	}
}

// session is an open key-store handle plus its journal, which is nil when
// none is configured.
type session struct {
	*pki.PKI
	journal *journal.Journal
	close   func()
}

// openSession builds a PKI handle from the loaded config, recording into the
// journal when one is configured. extra options are applied last. The
// session's close func waits for background tasks and closes the journal.
func openSession(extra ...pki.Option) (*session, error) {
	logger := slog.Default()
	opts := cfg.Options()
	opts = append(opts, pki.WithLogger(logger))

	store, err := openJournal()
	if err != nil {
		return nil, err
	}
	var j *journal.Journal
	if store != nil {
		j = journal.New(store)
		opts = append(opts, pki.WithRecorder(j))
	}
	opts = append(opts, extra...)

	p, err := pki.New(opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	closeFn := func() {
		p.Wait()
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("closing journal", "error", err)
			}
		}
	}
	return &session{PKI: p, journal: j, close: closeFn}, nil
}

// openPKI is openSession for commands that do not need the journal.
func openPKI(extra ...pki.Option) (*pki.PKI, func(), error) {
	s, err := openSession(extra...)
	if err != nil {
		return nil, nil, err
	}
	return s.PKI, s.close, nil
}

// report prints tool output and turns a PKI error into a readable one.
func report(cmd *cobra.Command, out string, err error) error {
	if out != "" {
		fmt.Fprint(cmd.OutOrStdout(), out)
	}
	if err == nil {
		return nil
	}
	var ce *pki.CommandError
	if errors.As(err, &ce) {
		return fmt.Errorf("%s (%s): %w", ce.Command, pki.ErrorKind(err), err)
	}
	return err
}
