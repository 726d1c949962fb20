package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inavhq/clawdvault-sdk/internal/config"
	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/internal/storage/migrations"
	pgstore "github.com/inavhq/clawdvault-sdk/internal/storage/postgres"
	"github.com/inavhq/clawdvault-sdk/pkg/clawdvault"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
)

// app is the wiring shared by all commands, built once flags are parsed.
type app struct {
	configFile string
	envFile    string
	jsonOut    bool

	cfg     *config.Config
	logger  *logrus.Entry
	metrics *observability.Metrics
	client  *clawdvault.Client

	closers []func() error
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "clawdvault",
		Short:         "Trade, chat and stream on the ClawdVault token launchpad",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./clawdvault.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with CLAWDVAULT_* overrides")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newTokensCmd(a),
		newTokenCmd(a),
		newQuoteCmd(a),
		newBuyCmd(a),
		newSellCmd(a),
		newCreateCmd(a),
		newPendingCmd(a),
		newReconcileCmd(a),
		newBalanceCmd(a),
		newNetworkCmd(a),
		newChatCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configFile, a.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogConfig())
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.logger = logrus.NewEntry(logger)

	if cfg.Metrics.Addr != "" {
		a.metrics = observability.NewMetrics("clawdvault", prometheus.DefaultRegisterer)
		a.serveMetrics(cfg.Metrics.Addr)
	}

	opts := []clawdvault.Option{
		clawdvault.WithLogger(a.logger),
		clawdvault.WithMetrics(a.metrics),
	}

	wallet, err := loadSigner(ctx, cfg)
	if err != nil {
		return err
	}
	if wallet != nil {
		opts = append(opts, clawdvault.WithSigner(wallet))
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		opts = append(opts, clawdvault.WithJournal(pgstore.NewJournal(pool)))
	}

	client, err := clawdvault.New(cfg.ClientConfig(), opts...)
	if err != nil {
		return err
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	token := cfg.Session.Token
	if token == "" {
		token, err = readSession(cfg.Session.File)
		if err != nil {
			return err
		}
	}
	if token != "" {
		client.SetSessionToken(token)
	}
	return nil
}

func loadSigner(ctx context.Context, cfg *config.Config) (signer.Signer, error) {
	switch {
	case cfg.Wallet.Keypair != "":
		return signer.LoadKeypairFile(expandHome(cfg.Wallet.Keypair))
	case cfg.Wallet.BridgeURL != "":
		return signer.NewBridgeSigner(ctx, cfg.Wallet.BridgeURL)
	}
	return nil, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("metrics server")
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func readSession(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeSession(path, token string) error {
	if path == "" {
		return nil
	}
	if token == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
