// Command bankdemo opens a bank account, moves money and prints the balance reloaded through the repository.
// With -serve it exposes the same accounts over HTTP instead.
//
// Storage is selected by configuration, see the config package:
//
//	ESAGG_EVENT_STORE_BACKEND=postgres ESAGG_POSTGRES_DSN=postgres://... ESAGG_SNAPSHOTS_STORE=redis bankdemo
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/example/bankaccount"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

// options are the command line flags.
type options struct {
	configPath           string
	observabilityEnabled bool
	serveAddr            string
}

func main() {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flag.BoolVar(&opts.observabilityEnabled, "observability-enabled", false, "Record metrics and traces, same as ESAGG_OBSERVABILITY_ENABLED=true")
	flag.StringVar(&opts.serveAddr, "serve", "", "Serve the accounts HTTP API on this address, e.g. :8080, instead of running the scenario")

	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("bankdemo failed: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	cfg.Observability.Enabled = cfg.Observability.Enabled || opts.observabilityEnabled

	obs := newObservability(cfg.Observability, logger)
	defer obs.shutdown(context.Background(), logger)

	a, err := newApp(ctx, cfg, logger, obs)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.serveAddr != "" {
		return serve(ctx, opts.serveAddr, newRouter(a, obs, logger), logger)
	}

	accountID := identifier.New()
	commands := []command.Command{
		bankaccount.OpenAccount{AccountID: accountID, Owner: "Jane Doe", OpeningBalance: 950},
		bankaccount.DebitAccount{AccountID: accountID, Amount: 50},
		bankaccount.CreditAccount{AccountID: accountID, Amount: 120},
		bankaccount.DebitAccount{AccountID: accountID, Amount: 350},
	}

	for _, cmd := range commands {
		if err := a.bus.Send(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd.CommandType(), err)
		}
	}

	account, err := a.accounts.Load(ctx, accountID)
	if err != nil {
		return err
	}

	projected, _ := a.projection.Balance(accountID)

	logger.InfoContext(ctx, "bankdemo finished",
		slog.String("account_id", accountID.String()),
		slog.String("event_store", cfg.EventStore.Backend),
		slog.String("snapshot_store", cfg.Snapshots.Store),
	)

	fmt.Printf("account %s: balance %d at version %d (projected balance %d)\n",
		accountID, account.Balance(), account.Version(), projected)

	return nil
}
