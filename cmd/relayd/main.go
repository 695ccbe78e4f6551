package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"git.home.luguber.info/inful/eventrelay/internal/config"
	"git.home.luguber.info/inful/eventrelay/internal/contact"
	"git.home.luguber.info/inful/eventrelay/internal/daemon"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
	"git.home.luguber.info/inful/eventrelay/internal/report"
	"git.home.luguber.info/inful/eventrelay/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"relay.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct {
	} `cmd:"" help:"Run the relay daemon: poll the outbox, publish events, drive the built-in consumers"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Stats struct {
	} `cmd:"" help:"Print outbox backlog statistics as JSON"`

	Requeue struct {
		ID string `arg:"" help:"Identifier of the failed outbox record to requeue"`
	} `cmd:"" help:"Reset a failed outbox record to pending with a fresh retry budget"`

	Seed struct {
		Location    string `short:"l" help:"Report location" default:"Bergen"`
		RequestedBy string `short:"r" help:"Requester address" default:"operator@example.com"`
	} `cmd:"" help:"Insert a demo report request into the outbox"`

	Contact struct {
		Create struct {
			FirstName string `arg:"" help:"First name"`
			LastName  string `arg:"" help:"Last name"`
			Company   string `short:"o" help:"Company name"`
		} `cmd:"" help:"Create a contact and emit a ContactCreated event"`

		Update struct {
			ID        string `arg:"" help:"Contact identifier"`
			FirstName string `arg:"" help:"First name"`
			LastName  string `arg:"" help:"Last name"`
			Company   string `short:"o" help:"Company name"`
		} `cmd:"" help:"Update a contact and emit a ContactUpdated event"`

		Delete struct {
			ID string `arg:"" help:"Contact identifier"`
		} `cmd:"" help:"Delete a contact and emit a ContactDeleted event"`
	} `cmd:"" help:"Manage contacts; every mutation goes through the outbox"`

	Version struct {
	} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	switch ctx.Command() {
	case "daemon":
		cfg := loadConfig()
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", CLI.Config)
	case "stats":
		if err := runStats(loadConfig()); err != nil {
			slog.Error("Stats failed", "error", err)
			os.Exit(1)
		}
	case "requeue <id>":
		if err := runRequeue(loadConfig(), CLI.Requeue.ID); err != nil {
			slog.Error("Requeue failed", "error", err)
			os.Exit(1)
		}
	case "seed":
		if err := runSeed(loadConfig(), CLI.Seed.Location, CLI.Seed.RequestedBy); err != nil {
			slog.Error("Seed failed", "error", err)
			os.Exit(1)
		}
	case "contact create <first-name> <last-name>",
		"contact update <id> <first-name> <last-name>",
		"contact delete <id>":
		if err := runContact(loadConfig(), ctx.Command()); err != nil {
			slog.Error("Contact command failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("relayd %s (built %s, commit %s)\n", version.Version, version.BuildTime, version.GitCommit)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func runDaemon(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return daemon.New(cfg, CLI.Config).Run(ctx)
}

// openStore opens the configured outbox store for the offline commands.
func openStore(ctx context.Context, cfg *config.Config) (outbox.Store, error) {
	if cfg.Store.Driver == config.StoreDriverPostgres {
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store, err := outbox.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	}
	return outbox.NewSQLiteStore(cfg.Store.DSN)
}

func runStats(cfg *config.Config) error {
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := relay.NewService(store, nil, relay.Config{})
	stats, err := svc.Statistics(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runRequeue(cfg *config.Config, id string) error {
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := relay.NewService(store, nil, relay.Config{})
	if err := svc.Requeue(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Requeued %s\n", id)
	return nil
}

// runSeed inserts a report request directly into the outbox so a running
// daemon picks it up on its next poll.
func runSeed(cfg *config.Config, location, requestedBy string) error {
	if cfg.Store.Driver != config.StoreDriverSQLite {
		return fmt.Errorf("seed requires the sqlite store driver")
	}

	ctx := context.Background()
	store, err := outbox.NewSQLiteStore(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := report.NewStore(store.DB())
	if err != nil {
		return err
	}

	r, err := report.NewService(reports, store, nil).Request(ctx, location, requestedBy)
	if err != nil {
		return err
	}
	fmt.Printf("Requested report %s for %s\n", r.ID, r.Location)
	return nil
}

// runContact mutates a contact through the outbox so the running daemon's
// audit consumer sees the matching event.
func runContact(cfg *config.Config, command string) error {
	if cfg.Store.Driver != config.StoreDriverSQLite {
		return fmt.Errorf("contact commands require the sqlite store driver")
	}

	ctx := context.Background()
	store, err := outbox.NewSQLiteStore(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	contacts, err := contact.NewStore(store.DB())
	if err != nil {
		return err
	}
	svc := contact.NewService(contacts, store)

	switch command {
	case "contact create <first-name> <last-name>":
		c, err := svc.Create(ctx, contact.Input{
			FirstName: CLI.Contact.Create.FirstName,
			LastName:  CLI.Contact.Create.LastName,
			Company:   CLI.Contact.Create.Company,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created contact %s\n", c.ID)
	case "contact update <id> <first-name> <last-name>":
		id, err := uuid.Parse(CLI.Contact.Update.ID)
		if err != nil {
			return fmt.Errorf("parse contact id: %w", err)
		}
		c, err := svc.Update(ctx, id, contact.Input{
			FirstName: CLI.Contact.Update.FirstName,
			LastName:  CLI.Contact.Update.LastName,
			Company:   CLI.Contact.Update.Company,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Updated contact %s\n", c.ID)
	case "contact delete <id>":
		id, err := uuid.Parse(CLI.Contact.Delete.ID)
		if err != nil {
			return fmt.Errorf("parse contact id: %w", err)
		}
		if err := svc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted contact %s\n", id)
	}
	return nil
}
