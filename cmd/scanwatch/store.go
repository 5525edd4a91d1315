package main

import (
	"context"
	"fmt"

	"github.com/hakim/scanwatch/internal/config"
	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/parser"
	"github.com/hakim/scanwatch/internal/service"
	"github.com/hakim/scanwatch/internal/storage"
	"github.com/hakim/scanwatch/internal/storage/postgres"
	"github.com/hakim/scanwatch/internal/tools"
)

// historyStore is a scan history backend the commands can browse and close.
type historyStore interface {
	service.Store
	Get(ctx context.Context, id string) (*models.StoredScan, error)
	Targets(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// openStore opens the backend selected by storage.driver.
func openStore(ctx context.Context, c config.StorageConfig) (historyStore, error) {
	switch c.Driver {
	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, c.Postgres)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverBolt, "":
		return storage.NewStore(c.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}

// newService opens the history store and wires a Service around it. The
// nmap executable is resolved only when requireScanner is set, so history
// commands work on hosts without nmap.
func newService(ctx context.Context, requireScanner bool) (*service.Service, historyStore, error) {
	var scanner service.Scanner = unavailableScanner{}
	if requireScanner {
		nmap, err := tools.NewNmapScanner(cfg.Scanner.Path, cfg.ScanTimeout())
		if err != nil {
			return nil, nil, fmt.Errorf("%w. Run 'scanwatch check' for install instructions", err)
		}
		scanner = nmap
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("opening scan history: %w", err)
	}

	svc := service.New(scanner, parser.New(), store, service.WithScope(&cfg.Scope))
	return svc, store, nil
}

type unavailableScanner struct{}

func (unavailableScanner) Scan(context.Context, string, models.Options) (string, string, error) {
	return "", "", scanerr.ErrExecutableNotFound
}
