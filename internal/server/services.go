package server

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/openlocale/openlocale/internal/github"
	"github.com/openlocale/openlocale/internal/parser"
	"github.com/openlocale/openlocale/internal/parser/flatjson"
	"github.com/openlocale/openlocale/internal/snapshot"
	"github.com/openlocale/openlocale/internal/sync"
)

type Services struct {
	Sync *sync.Service
}

func NewServices(config *Config, db *sqlx.DB) (*Services, error) {
	ghClient, err := github.New(&config.GitHub)
	if err != nil {
		return nil, fmt.Errorf("create github client: %w", err)
	}

	registry := parser.NewRegistry(
		flatjson.New(),
	)

	var opts []sync.ServiceOption
	if config.Snapshot.Bucket != "" {
		snapshots, err := snapshot.NewS3Store(&config.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("create snapshot store: %w", err)
		}
		opts = append(opts, sync.WithSnapshots(snapshots))
		slog.Info("snapshots enabled", "bucket", config.Snapshot.Bucket)
	}

	syncSvc, err := sync.NewService(db, ghClient, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sync service: %w", err)
	}

	return &Services{Sync: syncSvc}, nil
}
