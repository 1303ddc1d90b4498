package dataset

import (
	"context"
	"fmt"

	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/dataset/postgres"
	"github.com/maerai/maer/internal/storage/s3"
)

// SourceFromConfig builds the source selected by MAER_DATASET_SOURCE.
func SourceFromConfig(ctx context.Context, cfg config.DatasetConfig) (Source, error) {
	switch cfg.Source {
	case config.DatasetSourceDir:
		return NewDirSource(cfg.Path)
	case config.DatasetSourceS3:
		store, err := s3.New(ctx, s3.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, err
		}
		return NewObjectStoreSource(store, "")
	case config.DatasetSourcePostgres:
		db, err := postgres.Open(ctx, postgres.DBConfig{DSN: cfg.Postgres.DSN, MaxOpenConns: 4})
		if err != nil {
			return nil, err
		}
		return postgres.NewSource(db, cfg.Postgres.Schema), nil
	default:
		return nil, fmt.Errorf("unsupported dataset source %q", cfg.Source)
	}
}
