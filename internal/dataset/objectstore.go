package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/maerai/maer/internal/query/duckdb"
	"github.com/maerai/maer/internal/storage"
)

const maxParallelDownloads = 4

// ObjectStoreSource downloads csv and parquet objects under a prefix into a
// scratch directory and loads them as tables. The directory is removed once
// the tables exist.
type ObjectStoreSource struct {
	store  storage.ObjectStore
	prefix string
}

func NewObjectStoreSource(store storage.ObjectStore, prefix string) (*ObjectStoreSource, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &ObjectStoreSource{store: store, prefix: prefix}, nil
}

func (s *ObjectStoreSource) Name() string {
	return "s3"
}

func (s *ObjectStoreSource) Materialize(ctx context.Context, engine *duckdb.Engine) ([]string, error) {
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "maer-dataset-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	seen := map[string]string{}
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if _, _, ok := fileRelation(name); !ok {
			continue
		}
		if previous, dup := seen[name]; dup {
			return nil, fmt.Errorf("objects %q and %q map to the same table", previous, obj.Key)
		}
		seen[name] = obj.Key
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelDownloads)
	for name, key := range seen {
		group.Go(func() error {
			return s.download(groupCtx, key, filepath.Join(scratch, name))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return registerFiles(ctx, engine, scratch)
}

func (s *ObjectStoreSource) download(ctx context.Context, key, dst string) error {
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return file.Close()
}
