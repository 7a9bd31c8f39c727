package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/xxxsen/docqa/internal/config"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// Store keeps uploaded originals so a document can be re-ingested later.
// Open and Delete report ErrNotFound for unknown keys; Delete of a missing
// key is not an error.
type Store interface {
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*(\.[a-z0-9]+)?$`)

func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(name))] = factory
}

func New(cfg config.FileStoreConfig) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Type))
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok || factory == nil {
		return nil, fmt.Errorf("unsupported file store type %q", cfg.Type)
	}
	return factory(cfg.Data)
}

// KeyFor names the stored original of a document.
func KeyFor(documentID, fileType string) string {
	if fileType == "" {
		return documentID
	}
	return documentID + "." + strings.ToLower(fileType)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("file store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode file store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode file store config: %w", err)
	}
	return nil
}

func validKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid file key %q: %w", key, appErr.ErrInvalid)
	}
	return nil
}
