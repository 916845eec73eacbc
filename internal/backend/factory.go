package backend

import (
	"context"
	"fmt"
	"time"

	"expenses/internal/log"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *log.Logger
	now    func() time.Time
}

// NewFactory creates a backend factory. A nil logger uses the default one.
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Component(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger, now: time.Now}
}

func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQL(ctx, storage.SQLite, config.SQLiteDBPath, "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		return f.createSQL(ctx, storage.Postgres, config.DatabaseURL)
	case MemoryBackend:
		return f.createMemory(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createSQL opens and migrates the database. The DSN is never logged since
// a PostgreSQL URL may carry a password.
func (f *DefaultFactory) createSQL(ctx context.Context, d storage.Dialect, dsn string, attrs ...any) (*Result, error) {
	repo, err := storage.Open(ctx, d, dsn, storage.WithClock(f.now))
	if err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", d, err)
	}

	f.logger.InfoContext(ctx, "Initialized SQL backend",
		append([]any{log.FieldBackend, d.String()}, attrs...)...)

	return &Result{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemory(ctx context.Context) (*Result, error) {
	store := memory.NewWithClock(f.now)
	f.logger.WarnContext(ctx, "Initialized memory backend, data is lost on exit",
		log.FieldBackend, MemoryBackend.String())
	return &Result{Store: store, Cleanup: store.Close}, nil
}
