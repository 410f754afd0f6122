package paper

import (
	"fmt"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/db"
)

// Provide opens the configured database backend, initializes the repository
// and returns it with a cleanup function.
func Provide(cfg *config.Config, log *logger.Logger) (Repository, func() error, error) {
	switch cfg.Database.Driver {
	case "postgres":
		conn, err := db.OpenPostgres(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pool := db.NewSinglePool(conn)
		repo, err := NewPostgresRepository(pool, log)
		if err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	default:
		writer, err := db.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite writer: %w", err)
		}
		reader, err := db.OpenSQLiteReader(cfg.Database.Path)
		if err != nil {
			_ = writer.Close()
			return nil, nil, fmt.Errorf("open sqlite reader: %w", err)
		}
		pool := db.NewPool(writer, reader)
		repo, err := NewSQLiteRepository(pool, log)
		if err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	}
}
