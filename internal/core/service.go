package core

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
)

// ServiceConfig tunes the Service.
type ServiceConfig struct {
	// PreviewMax caps the change records returned by PreviewImport; the
	// counts are never capped. Zero returns every record.
	PreviewMax int

	// KeyTTL is how long a commit idempotency key replays its result.
	// Zero uses DefaultKeyTTL.
	KeyTTL time.Duration
}

// DefaultKeyTTL applies when ServiceConfig.KeyTTL is zero.
const DefaultKeyTTL = 24 * time.Hour

// Service provides the fleet exchange operations over a PostgreSQL pool.
type Service struct {
	pool       *pgxpool.Pool
	previewMax int
	keyTTL     time.Duration
}

// NewService creates a new Service instance.
func NewService(pool *pgxpool.Pool, cfg ServiceConfig) *Service {
	ttl := cfg.KeyTTL
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &Service{
		pool:       pool,
		previewMax: cfg.PreviewMax,
		keyTTL:     ttl,
	}
}

// Catalog returns the field catalog of every registered entity.
func (s *Service) Catalog() Catalog {
	return CurrentCatalog()
}

func (s *Service) queries() *db.Queries {
	return db.New(s.pool)
}
