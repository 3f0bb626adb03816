package navigation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/postgres"
)

const createPagesTable = `
CREATE TABLE IF NOT EXISTS site_pages (
	page_id    TEXT PRIMARY KEY,
	base_url   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store keeps the site manifest in PostgreSQL so several search replicas
// resolve against the same published site.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "manifest-store"),
	}
}

// EnsureSchema creates the site_pages table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.client.Migrate(ctx, createPagesTable)
}

// Publish upserts every page of m in one transaction.
func (s *Store) Publish(ctx context.Context, m *StaticManifest) error {
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO site_pages (page_id, base_url) VALUES ($1, $2)
			ON CONFLICT (page_id) DO UPDATE SET base_url = EXCLUDED.base_url, updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, id := range m.PageIDs() {
			u, _ := m.PageURL(id)
			if _, err := stmt.ExecContext(ctx, id, u); err != nil {
				return fmt.Errorf("upserting page %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("manifest published", "pages", m.Len())
	return nil
}

// Load reads the whole table into a StaticManifest snapshot.
func (s *Store) Load(ctx context.Context) (*StaticManifest, error) {
	rows, err := s.client.DB.QueryContext(ctx, `SELECT page_id, base_url FROM site_pages`)
	if err != nil {
		return nil, fmt.Errorf("querying site pages: %w", err)
	}
	defer rows.Close()
	pages := make(map[string]string)
	for rows.Next() {
		var id, u string
		if err := rows.Scan(&id, &u); err != nil {
			return nil, fmt.Errorf("scanning site page: %w", err)
		}
		pages[id] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating site pages: %w", err)
	}
	s.logger.Info("manifest loaded", "pages", len(pages))
	return &StaticManifest{pages: pages}, nil
}
