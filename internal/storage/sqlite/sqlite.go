// Package sqlite stores deals in a local SQLite file. Each deal is kept as a
// JSON document next to the columns the pipeline queries on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id TEXT PRIMARY KEY,
	source_site TEXT NOT NULL,
	external_id TEXT NOT NULL,
	guid TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	translation_status TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (source_site, external_id)
);
CREATE INDEX IF NOT EXISTS deals_guid ON deals (source_site, guid);
CREATE INDEX IF NOT EXISTS deals_content_hash ON deals (content_hash, created_at);
CREATE INDEX IF NOT EXISTS deals_translation ON deals (translation_status, created_at);
`

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (and if needed creates) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*models.Deal, error) {
	var id, data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(id, data)
}

func decode(id, data string) (*models.Deal, error) {
	var deal models.Deal
	if err := json.Unmarshal([]byte(data), &deal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deal %s: %w", id, err)
	}
	deal.ID = id
	return &deal, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Deal, error) {
	deal, err := s.queryOne(ctx, `SELECT id, data FROM deals WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	return deal, nil
}

func (s *Store) GetByExternalID(ctx context.Context, source, guid string) (*models.Deal, error) {
	deal, err := s.queryOne(ctx, `SELECT id, data FROM deals WHERE source_site = ? AND guid = ? LIMIT 1`, source, guid)
	if err != nil {
		return nil, fmt.Errorf("failed to query deal by guid %s: %w", guid, err)
	}
	return deal, nil
}

func (s *Store) GetByContentHash(ctx context.Context, hash string, since time.Time) (*models.Deal, error) {
	deal, err := s.queryOne(ctx,
		`SELECT id, data FROM deals WHERE content_hash = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 1`,
		hash, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query deal by content hash %s: %w", hash, err)
	}
	return deal, nil
}

func (s *Store) ExistingExternalIDs(ctx context.Context, source string, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(ids) == 0 {
		return known, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, source)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT external_id FROM deals WHERE source_site = ? AND external_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing deals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

func (s *Store) Create(ctx context.Context, deal *models.Deal) (string, error) {
	if deal.ID == "" {
		deal.ID = models.DealID(deal.SourceSite, deal.ExternalID)
	}
	data, err := json.Marshal(deal)
	if err != nil {
		return "", fmt.Errorf("failed to marshal deal %s: %w", deal.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, source_site, external_id, guid, content_hash, translation_status, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		deal.ID, deal.SourceSite, deal.ExternalID, deal.GUID, deal.ContentHash,
		string(deal.TranslationStatus), deal.CreatedAt.UnixNano(), string(data))
	if err != nil {
		return "", fmt.Errorf("failed to create deal %s: %w", deal.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", models.ErrDealExists
	}
	return deal.ID, nil
}

// modify runs a read-modify-write of one deal inside a transaction.
func (s *Store) modify(ctx context.Context, id string, fn func(*models.Deal)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM deals WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	deal, err := decode(id, data)
	if err != nil {
		return err
	}
	fn(deal)

	out, err := json.Marshal(deal)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE deals SET guid = ?, content_hash = ?, translation_status = ?, data = ? WHERE id = ?`,
		deal.GUID, deal.ContentHash, string(deal.TranslationStatus), string(out), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Update(ctx context.Context, id string, patch models.DealPatch) error {
	if err := s.modify(ctx, id, patch.Apply); err != nil {
		return fmt.Errorf("failed to update deal %s: %w", id, err)
	}
	return nil
}

func (s *Store) IncrementDuplicateCount(ctx context.Context, id string, seenAt time.Time) error {
	err := s.modify(ctx, id, func(d *models.Deal) {
		d.DuplicateCount++
		d.LastSeenAt = seenAt
		d.UpdatedAt = seenAt
	})
	if err != nil {
		return fmt.Errorf("failed to increment duplicate count of %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetUntranslated(ctx context.Context, limit int) ([]*models.Deal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM deals WHERE translation_status = ? ORDER BY created_at ASC LIMIT ?`,
		string(models.TranslationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query untranslated deals: %w", err)
	}
	defer rows.Close()

	var out []*models.Deal
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deal, err := decode(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, deal)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTranslation(ctx context.Context, id string, fields models.TranslationFields, meta models.TranslationMeta) error {
	err := s.modify(ctx, id, func(d *models.Deal) { models.ApplyTranslation(d, fields, meta) })
	if err != nil {
		return fmt.Errorf("failed to update translation of %s: %w", id, err)
	}
	return nil
}

func (s *Store) CountDeals(ctx context.Context, source string) (int64, error) {
	var n int64
	var err error
	if source == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deals`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deals WHERE source_site = ?`, source).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count deals: %w", err)
	}
	return n, nil
}
