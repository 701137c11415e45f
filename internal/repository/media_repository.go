package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/iconidentify/grabba-media/internal/domain"
)

const mediaTable = "media"

// SQLiteMediaRepository implements MediaRepository on a SQLite file.
type SQLiteMediaRepository struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

// mediaRow is the SQLite shape of domain.CompletedMedia. created_at is
// stored as unix milliseconds.
type mediaRow struct {
	ID        string `db:"id"`
	URL       string `db:"url"`
	Kind      string `db:"media_type"`
	FileName  string `db:"file_name"`
	CreatedAt int64  `db:"created_at"`
}

func (r mediaRow) toDomain() *domain.CompletedMedia {
	return &domain.CompletedMedia{
		ID:        r.ID,
		URL:       r.URL,
		Kind:      domain.MediaKind(r.Kind),
		FileName:  r.FileName,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// NewSQLiteMediaRepository opens (creating if needed) the catalog at path.
func NewSQLiteMediaRepository(ctx context.Context, path string) (*SQLiteMediaRepository, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS media (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			media_type TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_media_created_at ON media(created_at);
		CREATE INDEX IF NOT EXISTS idx_media_type ON media(media_type);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteMediaRepository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Create inserts a catalog record.
func (r *SQLiteMediaRepository) Create(ctx context.Context, media *domain.CompletedMedia) error {
	prepareMedia(media)

	query, args, err := r.qb.Insert(mediaTable).
		Columns("id", "url", "media_type", "file_name", "created_at").
		Values(media.ID, media.URL, string(media.Kind), media.FileName, media.CreatedAt.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// List returns records newest first.
func (r *SQLiteMediaRepository) List(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, error) {
	builder := r.qb.Select("id", "url", "media_type", "file_name", "created_at").
		From(mediaTable).
		OrderBy("created_at DESC", "id")
	if kind != "" {
		builder = builder.Where(sq.Eq{"media_type": string(kind)})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		if limit <= 0 {
			// SQLite needs a LIMIT before OFFSET.
			builder = builder.Limit(uint64(1<<63 - 1))
		}
		builder = builder.Offset(uint64(offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []mediaRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	result := make([]*domain.CompletedMedia, len(rows))
	for i := range rows {
		result[i] = rows[i].toDomain()
	}
	return result, nil
}

// Count returns the number of records.
func (r *SQLiteMediaRepository) Count(ctx context.Context, kind domain.MediaKind) (int, error) {
	builder := r.qb.Select("COUNT(*)").From(mediaTable)
	if kind != "" {
		builder = builder.Where(sq.Eq{"media_type": string(kind)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (r *SQLiteMediaRepository) Close() error {
	return r.db.Close()
}

// InMemoryMediaRepository implements MediaRepository in memory.
type InMemoryMediaRepository struct {
	mu    sync.RWMutex
	items []*domain.CompletedMedia
}

// NewInMemoryMediaRepository creates an empty in-memory catalog.
func NewInMemoryMediaRepository() *InMemoryMediaRepository {
	return &InMemoryMediaRepository{}
}

func (r *InMemoryMediaRepository) Create(ctx context.Context, media *domain.CompletedMedia) error {
	prepareMedia(media)

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *media
	stored.CreatedAt = time.UnixMilli(media.CreatedAt.UnixMilli()).UTC()
	r.items = append(r.items, &stored)
	return nil
}

func (r *InMemoryMediaRepository) List(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, error) {
	r.mu.RLock()
	matched := make([]*domain.CompletedMedia, 0, len(r.items))
	for _, m := range r.items {
		if kind == "" || m.Kind == kind {
			c := *m
			matched = append(matched, &c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= len(matched) {
		return []*domain.CompletedMedia{}, nil
	}
	if offset > 0 {
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *InMemoryMediaRepository) Count(ctx context.Context, kind domain.MediaKind) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == "" {
		return len(r.items), nil
	}
	n := 0
	for _, m := range r.items {
		if m.Kind == kind {
			n++
		}
	}
	return n, nil
}

func prepareMedia(media *domain.CompletedMedia) {
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now()
	}
}
