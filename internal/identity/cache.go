package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachedIdentity is a remembered platform-user -> email association.
type CachedIdentity struct {
	PlatformUser   string
	Email          string
	Source         Source
	LastVerifiedAt *time.Time
	LastSeenAt     time.Time
}

// CacheRepository persists identity associations in the identity_cache table.
type CacheRepository interface {
	// Get returns the association or ErrNotFound.
	Get(ctx context.Context, platformUser string) (*CachedIdentity, error)

	// Upsert records email for platformUser. last_verified_at only moves
	// forward when source is SourceDirectory.
	Upsert(ctx context.Context, platformUser, email string, source Source, now time.Time) error
}

// cacheRepository implements CacheRepository with MariaDB.
type cacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates a cache repository backed by the given DB pool.
func NewCacheRepository(db *sql.DB) CacheRepository {
	return &cacheRepository{db: db}
}

// Get reads one association.
func (r *cacheRepository) Get(ctx context.Context, platformUser string) (*CachedIdentity, error) {
	query := `SELECT platform_user, email, email_source, last_verified_at, last_seen_at
	          FROM identity_cache WHERE platform_user = ?`

	var ci CachedIdentity
	var source string
	err := r.db.QueryRowContext(ctx, query, platformUser).Scan(
		&ci.PlatformUser, &ci.Email, &source, &ci.LastVerifiedAt, &ci.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity cache: %w", err)
	}
	ci.Source = Source(source)
	return &ci, nil
}

// Upsert inserts or updates the association. New rows from the directory
// get last_verified_at; rows written from the cache path keep whatever
// verification time they already had.
func (r *cacheRepository) Upsert(ctx context.Context, platformUser, email string, source Source, now time.Time) error {
	var verified *time.Time
	if source == SourceDirectory {
		verified = &now
	}

	query := `INSERT INTO identity_cache (platform_user, email, email_source, last_verified_at, last_seen_at)
	          VALUES (?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	              email = VALUES(email),
	              email_source = VALUES(email_source),
	              last_verified_at = COALESCE(VALUES(last_verified_at), last_verified_at),
	              last_seen_at = VALUES(last_seen_at)`

	if _, err := r.db.ExecContext(ctx, query, platformUser, email, string(source), verified, now); err != nil {
		return fmt.Errorf("upserting identity cache: %w", err)
	}
	return nil
}

// DirectoryStrategy resolves through the directory and, on a hit, refreshes
// the cached association as directory-verified.
type DirectoryStrategy struct {
	dir   Directory
	cache CacheRepository
	now   func() time.Time
}

// NewDirectoryStrategy creates the directory strategy. cache may be nil.
func NewDirectoryStrategy(dir Directory, cache CacheRepository, now func() time.Time) *DirectoryStrategy {
	if now == nil {
		now = time.Now
	}
	return &DirectoryStrategy{dir: dir, cache: cache, now: now}
}

// Name implements Strategy.
func (s *DirectoryStrategy) Name() string { return string(SourceDirectory) }

// Resolve implements Strategy. A failed cache write does not undo a good
// directory answer.
func (s *DirectoryStrategy) Resolve(ctx context.Context, platformUser string) (Result, error) {
	email, err := s.dir.LookupEmail(ctx, platformUser)
	if err != nil {
		return Result{}, err
	}
	email = Normalize(email)
	if email == "" {
		return Result{}, ErrNotFound
	}

	if s.cache != nil {
		_ = s.cache.Upsert(ctx, platformUser, email, SourceDirectory, s.now().UTC())
	}
	return Result{Email: email, Source: SourceDirectory}, nil
}

// CacheStrategy falls back to the last known association. It records that
// the identity was seen but never claims it was re-verified.
type CacheStrategy struct {
	cache CacheRepository
	now   func() time.Time
}

// NewCacheStrategy creates the cache fallback strategy.
func NewCacheStrategy(cache CacheRepository, now func() time.Time) *CacheStrategy {
	if now == nil {
		now = time.Now
	}
	return &CacheStrategy{cache: cache, now: now}
}

// Name implements Strategy.
func (s *CacheStrategy) Name() string { return string(SourceCache) }

// Resolve implements Strategy.
func (s *CacheStrategy) Resolve(ctx context.Context, platformUser string) (Result, error) {
	cached, err := s.cache.Get(ctx, platformUser)
	if err != nil {
		return Result{}, err
	}
	_ = s.cache.Upsert(ctx, platformUser, cached.Email, SourceCache, s.now().UTC())
	return Result{Email: cached.Email, Source: SourceCache}, nil
}
