package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/seif/internal/searchtoken"
)

// ReindexBatchSize is the number of rows decrypted per batch.
const ReindexBatchSize = 200

// TokenRow is the part of a secret the reindexer reads.
type TokenRow struct {
	ID           int64
	DetailsEnc   string
	DetailTokens string
}

// TokenStore is the maintenance view of the secrets table. It is not
// scoped by owner and is only used by the reindex command, never by a
// request handler.
type TokenStore interface {
	// NextBatch returns up to limit rows with id > afterID, ordered by id.
	NextBatch(ctx context.Context, afterID int64, limit int) ([]TokenRow, error)
	UpdateTokens(ctx context.Context, id int64, tokens string) error
}

// NewTokenStore creates a TokenStore backed by the given DB pool.
func NewTokenStore(db *sql.DB) TokenStore {
	return &secretRepository{db: db}
}

// NextBatch implements TokenStore.
func (r *secretRepository) NextBatch(ctx context.Context, afterID int64, limit int) ([]TokenRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, details_enc, detail_tokens FROM secrets WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading token batch: %w", err)
	}
	defer rows.Close()

	var batch []TokenRow
	for rows.Next() {
		var row TokenRow
		var detailsEnc, detailTokens sql.NullString
		if err := rows.Scan(&row.ID, &detailsEnc, &detailTokens); err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}
		row.DetailsEnc = detailsEnc.String
		row.DetailTokens = detailTokens.String
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

// UpdateTokens implements TokenStore.
func (r *secretRepository) UpdateTokens(ctx context.Context, id int64, tokens string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE secrets SET detail_tokens = ? WHERE id = ?`,
		nullString(tokens), id,
	); err != nil {
		return fmt.Errorf("updating detail tokens: %w", err)
	}
	return nil
}

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Scanned int
	Updated int
	Failed  int
}

// Reindex recomputes detail_tokens for every secret from its decrypted
// details. Rows whose tokens are already current are skipped; rows that
// fail to decrypt are counted and left alone. Plaintext is never written.
func Reindex(ctx context.Context, store TokenStore, cipher Cipher) (ReindexResult, error) {
	var res ReindexResult
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := store.NextBatch(ctx, afterID, ReindexBatchSize)
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			return res, nil
		}

		for _, row := range batch {
			afterID = row.ID
			res.Scanned++

			details, err := cipher.Decrypt(row.DetailsEnc)
			if err != nil {
				res.Failed++
				slog.Warn("skipping secret that does not decrypt",
					slog.Int64("secret_id", row.ID),
					slog.Any("error", err),
				)
				continue
			}
			tokens := searchtoken.Join(details)
			if tokens == row.DetailTokens {
				continue
			}
			if err := store.UpdateTokens(ctx, row.ID, tokens); err != nil {
				return res, err
			}
			res.Updated++
		}

		slog.Info("reindex batch done",
			slog.Int64("last_id", afterID),
			slog.Int("scanned", res.Scanned),
			slog.Int("updated", res.Updated),
		)
	}
}
