package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDailyLimitExceeded is returned when a user has reached their daily
// generation limit.
var ErrDailyLimitExceeded = errors.New("daily_limit_exceeded")

// GenerationRepository is the append-only ledger of generation events and
// the source of truth for daily usage counts.
type GenerationRepository interface {
	// Insert appends a completed generation to the ledger.
	Insert(ctx context.Context, g *model.Generation) error
	// CountBetween counts a user's generations with created_at in
	// [start, end).
	CountBetween(ctx context.Context, userID string, start, end time.Time) (int, error)
	// ListRecent returns the user's generations, most recent first.
	ListRecent(ctx context.Context, userID string, limit int) ([]model.Generation, error)
	// ReserveDailySlot atomically checks the user's generation count for
	// the period and inserts a pending row that holds the slot. Returns
	// ErrDailyLimitExceeded if the limit is reached. The pending row
	// counts toward the quota until released.
	ReserveDailySlot(ctx context.Context, userID, productTitle string, keywords []string, start, end time.Time, limit int) (string, error)
	// CompleteReservation fills a pending row with the generated output.
	CompleteReservation(ctx context.Context, id, outputMarkdown string) error
	// ReleaseReservation deletes a pending row after a failed generation
	// so the slot is not consumed.
	ReleaseReservation(ctx context.Context, id string) error
}

type generationRepo struct {
	pool *pgxpool.Pool
}

// NewGenerationRepo creates a new GenerationRepository.
func NewGenerationRepo(pool *pgxpool.Pool) GenerationRepository {
	return &generationRepo{pool: pool}
}

func (r *generationRepo) Insert(ctx context.Context, g *model.Generation) error {
	const q = `
        INSERT INTO generations (user_id, product_title, keywords, output_markdown)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := r.pool.QueryRow(ctx, q, g.UserID, g.ProductTitle, g.Keywords, g.OutputMarkdown).
		Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording generation for user %s: %w", g.UserID, err)
	}
	return nil
}

func (r *generationRepo) CountBetween(ctx context.Context, userID string, start, end time.Time) (int, error) {
	const q = `
        SELECT COUNT(*)
        FROM generations
        WHERE user_id = $1
          AND created_at >= $2
          AND created_at < $3
    `
	var count int
	if err := r.pool.QueryRow(ctx, q, userID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting generations for user %s: %w", userID, err)
	}
	return count, nil
}

func (r *generationRepo) ListRecent(ctx context.Context, userID string, limit int) ([]model.Generation, error) {
	const q = `
        SELECT id, user_id, product_title, keywords, output_markdown, created_at
        FROM generations
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing generations for user %s: %w", userID, err)
	}
	defer rows.Close()

	var generations []model.Generation
	for rows.Next() {
		var g model.Generation
		if err := rows.Scan(&g.ID, &g.UserID, &g.ProductTitle, &g.Keywords, &g.OutputMarkdown, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning generation for user %s: %w", userID, err)
		}
		generations = append(generations, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing generations for user %s: %w", userID, err)
	}
	return generations, nil
}

// ReserveDailySlot runs the count check and the insert in one serializable
// transaction so two concurrent requests cannot both slip under the limit.
func (r *generationRepo) ReserveDailySlot(ctx context.Context, userID, productTitle string, keywords []string, start, end time.Time, limit int) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "", fmt.Errorf("starting transaction for quota check: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var count int
	const countQ = `
        SELECT COUNT(*)
        FROM generations
        WHERE user_id = $1
          AND created_at >= $2
          AND created_at < $3
    `
	if err := tx.QueryRow(ctx, countQ, userID, start, end).Scan(&count); err != nil {
		return "", fmt.Errorf("counting generations for user %s: %w", userID, err)
	}
	if limit > 0 && count >= limit {
		return "", ErrDailyLimitExceeded
	}

	const insertQ = `
        INSERT INTO generations (user_id, product_title, keywords, output_markdown)
        VALUES ($1, $2, $3, '')
        RETURNING id
    `
	var id string
	if err := tx.QueryRow(ctx, insertQ, userID, productTitle, keywords).Scan(&id); err != nil {
		return "", fmt.Errorf("reserving generation slot for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing generation slot for user %s: %w", userID, err)
	}
	return id, nil
}

func (r *generationRepo) CompleteReservation(ctx context.Context, id, outputMarkdown string) error {
	const q = `UPDATE generations SET output_markdown = $2 WHERE id = $1 AND output_markdown = ''`
	if _, err := r.pool.Exec(ctx, q, id, outputMarkdown); err != nil {
		return fmt.Errorf("completing generation %s: %w", id, err)
	}
	return nil
}

func (r *generationRepo) ReleaseReservation(ctx context.Context, id string) error {
	const q = `DELETE FROM generations WHERE id = $1 AND output_markdown = ''`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("releasing generation slot %s: %w", id, err)
	}
	return nil
}
