package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/park285/cheese-chess-web/internal/domain"
)

var ErrTableMissing = errors.New("leaderboard table missing")

const pqUndefinedTable = "42P01"

type Repository interface {
	Init(ctx context.Context) error
	Top(ctx context.Context, d domain.Difficulty, limit int) ([]domain.LeaderboardEntry, error)
	Insert(ctx context.Context, d domain.Difficulty, playerName string, timeSeconds int) (Placement, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Init(ctx context.Context) error {
	for _, d := range domain.Difficulties {
		table, err := TableName(d)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id SERIAL PRIMARY KEY,
				player_name VARCHAR(255) NOT NULL,
				time_seconds INTEGER NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`, pq.QuoteIdentifier(table))
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

func (r *repository) Top(ctx context.Context, d domain.Difficulty, limit int) ([]domain.LeaderboardEntry, error) {
	table, err := TableName(d)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > Capacity {
		limit = Capacity
	}

	query := fmt.Sprintf(`
		SELECT id, player_name, time_seconds, created_at
		FROM %s
		ORDER BY time_seconds ASC, id ASC
		LIMIT $1`, pq.QuoteIdentifier(table))

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, wrapPQ(fmt.Sprintf("select %s", table), err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var (
			e         domain.LeaderboardEntry
			createdAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.PlayerName, &e.TimeSeconds, &createdAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return entries, nil
}

// Insert adds the entry and trims the table back to Capacity in one
// transaction. The table lock serialises concurrent inserts so two trims can
// never interleave.
func (r *repository) Insert(ctx context.Context, d domain.Difficulty, playerName string, timeSeconds int) (Placement, error) {
	table, err := TableName(d)
	if err != nil {
		return Placement{}, err
	}
	quoted := pq.QuoteIdentifier(table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Placement{}, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", quoted)); err != nil {
		return Placement{}, wrapPQ(fmt.Sprintf("lock %s", table), err)
	}

	var (
		entry     domain.LeaderboardEntry
		createdAt sql.NullTime
	)
	insert := fmt.Sprintf(`
		INSERT INTO %s (player_name, time_seconds)
		VALUES ($1, $2)
		RETURNING id, player_name, time_seconds, created_at`, quoted)
	if err := tx.QueryRowContext(ctx, insert, playerName, timeSeconds).
		Scan(&entry.ID, &entry.PlayerName, &entry.TimeSeconds, &createdAt); err != nil {
		return Placement{}, wrapPQ(fmt.Sprintf("insert %s", table), err)
	}
	if createdAt.Valid {
		entry.CreatedAt = createdAt.Time
	}

	trim := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id IN (
			SELECT id FROM %[1]s
			ORDER BY time_seconds ASC, id ASC
			OFFSET $1
		)`, quoted)
	if _, err := tx.ExecContext(ctx, trim, Capacity); err != nil {
		return Placement{}, fmt.Errorf("trim %s: %w", table, err)
	}

	var (
		kept  bool
		ahead int
	)
	rank := fmt.Sprintf(`
		SELECT
			EXISTS (SELECT 1 FROM %[1]s WHERE id = $1),
			(SELECT COUNT(*) FROM %[1]s WHERE time_seconds < $2 OR (time_seconds = $2 AND id < $1))`, quoted)
	if err := tx.QueryRowContext(ctx, rank, entry.ID, entry.TimeSeconds).Scan(&kept, &ahead); err != nil {
		return Placement{}, fmt.Errorf("rank %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return Placement{}, fmt.Errorf("commit insert: %w", err)
	}

	p := Placement{Entry: entry}
	if kept {
		p.Rank = ahead + 1
	}
	return p, nil
}

func wrapPQ(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
		return fmt.Errorf("%s: %w", op, ErrTableMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}
