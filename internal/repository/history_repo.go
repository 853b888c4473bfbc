package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchRecord — одна завершённая партия
type MatchRecord struct {
	ID       int64     `json:"id"`
	RoomID   string    `json:"room_id"`
	P1       string    `json:"p1"`
	P2       string    `json:"p2"`
	ScoreP1  int       `json:"score_p1"`
	ScoreP2  int       `json:"score_p2"`
	Winner   string    `json:"winner"`
	PlayedAt time.Time `json:"played_at"`
}

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema создаёт таблицу истории, если её ещё нет
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_history (
			id BIGSERIAL PRIMARY KEY,
			room_id TEXT NOT NULL,
			p1 TEXT NOT NULL,
			p2 TEXT NOT NULL,
			score_p1 INT NOT NULL,
			score_p2 INT NOT NULL,
			winner TEXT NOT NULL,
			played_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Create сохраняет результат завершённого матча
func (r *HistoryRepository) Create(ctx context.Context, m *MatchRecord) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO match_history (room_id, p1, p2, score_p1, score_p2, winner)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, played_at
	`, m.RoomID, m.P1, m.P2, m.ScoreP1, m.ScoreP2, m.Winner).Scan(&m.ID, &m.PlayedAt)
}

// Recent возвращает последние сыгранные матчи
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, room_id, p1, p2, score_p1, score_p2, winner, played_at
		FROM match_history
		ORDER BY played_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var m MatchRecord
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.P1, &m.P2, &m.ScoreP1, &m.ScoreP2, &m.Winner, &m.PlayedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
