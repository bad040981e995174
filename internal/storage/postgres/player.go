package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Player is one registration row. Tokens are the identity key in the live
// directory, so the audit row carries them too; credentials are never stored.
type Player struct {
	ID        int64
	Nickname  string
	Token     string
	CreatedAt time.Time
}

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// PlayerRepository records registrations in the players table.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// RecordRegistration inserts a registration row. Nicknames are not unique;
// every registration gets its own row.
//
// Precondition: token must be non-empty.
func (r *PlayerRepository) RecordRegistration(ctx context.Context, nickname, token string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO players (nickname, token) VALUES ($1, $2)`,
		nickname, token,
	)
	if err != nil {
		return fmt.Errorf("inserting player: %w", err)
	}
	return nil
}

// GetByToken returns the registration row for the given token.
//
// Postcondition: Returns the Player, or ErrPlayerNotFound.
func (r *PlayerRepository) GetByToken(ctx context.Context, token string) (Player, error) {
	var p Player
	err := r.db.QueryRow(ctx,
		`SELECT id, nickname, token, created_at FROM players WHERE token = $1`,
		token,
	).Scan(&p.ID, &p.Nickname, &p.Token, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Player{}, ErrPlayerNotFound
		}
		return Player{}, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}

// List returns all registrations in insertion order.
func (r *PlayerRepository) List(ctx context.Context) ([]Player, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, nickname, token, created_at FROM players ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Nickname, &p.Token, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating players: %w", err)
	}
	return players, nil
}
