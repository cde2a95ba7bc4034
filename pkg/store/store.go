// Package store persists an audit trail of event actions and reshuffle
// decisions, so a trip's history survives restarts.
package store

import (
	"context"
	"fmt"
	"time"

	"tripflow/pkg/db"
)

// EventActionRecord captures a user decision on a delivered event.
type EventActionRecord struct {
	TripID    string
	EventID   string
	Kind      string
	Title     string
	Status    string
	Note      string
	CreatedAt time.Time
}

// ReshuffleRecord captures a reshuffle check, apply or undo outcome.
type ReshuffleRecord struct {
	TripID    string
	DayIndex  int
	Action    string
	Strategy  string
	Success   bool
	UndoToken string
	Message   string
	CreatedAt time.Time
}

// AuditStore is the persistence interface for the engine's audit trail.
type AuditStore interface {
	RecordEventAction(ctx context.Context, rec EventActionRecord) error
	RecordReshuffle(ctx context.Context, rec ReshuffleRecord) error
	RecentEventActions(ctx context.Context, tripID string, limit int) ([]EventActionRecord, error)
	RecentReshuffles(ctx context.Context, tripID string, limit int) ([]ReshuffleRecord, error)
	Close() error
}

// SQLiteStore implements AuditStore on top of db.DB.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore opens (or creates) the audit database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := db.Init(path)
	if err != nil {
		return nil, fmt.Errorf("failed to init audit db: %w", err)
	}
	return &SQLiteStore{db: d}, nil
}

func (s *SQLiteStore) RecordEventAction(ctx context.Context, rec EventActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_audit (trip_id, event_id, kind, title, status, note) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TripID, rec.EventID, rec.Kind, rec.Title, rec.Status, rec.Note)
	if err != nil {
		return fmt.Errorf("failed to record event action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordReshuffle(ctx context.Context, rec ReshuffleRecord) error {
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reshuffle_audit (trip_id, day_index, action, strategy, success, undo_token, message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TripID, rec.DayIndex, rec.Action, rec.Strategy, success, rec.UndoToken, rec.Message)
	if err != nil {
		return fmt.Errorf("failed to record reshuffle: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentEventActions(ctx context.Context, tripID string, limit int) ([]EventActionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trip_id, event_id, kind, title, status, note, created_at
		 FROM event_audit WHERE trip_id = ? ORDER BY id DESC LIMIT ?`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event audit: %w", err)
	}
	defer rows.Close()

	var out []EventActionRecord
	for rows.Next() {
		var rec EventActionRecord
		if err := rows.Scan(&rec.TripID, &rec.EventID, &rec.Kind, &rec.Title, &rec.Status, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event audit row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentReshuffles(ctx context.Context, tripID string, limit int) ([]ReshuffleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trip_id, day_index, action, strategy, success, undo_token, message, created_at
		 FROM reshuffle_audit WHERE trip_id = ? ORDER BY id DESC LIMIT ?`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reshuffle audit: %w", err)
	}
	defer rows.Close()

	var out []ReshuffleRecord
	for rows.Next() {
		var rec ReshuffleRecord
		var success int
		if err := rows.Scan(&rec.TripID, &rec.DayIndex, &rec.Action, &rec.Strategy, &success, &rec.UndoToken, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reshuffle audit row: %w", err)
		}
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
