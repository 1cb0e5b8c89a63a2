package indexdb

import (
	"context"
	"database/sql"
	"time"
)

// Sessions lists recorded runs, newest first.
func (s *SQLiteIndex) Sessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,renderer,started_at,ended_at,features,iterations,reached_goal FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r            SessionRow
			started      string
			ended        sql.NullString
			reachedGoalI int
		)
		if err := rows.Scan(&r.ID, &r.Renderer, &started, &ended, &r.Features, &r.Iterations, &reachedGoalI); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
		}
		r.ReachedGoal = reachedGoalI != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns a session's events in order.
func (s *SQLiteIndex) Events(ctx context.Context, session string) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session,seq,instruction,status,message,x,y,z,recorded_at FROM events WHERE session=? ORDER BY seq`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			r  EventRow
			at string
		)
		if err := rows.Scan(&r.Session, &r.Seq, &r.Instruction, &r.Status, &r.Message, &r.X, &r.Y, &r.Z, &at); err != nil {
			return nil, err
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}
