// Package indexdb is a queryable SQLite index of bot sessions and the
// events they produced. The text event log remains the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"renderbot.ai/internal/protocol"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents   atomic.Uint64
	dropSessions atomic.Uint64
}

type reqKind int

const (
	reqSessionStart reqKind = iota + 1
	reqSessionEnd
	reqEvent
	reqSnapshot
)

type req struct {
	kind reqKind

	session  SessionRow
	event    EventRow
	snapshot snapshotRow
}

// SessionRow is one bot run.
type SessionRow struct {
	ID          string
	Renderer    string
	StartedAt   time.Time
	EndedAt     time.Time
	Features    int
	Iterations  int
	ReachedGoal bool
}

// EventRow is one recorded game event.
type EventRow struct {
	Session     string
	Seq         int
	Instruction string
	Status      string
	Message     string
	X, Y, Z     float64
	RecordedAt  time.Time
}

type snapshotRow struct {
	Session  string
	Path     string
	Features int
	TakenAt  time.Time
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropEventTotal   uint64
	DropSessionTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 4096)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			renderer TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			features INTEGER NOT NULL DEFAULT 0,
			iterations INTEGER NOT NULL DEFAULT 0,
			reached_goal INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			instruction TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_instruction ON events(instruction, session);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session TEXT NOT NULL,
			path TEXT NOT NULL,
			features INTEGER NOT NULL,
			taken_at TEXT NOT NULL,
			PRIMARY KEY (session, path)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropEventTotal:   s.dropEvents.Load(),
		DropSessionTotal: s.dropSessions.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind.
		drops.Add(1)
	}
}

// StartSession records the beginning of a run.
func (s *SQLiteIndex) StartSession(id, renderer string, features int) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSessionStart, session: SessionRow{
		ID: id, Renderer: renderer, StartedAt: time.Now().UTC(), Features: features,
	}}, &s.dropSessions)
}

// FinishSession records the outcome of a run.
func (s *SQLiteIndex) FinishSession(id string, iterations int, reachedGoal bool) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSessionEnd, session: SessionRow{
		ID: id, EndedAt: time.Now().UTC(), Iterations: iterations, ReachedGoal: reachedGoal,
	}}, &s.dropSessions)
}

func (s *SQLiteIndex) RecordSnapshot(session, path string, features int) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Session: session, Path: path, Features: features, TakenAt: time.Now().UTC(),
	}}, &s.dropSessions)
}

// EventSink indexes the events of one session. It implements nav.Sink.
type EventSink struct {
	idx     *SQLiteIndex
	session string

	mu  sync.Mutex
	seq int
}

func (s *SQLiteIndex) Session(id string) *EventSink {
	return &EventSink{idx: s, session: id}
}

func (e *EventSink) Append(ev protocol.GameEvent) error {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	if e.idx == nil {
		return nil
	}
	e.idx.enqueue(req{kind: reqEvent, event: EventRow{
		Session:     e.session,
		Seq:         seq,
		Instruction: ev.Instruction.Tag(),
		Status:      string(ev.Status),
		Message:     ev.Message,
		X:           ev.Position.X,
		Y:           ev.Position.Y,
		Z:           ev.Position.Z,
		RecordedAt:  time.Now().UTC(),
	}}, &e.idx.dropEvents)
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,renderer,started_at,features) VALUES(?,?,?,?)`)
	finishSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=?, iterations=?, reached_goal=? WHERE id=?`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(session,seq,instruction,status,message,x,y,z,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session,path,features,taken_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, finishSession, insertEvent, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	// An idle queue commits right away so readers sharing the single
	// connection are not starved by an open transaction.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSessionStart:
			se := r.session
			exec(insertSession, se.ID, se.Renderer, se.StartedAt.Format(time.RFC3339Nano), se.Features)
		case reqSessionEnd:
			se := r.session
			exec(finishSession, se.EndedAt.Format(time.RFC3339Nano), se.Iterations, boolInt(se.ReachedGoal), se.ID)
		case reqEvent:
			ev := r.event
			exec(insertEvent, ev.Session, ev.Seq, ev.Instruction, ev.Status, ev.Message, ev.X, ev.Y, ev.Z, ev.RecordedAt.Format(time.RFC3339Nano))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Session, sn.Path, sn.Features, sn.TakenAt.Format(time.RFC3339Nano))
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
