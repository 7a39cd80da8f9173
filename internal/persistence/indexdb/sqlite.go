package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/signlink"
	"voxelcraft.ai/signlink/internal/sim/geom"
	"voxelcraft.ai/signlink/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable copy of the link table, link events, block audits and snapshot
// history. The JSON link file and JSONL logs stay authoritative; writes are queued and dropped
// when the writer falls behind.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu is held for read around every send on ch and for write while closing it.
	sendMu sync.RWMutex
	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqLinkEvent reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqReplaceLinks
)

type req struct {
	kind reqKind

	event    signlink.Event
	audit    world.AuditEntry
	snapshot SnapshotRow
	pairs    []signlink.Pair
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEventTotal    uint64
	DropAuditTotal    uint64
	DropSnapshotTotal uint64
}

// OpenSQLite opens (creating if needed) the index at path and starts its writer.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenReadOnly opens an existing index for queries only. No writer is started.
func OpenReadOnly(path string) (*SQLiteIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA query_only=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteIndex{db: db, log: zerolog.Nop()}
	s.closed.Store(true)
	return s, nil
}

func open(path string) (*sql.DB, error) {
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
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS links (
			a_key TEXT PRIMARY KEY,
			b_key TEXT NOT NULL UNIQUE,
			a_x INTEGER NOT NULL, a_y INTEGER NOT NULL, a_z INTEGER NOT NULL,
			b_x INTEGER NOT NULL, b_y INTEGER NOT NULL, b_z INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			created_by TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS link_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT NOT NULL,
			a_key TEXT NOT NULL,
			b_key TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_link_events_kind ON link_events(kind, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_link_events_actor ON link_events(actor, seq);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_block TEXT NOT NULL,
			to_block TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			signs INTEGER NOT NULL,
			players INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		if s.ch != nil {
			s.sendMu.Lock()
			s.closed.Store(true)
			close(s.ch)
			s.sendMu.Unlock()
			s.wg.Wait()
		}
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// WriteLinkEvent implements signlink.EventSink.
func (s *SQLiteIndex) WriteLinkEvent(e signlink.Event) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqLinkEvent, event: e}, &s.dropEvent)
	return nil
}

// WriteAudit implements world.AuditLogger.
func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := SnapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		WorldID: snap.Header.WorldID,
		Blocks:  len(snap.Blocks),
		Signs:   len(snap.Signs),
		Players: len(snap.Players),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// ReplaceLinks resets the links table to pairs. It blocks until queued so the reset is
// ordered before any later event.
func (s *SQLiteIndex) ReplaceLinks(pairs []signlink.Pair) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqReplaceLinks, pairs: append([]signlink.Pair(nil), pairs...)}, nil)
}

// enqueue hands r to the writer. With a nil drops counter it waits for queue space;
// otherwise a full queue drops r and bumps drops. Requests after Close are ignored.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return
	}
	if drops == nil {
		s.ch <- r
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func orderedKeys(a, b geom.Pos) (geom.Pos, geom.Pos) {
	if b.Key() < a.Key() {
		return b, a
	}
	return a, b
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertLink, _ := s.db.Prepare(`INSERT OR REPLACE INTO links(a_key,b_key,a_x,a_y,a_z,b_x,b_y,b_z,created_at,created_by) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	deleteLink, _ := s.db.Prepare(`DELETE FROM links WHERE a_key IN (?,?) OR b_key IN (?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO link_events(ts,kind,actor,a_key,b_key,reason,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,z,from_block,to_block,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,blocks,signs,players) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertLink, deleteLink, insertEvent, insertAudit, insertSnapshot} {
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
		commitMaxWait = time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn().Err(err).Str("event", "indexdb.begin_failed").Msg("cannot start transaction")
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
		if err := tx.Commit(); err != nil {
			s.log.Warn().Err(err).Str("event", "indexdb.commit_failed").Msg("commit failed")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn().Err(err).Str("event", "indexdb.write_failed").Msg("rolling back batch")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}
	putLink := func(p signlink.Pair, createdAt, createdBy string) bool {
		a, b := orderedKeys(p.A, p.B)
		return exec(insertLink, a.Key(), b.Key(), a.X, a.Y, a.Z, b.X, b.Y, b.Z, createdAt, createdBy)
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqLinkEvent:
			e := r.event
			a, b := e.PosA(), e.PosB()
			raw, _ := json.Marshal(e)
			ts := e.Time.UTC().Format(time.RFC3339Nano)
			if !exec(insertEvent, ts, e.Kind, e.Actor, a.Key(), b.Key(), e.Reason, string(raw)) {
				continue
			}
			switch e.Kind {
			case signlink.EventLinkCreated:
				putLink(signlink.Pair{A: a, B: b}, ts, e.Actor)
			case signlink.EventLinkRemoved:
				exec(deleteLink, a.Key(), b.Key(), a.Key(), b.Key())
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Pos[0], a.Pos[1], a.Pos[2], a.From, a.To, a.Reason, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.WorldID, sn.Blocks, sn.Signs, sn.Players)

		case reqReplaceLinks:
			if _, err := tx.ExecContext(ctx, `DELETE FROM links`); err != nil {
				rollback(err)
				continue
			}
			for _, p := range r.pairs {
				if !putLink(p, "", "") {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// LinkRow is one stored link.
type LinkRow struct {
	A         geom.Pos
	B         geom.Pos
	CreatedAt string
	CreatedBy string
}

func (s *SQLiteIndex) ListLinks(ctx context.Context) ([]LinkRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a_x,a_y,a_z,b_x,b_y,b_z,created_at,created_by FROM links ORDER BY a_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkRow
	for rows.Next() {
		var r LinkRow
		if err := rows.Scan(&r.A.X, &r.A.Y, &r.A.Z, &r.B.X, &r.B.Y, &r.B.Z, &r.CreatedAt, &r.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventFilter narrows ListEvents. Zero values match everything; Limit <= 0 means 100.
type EventFilter struct {
	Kind  string
	Actor string
	Limit int
}

// ListEvents returns matching link events, newest first.
func (s *SQLiteIndex) ListEvents(ctx context.Context, f EventFilter) ([]signlink.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, strings.ToUpper(f.Kind))
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT raw_json FROM link_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []signlink.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e signlink.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("link_events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AuditsAt returns the audit history of one block, oldest first.
func (s *SQLiteIndex) AuditsAt(ctx context.Context, pos geom.Pos) ([]world.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM audits WHERE x=? AND y=? AND z=? ORDER BY tick, seq`, pos.X, pos.Y, pos.Z)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a world.AuditEntry
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("audits: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SnapshotRow describes one recorded snapshot.
type SnapshotRow struct {
	Tick    uint64
	Path    string
	WorldID string
	Blocks  int
	Signs   int
	Players int
}

func (s *SQLiteIndex) ListSnapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick,path,world_id,blocks,signs,players FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &r.Path, &r.WorldID, &r.Blocks, &r.Signs, &r.Players); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}
