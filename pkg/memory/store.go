// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nuzantara/core/pkg/errs"
)

// Store persists conversations, their ordered messages, and the
// session's entity snapshot. Isolation (I-S1, I-S2) is enforced here:
// every read/write is scoped by (session_id, principal_id), and a
// caller presenting a principal_id that does not own the session is
// rejected before any row is returned.
type Store interface {
	// EnsureSession creates the conversation row if it does not exist.
	EnsureSession(ctx context.Context, sessionID, principalID string) error

	// AppendMessages atomically appends messages to a session's
	// ordered history. Ordinals are assigned by the store, monotonic
	// per session.
	AppendMessages(ctx context.Context, sessionID, principalID string, msgs []Message) error

	// LoadHistory returns up to limit most recent messages in order
	// (oldest first). limit <= 0 means unbounded.
	LoadHistory(ctx context.Context, sessionID, principalID string, limit int) ([]Message, error)

	// LoadSnapshot returns the session's current entity snapshot.
	LoadSnapshot(ctx context.Context, sessionID, principalID string) (Snapshot, error)

	// SaveSnapshot persists the merged entity snapshot.
	SaveSnapshot(ctx context.Context, sessionID, principalID string, snap Snapshot) error
}

// SQLStore is a database/sql backed Store implementing the persistence
// schema of spec.md §6 (conversations / messages / session_entities).
// Direct port of the schema-and-dialect-handling idiom used by the
// teacher's legacy SQL session service, adapted to the conversation
// memory shape instead of the a2a protobuf message shape.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

// NewSQLStore opens schema on db and returns a Store. dialect selects
// the autoincrement/serial syntax used by initSchema.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("memory: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("memory: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx0()); err != nil {
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return s, nil
}

// ctx0 exists only because schema init happens outside a caller-supplied
// context during construction.
func ctx0() context.Context { return context.Background() }

func (s *SQLStore) pkAutoIncrement() string {
	switch s.dialect {
	case "postgres":
		return "SERIAL PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			session_id VARCHAR(255) NOT NULL,
			principal_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, principal_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS messages (
			id %s,
			session_id VARCHAR(255) NOT NULL,
			principal_id VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			ordinal BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, s.pkAutoIncrement()),
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, principal_id, ordinal)`,
		`CREATE TABLE IF NOT EXISTS session_entities (
			session_id VARCHAR(255) NOT NULL,
			principal_id VARCHAR(255) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			snapshot_json TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, principal_id, kind)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) placeholder(i int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (s *SQLStore) EnsureSession(ctx context.Context, sessionID, principalID string) error {
	now := time.Now().UTC()
	var q string
	switch s.dialect {
	case "postgres":
		q = `INSERT INTO conversations (session_id, principal_id, created_at, updated_at)
		     VALUES ($1,$2,$3,$3) ON CONFLICT (session_id, principal_id) DO NOTHING`
	default:
		q = `INSERT OR IGNORE INTO conversations (session_id, principal_id, created_at, updated_at)
		     VALUES (?,?,?,?)`
	}
	var err error
	if s.dialect == "postgres" {
		_, err = s.db.ExecContext(ctx, q, sessionID, principalID, now)
	} else {
		_, err = s.db.ExecContext(ctx, q, sessionID, principalID, now, now)
	}
	if err != nil {
		return errs.Wrap(errs.ErrMemory, "ensure session", err)
	}
	return nil
}

func (s *SQLStore) assertOwnership(ctx context.Context, sessionID, principalID string) error {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT principal_id FROM conversations WHERE session_id = %s`, s.placeholder(1)),
		sessionID)
	var owner string
	if err := row.Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return nil // not created yet; nothing to isolate against
		}
		return errs.Wrap(errs.ErrMemory, "check session ownership", err)
	}
	if owner != principalID {
		return errs.Wrap(errs.ErrAuthorization, "session belongs to a different principal", nil)
	}
	return nil
}

func (s *SQLStore) AppendMessages(ctx context.Context, sessionID, principalID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := s.assertOwnership(ctx, sessionID, principalID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrMemory, "begin append tx", err)
	}
	defer tx.Rollback()

	var next int64
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM messages WHERE session_id = %s AND principal_id = %s`,
			s.placeholder(1), s.placeholder(2)),
		sessionID, principalID)
	if err := row.Scan(&next); err != nil {
		return errs.Wrap(errs.ErrMemory, "compute next ordinal", err)
	}

	now := time.Now().UTC()
	insertSQL := fmt.Sprintf(`INSERT INTO messages (session_id, principal_id, role, content, ordinal, created_at)
		VALUES (%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6))
	for i, m := range msgs {
		if _, err := tx.ExecContext(ctx, insertSQL, sessionID, principalID, string(m.Role), m.Content, next+int64(i), now); err != nil {
			return errs.Wrap(errs.ErrMemory, "insert message", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE conversations SET updated_at = %s WHERE session_id = %s AND principal_id = %s`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3)),
		now, sessionID, principalID); err != nil {
		return errs.Wrap(errs.ErrMemory, "touch conversation", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrMemory, "commit append tx", err)
	}
	return nil
}

func (s *SQLStore) LoadHistory(ctx context.Context, sessionID, principalID string, limit int) ([]Message, error) {
	if err := s.assertOwnership(ctx, sessionID, principalID); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, session_id, role, content, ordinal, created_at FROM messages
		WHERE session_id = %s AND principal_id = %s ORDER BY ordinal ASC`,
		s.placeholder(1), s.placeholder(2))
	rows, err := s.db.QueryContext(ctx, q, sessionID, principalID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMemory, "load history", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var id int64
		if err := rows.Scan(&id, &m.SessionID, &m.Role, &m.Content, &m.Ordinal, &m.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.ErrMemory, "scan message", err)
		}
		m.ID = fmt.Sprintf("%d", id)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrMemory, "iterate messages", err)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *SQLStore) LoadSnapshot(ctx context.Context, sessionID, principalID string) (Snapshot, error) {
	if err := s.assertOwnership(ctx, sessionID, principalID); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT kind, snapshot_json FROM session_entities WHERE session_id = %s AND principal_id = %s`,
		s.placeholder(1), s.placeholder(2))
	rows, err := s.db.QueryContext(ctx, q, sessionID, principalID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMemory, "load snapshot", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, errs.Wrap(errs.ErrMemory, "scan entity", err)
		}
		var e Entity
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, errs.Wrap(errs.ErrMemory, "decode entity", err)
		}
		snap[EntityKind(kind)] = e
	}
	return snap, rows.Err()
}

func (s *SQLStore) SaveSnapshot(ctx context.Context, sessionID, principalID string, snap Snapshot) error {
	if err := s.assertOwnership(ctx, sessionID, principalID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrMemory, "begin snapshot tx", err)
	}
	defer tx.Rollback()

	for kind, e := range snap {
		payload, err := json.Marshal(e)
		if err != nil {
			return errs.Wrap(errs.ErrMemory, "encode entity", err)
		}
		var q string
		switch s.dialect {
		case "postgres":
			q = `INSERT INTO session_entities (session_id, principal_id, kind, snapshot_json, updated_at)
			     VALUES ($1,$2,$3,$4,$5)
			     ON CONFLICT (session_id, principal_id, kind)
			     DO UPDATE SET snapshot_json = EXCLUDED.snapshot_json, updated_at = EXCLUDED.updated_at`
		default:
			q = `INSERT OR REPLACE INTO session_entities (session_id, principal_id, kind, snapshot_json, updated_at)
			     VALUES (?,?,?,?,?)`
		}
		if _, err := tx.ExecContext(ctx, q, sessionID, principalID, string(kind), string(payload), time.Now().UTC()); err != nil {
			return errs.Wrap(errs.ErrMemory, "upsert entity", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrMemory, "commit snapshot tx", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
