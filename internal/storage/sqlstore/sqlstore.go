// Package sqlstore persists task state to a SQLite database.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/forge/internal/tasks"
)

// DefaultFile is the database file name inside the storage directory.
const DefaultFile = "forge.db"

// Store is a tasks.Persister backed by SQLite. Records are stored as JSON
// bodies next to a few indexed columns.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with foreign keys
// enabled and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTask upserts the task row and replaces its agent rows.
func (s *Store) SaveTask(t tasks.TaskRecord) error {
	agents := t.Agents
	t.Agents = nil
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO tasks(id, status, updated_at, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, body=excluded.body`,
		t.ID, string(t.Status), t.UpdatedAt.Format(time.RFC3339Nano), string(body)); err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM agents WHERE task_id=?`, t.ID); err != nil {
		return fmt.Errorf("clear agents of %s: %w", t.ID, err)
	}
	for i, a := range agents {
		ab, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal agent: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO agents(id, task_id, position, role, body) VALUES (?, ?, ?, ?, ?)`,
			a.ID, t.ID, i, string(a.Role), string(ab)); err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteTask removes a task; its agents cascade.
func (s *Store) DeleteTask(id string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// SaveCheckpoint inserts or replaces a checkpoint.
func (s *Store) SaveCheckpoint(cp tasks.Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO checkpoints(id, task_id, schema_version, created_at, body) VALUES (?, ?, ?, ?, ?)`,
		cp.ID, cp.TaskID, cp.SchemaVersion, cp.CreatedAt.Format(time.RFC3339Nano), string(body)); err != nil {
		return fmt.Errorf("insert checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// LoadTasks reads every task with its agents in position order.
func (s *Store) LoadTasks() ([]tasks.TaskRecord, error) {
	rows, err := s.db.Query(`SELECT body FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	var list []tasks.TaskRecord
	index := map[string]int{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return nil, err
		}
		var t tasks.TaskRecord
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode task: %w", err)
		}
		t.Agents = []tasks.AgentRecord{}
		index[t.ID] = len(list)
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	arows, err := s.db.Query(`SELECT task_id, body FROM agents ORDER BY task_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var taskID, body string
		if err := arows.Scan(&taskID, &body); err != nil {
			return nil, err
		}
		i, ok := index[taskID]
		if !ok {
			continue
		}
		var a tasks.AgentRecord
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		list[i].Agents = append(list[i].Agents, a)
	}
	return list, arows.Err()
}

// LoadCheckpoints reads every checkpoint, oldest first.
func (s *Store) LoadCheckpoints() ([]tasks.Checkpoint, error) {
	rows, err := s.db.Query(`SELECT body FROM checkpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var list []tasks.Checkpoint
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var cp tasks.Checkpoint
		if err := json.Unmarshal([]byte(body), &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}

var _ tasks.Persister = (*Store)(nil)
