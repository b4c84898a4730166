package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/plura-ai/onboard/internal/convo"
)

// Store handles persistence of identities, workspace/project records
// and committed conversation turns using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new SQLite-backed persistence store at the given path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL,
			onboarded   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workspaces (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			name        TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS projects (
			id            TEXT PRIMARY KEY,
			workspace_id  TEXT NOT NULL,
			name          TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
		);

		CREATE TABLE IF NOT EXISTS turns (
			session_id  TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			turn_id     INTEGER NOT NULL,
			role        TEXT NOT NULL,
			name        TEXT,
			content     TEXT,
			created_at  TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_workspaces_user ON workspaces(user_id);
		CREATE INDEX IF NOT EXISTS idx_projects_workspace ON projects(workspace_id);
	`)
	return err
}

// UpsertUser registers or refreshes a user identity
func (s *Store) UpsertUser(userID, name, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, email, onboarded, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email
	`, userID, name, email, now)
	return err
}

// GetSession returns the identity for a user, or nil when no
// authenticated identity exists. A nil identity is not an error:
// callers proceed without personalization.
func (s *Store) GetSession(userID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, name, email, onboarded, created_at
		FROM users
		WHERE id = ?
	`, userID)

	var id Identity
	var onboarded int
	var createdAt string

	err := row.Scan(&id.UserID, &id.Name, &id.Email, &onboarded, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id.Onboarded = onboarded != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		id.CreatedAt = t
	}
	return &id, nil
}

// GetFirstWorkspaceOfUser returns the user's oldest workspace, or nil
// when the user has none yet.
func (s *Store) GetFirstWorkspaceOfUser(userID string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, user_id, name, created_at
		FROM workspaces
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, userID)

	var ws Workspace
	var createdAt string

	err := row.Scan(&ws.ID, &ws.UserID, &ws.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		ws.CreatedAt = t
	}
	return &ws, nil
}

// GetProjectOfUser returns the first project in a workspace, or nil
// when none exists.
func (s *Store) GetProjectOfUser(workspaceID string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, workspace_id, name, created_at
		FROM projects
		WHERE workspace_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, workspaceID)

	var p Project
	var createdAt string

	err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	return &p, nil
}

// CreateWorkspace records a new workspace for the user
func (s *Store) CreateWorkspace(userID, name string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ws := &Workspace{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
	}
	_, err := s.db.Exec(`
		INSERT INTO workspaces (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, ws.ID, ws.UserID, ws.Name, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// CreateProject records a new project in a workspace
func (s *Store) CreateProject(workspaceID, name string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p := &Project{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   now,
	}
	_, err := s.db.Exec(`
		INSERT INTO projects (id, workspace_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.WorkspaceID, p.Name, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OnboardingComplete marks the user as onboarded. Idempotent: calling
// it twice leaves a single completion on record.
func (s *Store) OnboardingComplete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE users SET onboarded = 1 WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Unknown identity: record it so the completion still holds.
		now := time.Now().Format(time.RFC3339)
		_, err = s.db.Exec(`
			INSERT INTO users (id, name, email, onboarded, created_at)
			VALUES (?, '', '', 1, ?)
			ON CONFLICT(id) DO UPDATE SET onboarded = 1
		`, userID, now)
		return err
	}
	return nil
}

// SaveTurns replaces the durable snapshot of a session's committed
// history. The write is transactional: either the full new sequence
// lands or the prior snapshot survives.
func (s *Store) SaveTurns(sessionID string, turns []convo.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for i, t := range turns {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.Exec(`
			INSERT INTO turns (session_id, seq, turn_id, role, name, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sessionID, i, t.ID, t.Role, t.Name, t.Content, createdAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadTurns reads the durable snapshot of a session's history, oldest
// first.
func (s *Store) LoadTurns(sessionID string) ([]convo.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT turn_id, role, name, content, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []convo.Turn
	for rows.Next() {
		var t convo.Turn
		var name, content sql.NullString
		var createdAt string

		if err := rows.Scan(&t.ID, &t.Role, &name, &content, &createdAt); err != nil {
			return nil, err
		}
		t.Name = name.String
		t.Content = content.String
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			t.CreatedAt = ts
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
