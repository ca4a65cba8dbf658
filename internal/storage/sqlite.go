package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the knowledge base, role-mapping
// cache, user profiles, and the evaluation audit log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "skillmap.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying database handle for the KB vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Role mappings ---

// SaveRoleMapping upserts the cached mapping for a role key.
// Last writer wins: the mapping is a pure function of static inputs, so
// concurrent writers for the same key produce equivalent payloads.
func (s *Store) SaveRoleMapping(roleKey, roadmapJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO role_mappings (role_key, roadmap_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(role_key) DO UPDATE SET roadmap_json = excluded.roadmap_json, updated_at = excluded.updated_at`,
		roleKey, roadmapJSON, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetRoleMapping returns the cached mapping payload for a role key.
func (s *Store) GetRoleMapping(roleKey string) (string, error) {
	var payload string
	err := s.db.QueryRow("SELECT roadmap_json FROM role_mappings WHERE role_key = ?", roleKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

// DeleteRoleMapping removes a cached mapping. Missing keys are not an error.
func (s *Store) DeleteRoleMapping(roleKey string) error {
	_, err := s.db.Exec("DELETE FROM role_mappings WHERE role_key = ?", roleKey)
	return err
}

// ListRoleMappings returns all cached role keys in ascending order.
func (s *Store) ListRoleMappings() ([]string, error) {
	rows, err := s.db.Query("SELECT role_key FROM role_mappings ORDER BY role_key ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- User profiles ---

// GetUserProfile returns the stored profile JSON for a user.
func (s *Store) GetUserProfile(userID string) (string, error) {
	var payload string
	err := s.db.QueryRow("SELECT profile_json FROM user_profiles WHERE user_id = ?", userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

// SaveUserProfile upserts the full profile JSON for a user.
// Read-modify-write cycles are not serialized here; concurrent updates for
// the same user are a documented gap closed by the caller's request flow.
func (s *Store) SaveUserProfile(userID, profileJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profiles (user_id, profile_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
		userID, profileJSON, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// --- Evaluations ---

// SaveEvaluation appends one evaluation audit record.
func (s *Store) SaveEvaluation(e Evaluation) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO evaluations (id, user_id, job_role, skills_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.JobRole, e.SkillsJSON, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListEvaluations returns the most recent evaluations for a user, newest first.
func (s *Store) ListEvaluations(userID string, limit int) ([]Evaluation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, job_role, skills_json, created_at
		FROM evaluations WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var e Evaluation
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.JobRole, &e.SkillsJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for evaluation %s: %w", e.ID, err)
		}
		e.CreatedAt = t
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
