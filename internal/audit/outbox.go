package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"slackmcp/internal/domain"
)

// migration is one schema step, applied once and tracked in schema_version.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "audit outbox",
		SQL: `
		CREATE TABLE IF NOT EXISTS outbox (
			id          TEXT PRIMARY KEY,
			tool        TEXT NOT NULL,
			record      TEXT NOT NULL,
			attempts    INTEGER DEFAULT 0,
			last_error  TEXT DEFAULT '',
			created_at  DATETIME NOT NULL,
			attempted_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_created ON outbox(created_at);
		`,
	},
}

// Pending is a queued record awaiting redelivery.
type Pending struct {
	Record      domain.AuditRecord
	Attempts    int
	LastError   string
	QueuedAt    time.Time
	AttemptedAt time.Time
}

// Outbox is the durable queue of audit records that could not be posted.
type Outbox struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutbox(dbPath string, logger *zap.Logger) (*Outbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create outbox directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open outbox: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	o := &Outbox{db: db, logger: logger}
	if err := o.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("outbox migration failed: %w", err)
	}
	return o, nil
}

func (o *Outbox) migrate() error {
	if _, err := o.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current := 0
	if err := o.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		o.logger.Info("applying outbox migration",
			zap.Int("version", m.Version), zap.String("description", m.Description))
		tx, err := o.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// Enqueue stores rec. Enqueueing the same record twice keeps one copy.
func (o *Outbox) Enqueue(ctx context.Context, rec domain.AuditRecord, cause error) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO outbox (id, tool, record, attempts, last_error, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		rec.ID, rec.Tool, string(body), lastErr, time.Now().UTC(),
	)
	return err
}

// Pending lists queued records in the order they were queued. limit <= 0
// means all.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Pending, error) {
	q := `SELECT record, attempts, last_error, created_at, attempted_at FROM outbox ORDER BY rowid`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var (
			p         Pending
			body      string
			attempted sql.NullTime
		)
		if err := rows.Scan(&body, &p.Attempts, &p.LastError, &p.QueuedAt, &attempted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &p.Record); err != nil {
			o.logger.Warn("skipping undecodable outbox row", zap.Error(err))
			continue
		}
		if attempted.Valid {
			p.AttemptedAt = attempted.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkAttempt records a failed redelivery.
func (o *Outbox) MarkAttempt(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ?, attempted_at = ? WHERE id = ?`,
		msg, time.Now().UTC(), id,
	)
	return err
}

func (o *Outbox) Delete(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	return err
}

func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n)
	return n, err
}

func (o *Outbox) Close() error {
	return o.db.Close()
}
