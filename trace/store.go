package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/tbxark/soprano/agent"
	"github.com/tbxark/soprano/types"

	_ "modernc.org/sqlite"
)

var _ agent.TurnObserver = (*Store)(nil)

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02 15:04:05.000000"

const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    form_id TEXT NOT NULL DEFAULT '',
    field TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL DEFAULT '',
    raw TEXT NOT NULL DEFAULT '',
    intent TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    spoken TEXT NOT NULL DEFAULT '[]',
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at);
`

// Turn is one recorded dialogue turn.
type Turn struct {
	ID         string
	SessionID  string
	FormID     string
	Field      string
	Mode       types.Mode
	Transcript string
	Raw        string
	Intent     types.Action
	Outcome    agent.Outcome
	Spoken     []string
	Err        string
	StartedAt  time.Time
	Duration   time.Duration
}

// Store is an append-only SQLite log of dialogue turns. It is never read to
// resume a session.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging trace database: %w", err)
	}
	return newStore(db)
}

// OpenMemory opens a private in-memory store, for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory trace database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating trace schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts t. An empty ID gets a fresh UUID.
func (s *Store) Append(ctx context.Context, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	spoken, err := sonic.MarshalString(t.Spoken)
	if err != nil {
		return fmt.Errorf("marshalling spoken text: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (
			id, session_id, form_id, field, mode, transcript, raw,
			intent, outcome, spoken, error, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.SessionID,
		t.FormID,
		t.Field,
		string(t.Mode),
		t.Transcript,
		t.Raw,
		string(t.Intent),
		string(t.Outcome),
		spoken,
		t.Err,
		t.StartedAt.UTC().Format(timeLayout),
		t.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// ObserveTurn records rec. Failures are logged; tracing never breaks a
// dialogue.
func (s *Store) ObserveTurn(ctx context.Context, rec agent.TurnRecord) {
	err := s.Append(ctx, Turn{
		SessionID:  rec.SessionID,
		FormID:     rec.FormID,
		Field:      rec.Field,
		Mode:       rec.Mode,
		Transcript: rec.Transcript,
		Raw:        rec.Raw,
		Intent:     rec.Intent,
		Outcome:    rec.Outcome,
		Spoken:     rec.Spoken,
		Err:        rec.Err,
		StartedAt:  rec.StartedAt,
		Duration:   rec.Duration,
	})
	if err != nil {
		slog.Warn("trace write failed", "session", rec.SessionID, "err", err)
	}
}

// List returns the turns of sessionID oldest first. An empty sessionID lists
// the most recent session.
func (s *Store) List(ctx context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT session_id FROM turns ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&sessionID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding latest session: %w", err)
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, form_id, field, mode, transcript, raw,
			   intent, outcome, spoken, error, started_at, duration_ms
		FROM turns WHERE session_id = ? ORDER BY started_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var (
			t                    Turn
			mode, intent, result string
			spoken, startedAt    string
			durationMS           int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.FormID, &t.Field, &mode, &t.Transcript, &t.Raw,
			&intent, &result, &spoken, &t.Err, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Mode = types.Mode(mode)
		t.Intent = types.Action(intent)
		t.Outcome = agent.Outcome(result)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(timeLayout, startedAt); err == nil {
			t.StartedAt = ts
		}
		if err := sonic.UnmarshalString(spoken, &t.Spoken); err != nil {
			return nil, fmt.Errorf("decoding spoken text of %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
