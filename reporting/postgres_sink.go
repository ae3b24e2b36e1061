package reporting

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethereum-optimism/infra/op-session/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	run_id      TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	started_at  TIMESTAMPTZ,
	ended_at    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS session_cases (
	run_id        TEXT NOT NULL REFERENCES sessions(run_id),
	position      INTEGER NOT NULL,
	suite         TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// Connection stores summaries in a database
type Connection interface {
	Migrate(ctx context.Context) error
	Begin(ctx context.Context) (Transactor, error)
	Close() error
}

// Transactor writes one summary atomically
type Transactor interface {
	InsertSession(ctx context.Context, s *types.ExecutionSummary) error
	InsertCase(ctx context.Context, runID string, position int, c types.SummaryRecord) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

var (
	_ Connection  = (*PGXDB)(nil)
	_ Transactor  = (*PGXTransactor)(nil)
	_ SummarySink = (*PostgresSink)(nil)
)

type PGXDB struct {
	conn *pgxpool.Pool
}

func NewPGXDB(ctx context.Context, uri string) (*PGXDB, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &PGXDB{conn: conn}, nil
}

func (p *PGXDB) Migrate(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (p *PGXDB) Begin(ctx context.Context) (Transactor, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PGXTransactor{tx: tx}, nil
}

func (p *PGXDB) Close() error {
	p.conn.Close()
	return nil
}

type PGXTransactor struct {
	tx  pgx.Tx
	mtx sync.Mutex
}

func (p *PGXTransactor) InsertSession(ctx context.Context, s *types.ExecutionSummary) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO sessions (run_id, status, passed, failed, skipped, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT DO NOTHING
`
	if _, err := p.tx.Exec(ctx,
		sql,
		s.RunID,
		string(s.Status()),
		s.Passed,
		s.Failed,
		s.Skipped,
		s.StartTime,
		s.EndTime,
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (p *PGXTransactor) InsertCase(ctx context.Context, runID string, position int, c types.SummaryRecord) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO session_cases (run_id, position, suite, name, description, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT DO NOTHING
`
	if _, err := p.tx.Exec(ctx,
		sql,
		runID,
		position,
		c.SuiteQualifiedName,
		c.DisplayName,
		c.Description,
		c.StatusLabel,
		c.ErrorMessage,
	); err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

func (p *PGXTransactor) Commit(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Commit(ctx)
}

func (p *PGXTransactor) Rollback(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	_ = p.tx.Rollback(ctx)
}

// PostgresSink writes the session and its cases in one transaction
type PostgresSink struct {
	db Connection
}

func NewPostgresSink(db Connection) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Emit(ctx context.Context, summary *types.ExecutionSummary) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.InsertSession(ctx, summary); err != nil {
		tx.Rollback(ctx)
		return err
	}
	for i, c := range summary.Cases {
		if err := tx.InsertCase(ctx, summary.RunID, i, c); err != nil {
			tx.Rollback(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}
