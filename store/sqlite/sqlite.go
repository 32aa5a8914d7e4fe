/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the escalation engine and the
  workflow layer depend on. In production the same patterns apply to
  PostgreSQL with only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  discipline.Store:          warnings, leadership reports, recommendations, action log
  discipline.AgentDirectory: agents and their assigned leaders
  performance.Store:         weekly performance rows

READ-TIME EXPIRY:
  Dates are stored as TEXT "YYYY-MM-DD", so the active filter is a plain
  string comparison:

    status = 'Active' AND (expires_at IS NULL OR expires_at >= :at)

  No statement ever flips a status because a date passed.

KEY TABLES:
  agents:             Directory (agent -> leader)
  warnings:           Disciplinary history
  recommendations:    Engine output, actioned once
  leadership_reports: Accountability records against leaders
  action_log:         Free-text corrective actions
  weekly_performance: Scores and flags per agent/metric/week

UNIQUENESS:
  - idx_recommendations_trigger: one recommendation per (agent, metric, weeks)
  - idx_leadership_reports_unique: one report per (leader, agent, metric, kind, weeks)
  Violations surface as discipline.ErrDuplicateRecommendation and
  discipline.ErrDuplicateReport.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/qperform.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - discipline/store.go: Interface definitions
  - discipline/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/performance"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ discipline.Store          = (*Store)(nil)
	_ discipline.AgentDirectory = (*Store)(nil)
	_ performance.Store         = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Agents (directory)
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		leader_id TEXT,
		client TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_leader
		ON agents(leader_id) WHERE leader_id IS NOT NULL;

	-- Warnings (disciplinary history)
	CREATE TABLE IF NOT EXISTS warnings (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		metric TEXT NOT NULL,
		subtype TEXT,
		notes TEXT,
		issued_by TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		expires_at TEXT,
		status TEXT NOT NULL DEFAULT 'Active',
		week_start TEXT,
		week_end TEXT,
		client TEXT,
		category TEXT,
		created_at TEXT NOT NULL
	);

	-- Active-warning reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_warnings_agent_metric_status
		ON warnings(agent_id, metric, status, expires_at);
	CREATE INDEX IF NOT EXISTS idx_warnings_agent_issued
		ON warnings(agent_id, issued_at);

	-- Recommendations (engine output)
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		case_code TEXT NOT NULL,
		metric TEXT NOT NULL,
		action TEXT NOT NULL,
		priority TEXT NOT NULL,
		details_json TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		week_start TEXT NOT NULL,
		week_end TEXT NOT NULL,
		actioned BOOLEAN NOT NULL DEFAULT FALSE,
		actioned_by TEXT,
		actioned_at TEXT,
		action_notes TEXT
	);

	-- CRITICAL: one recommendation per evaluation trigger
	CREATE UNIQUE INDEX IF NOT EXISTS idx_recommendations_trigger
		ON recommendations(agent_id, metric, week_start, week_end);
	CREATE INDEX IF NOT EXISTS idx_recommendations_pending
		ON recommendations(actioned, generated_at);

	-- Leadership reports (accountability)
	CREATE TABLE IF NOT EXISTS leadership_reports (
		id TEXT PRIMARY KEY,
		leader_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		kind TEXT NOT NULL,
		issued_by TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		expires_at TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		reason TEXT,
		week_start TEXT NOT NULL,
		week_end TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: a lapse is reported once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leadership_reports_unique
		ON leadership_reports(leader_id, agent_id, metric, kind, week_start, week_end);
	CREATE INDEX IF NOT EXISTS idx_leadership_reports_leader
		ON leadership_reports(leader_id, active, expires_at);

	-- Action log (free-text corrective actions)
	CREATE TABLE IF NOT EXISTS action_log (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		author TEXT NOT NULL,
		logged_at TEXT NOT NULL,
		note TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_action_log_agent_date
		ON action_log(agent_id, logged_at);

	-- Weekly performance
	CREATE TABLE IF NOT EXISTS weekly_performance (
		agent_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		week_start TEXT NOT NULL,
		week_end TEXT NOT NULL,
		score TEXT NOT NULL,
		target TEXT NOT NULL,
		flag TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, metric, week_start)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AGENT DIRECTORY
// =============================================================================

// SaveAgent inserts or updates an agent.
func (s *Store) SaveAgent(ctx context.Context, a discipline.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO agents (id, name, leader_id, client, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			leader_id = excluded.leader_id,
			client = excluded.client
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, nullString(string(a.LeaderID)), nullString(a.Client),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(ctx context.Context, id discipline.AgentID) (*discipline.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, leader_id, client, created_at FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgents returns all agents ordered by ID.
func (s *Store) ListAgents(ctx context.Context) ([]discipline.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, leader_id, client, created_at FROM agents ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []discipline.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row scanner) (discipline.Agent, error) {
	var a discipline.Agent
	var leader, client sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &leader, &client, &createdAt); err != nil {
		return a, err
	}
	a.LeaderID = discipline.LeaderID(leader.String)
	a.Client = client.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

// =============================================================================
// WARNINGS
// =============================================================================

const warningColumns = `id, agent_id, kind, metric, subtype, notes, issued_by, issued_at,
	expires_at, status, week_start, week_end, client, category, created_at`

// InsertWarning writes one warning row.
func (s *Store) InsertWarning(ctx context.Context, w discipline.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO warnings (`+warningColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.AgentID, w.Kind, w.Metric,
		nullString(w.Subtype), nullString(w.Notes), w.IssuedBy,
		w.IssuedAt.String(), nullDate(w.ExpiresAt), w.Status,
		nullDate(datePtr(w.Weeks.Start)), nullDate(datePtr(w.Weeks.End)),
		nullString(w.Client), nullString(w.Category),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert warning: %w", err)
	}
	return nil
}

// ActiveWarnings applies the read-time expiry filter in SQL.
func (s *Store) ActiveWarnings(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, at discipline.TimePoint) ([]discipline.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + warningColumns + ` FROM warnings
		WHERE agent_id = ? AND metric = ? AND status = ?
		  AND (expires_at IS NULL OR expires_at >= ?)
		ORDER BY issued_at, created_at
	`
	return s.queryWarnings(ctx, query, agentID, metric, discipline.StatusActive, at.String())
}

// ListWarnings returns the agent's full history.
func (s *Store) ListWarnings(ctx context.Context, agentID discipline.AgentID) ([]discipline.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + warningColumns + ` FROM warnings WHERE agent_id = ? ORDER BY issued_at, created_at`
	return s.queryWarnings(ctx, query, agentID)
}

// SetWarningStatus deactivates or reactivates a warning by hand (rescinded
// in HR review). Expiry never needs this.
func (s *Store) SetWarningStatus(ctx context.Context, id string, status discipline.WarningStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE warnings SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("warning %s: %w", id, discipline.ErrInvalidInput)
	}
	return nil
}

func (s *Store) queryWarnings(ctx context.Context, query string, args ...any) ([]discipline.Warning, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	defer rows.Close()

	var warnings []discipline.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

func scanWarning(row scanner) (discipline.Warning, error) {
	var w discipline.Warning
	var subtype, notes, expiresAt, weekStart, weekEnd, client, category sql.NullString
	var issuedAt, createdAt string

	err := row.Scan(&w.ID, &w.AgentID, &w.Kind, &w.Metric, &subtype, &notes, &w.IssuedBy,
		&issuedAt, &expiresAt, &w.Status, &weekStart, &weekEnd, &client, &category, &createdAt)
	if err != nil {
		return w, err
	}

	w.Subtype = subtype.String
	w.Notes = notes.String
	w.Client = client.String
	w.Category = category.String
	w.IssuedAt = parseDate(issuedAt)
	w.ExpiresAt = parseNullDate(expiresAt)
	w.Weeks = parseWeeks(weekStart, weekEnd)
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return w, nil
}

// =============================================================================
// LEADERSHIP REPORTS
// =============================================================================

const reportColumns = `id, leader_id, agent_id, metric, kind, issued_by, issued_at, expires_at,
	active, reason, week_start, week_end, created_at`

// InsertLeadershipReports writes the reports in one transaction.
func (s *Store) InsertLeadershipReports(ctx context.Context, reports []discipline.LeadershipReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range reports {
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO leadership_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.LeaderID, r.AgentID, r.Metric, r.Kind, r.IssuedBy,
			r.IssuedAt.String(), nullDate(r.ExpiresAt), r.Active, nullString(r.Reason),
			r.Weeks.Start.String(), r.Weeks.End.String(), now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return discipline.ErrDuplicateReport
			}
			return fmt.Errorf("failed to insert leadership report: %w", err)
		}
	}

	return sqlTx.Commit()
}

// ActiveLeadershipReports applies the read-time expiry filter in SQL.
func (s *Store) ActiveLeadershipReports(ctx context.Context, leaderID discipline.LeaderID, at discipline.TimePoint) ([]discipline.LeadershipReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + reportColumns + ` FROM leadership_reports
		WHERE leader_id = ? AND active = TRUE
		  AND (expires_at IS NULL OR expires_at >= ?)
		ORDER BY issued_at, created_at
	`
	return s.queryReports(ctx, query, leaderID, at.String())
}

// ListLeadershipReports returns the leader's full history.
func (s *Store) ListLeadershipReports(ctx context.Context, leaderID discipline.LeaderID) ([]discipline.LeadershipReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + reportColumns + ` FROM leadership_reports WHERE leader_id = ? ORDER BY issued_at, created_at`
	return s.queryReports(ctx, query, leaderID)
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]discipline.LeadershipReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leadership reports: %w", err)
	}
	defer rows.Close()

	var reports []discipline.LeadershipReport
	for rows.Next() {
		var r discipline.LeadershipReport
		var expiresAt, reason sql.NullString
		var issuedAt, weekStart, weekEnd, createdAt string

		err := rows.Scan(&r.ID, &r.LeaderID, &r.AgentID, &r.Metric, &r.Kind, &r.IssuedBy,
			&issuedAt, &expiresAt, &r.Active, &reason, &weekStart, &weekEnd, &createdAt)
		if err != nil {
			return nil, err
		}
		r.IssuedAt = parseDate(issuedAt)
		r.ExpiresAt = parseNullDate(expiresAt)
		r.Reason = reason.String
		r.Weeks = discipline.WeekRange{Start: parseDate(weekStart), End: parseDate(weekEnd)}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

const recommendationColumns = `id, agent_id, case_code, metric, action, priority, details_json,
	generated_at, week_start, week_end, actioned, actioned_by, actioned_at, action_notes`

// InsertRecommendation persists engine output. A second row for the same
// trigger fails with ErrDuplicateRecommendation.
func (s *Store) InsertRecommendation(ctx context.Context, rec discipline.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recommendations (`+recommendationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.Case, rec.Metric, rec.Action, rec.Priority, string(detailsJSON),
		rec.GeneratedAt.UTC().Format(time.RFC3339Nano),
		rec.Weeks.Start.String(), rec.Weeks.End.String(),
		rec.Actioned, nullString(rec.ActionedBy), nullTime(rec.ActionedAt), nullString(rec.ActionNotes),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return discipline.ErrDuplicateRecommendation
		}
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

// GetRecommendation returns nil, nil when the ID is unknown.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*discipline.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getRecommendation(ctx, "SELECT "+recommendationColumns+" FROM recommendations WHERE id = ?", id)
}

// FindRecommendation returns the row for a trigger, or nil.
func (s *Store) FindRecommendation(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, weeks discipline.WeekRange) (*discipline.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getRecommendation(ctx,
		"SELECT "+recommendationColumns+" FROM recommendations WHERE agent_id = ? AND metric = ? AND week_start = ? AND week_end = ?",
		agentID, metric, weeks.Start.String(), weeks.End.String())
}

func (s *Store) getRecommendation(ctx context.Context, query string, args ...any) (*discipline.Recommendation, error) {
	rec, err := scanRecommendation(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecommendations returns rows matching the filter, oldest first.
func (s *Store) ListRecommendations(ctx context.Context, filter discipline.RecommendationFilter) ([]discipline.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.AgentID != nil {
		where = append(where, "agent_id = ?")
		args = append(args, *filter.AgentID)
	}
	if filter.Metric != nil {
		where = append(where, "metric = ?")
		args = append(args, *filter.Metric)
	}
	if filter.PendingOnly {
		where = append(where, "actioned = FALSE")
	}

	query := "SELECT " + recommendationColumns + " FROM recommendations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY generated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []discipline.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkRecommendationActioned sets the actioned fields once. The WHERE clause
// makes the transition atomic.
func (s *Store) MarkRecommendationActioned(ctx context.Context, rec discipline.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET actioned = TRUE, actioned_by = ?, actioned_at = ?, action_notes = ?
		WHERE id = ? AND actioned = FALSE
	`, rec.ActionedBy, nullTime(rec.ActionedAt), nullString(rec.ActionNotes), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to mark recommendation actioned: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommendations WHERE id = ?", rec.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return discipline.ErrRecommendationNotFound
	}
	return discipline.ErrAlreadyActioned
}

func scanRecommendation(row scanner) (discipline.Recommendation, error) {
	var rec discipline.Recommendation
	var detailsJSON, generatedAt, weekStart, weekEnd string
	var actionedBy, actionedAt, actionNotes sql.NullString

	err := row.Scan(&rec.ID, &rec.AgentID, &rec.Case, &rec.Metric, &rec.Action, &rec.Priority,
		&detailsJSON, &generatedAt, &weekStart, &weekEnd,
		&rec.Actioned, &actionedBy, &actionedAt, &actionNotes)
	if err != nil {
		return rec, err
	}

	if err := json.Unmarshal([]byte(detailsJSON), &rec.Details); err != nil {
		return rec, fmt.Errorf("failed to decode details for %s: %w", rec.ID, err)
	}
	rec.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
	rec.Weeks = discipline.WeekRange{Start: parseDate(weekStart), End: parseDate(weekEnd)}
	rec.ActionedBy = actionedBy.String
	rec.ActionNotes = actionNotes.String
	if actionedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, actionedAt.String)
		rec.ActionedAt = &t
	}
	return rec, nil
}

// =============================================================================
// ACTION LOG
// =============================================================================

// InsertAction writes one action log entry.
func (s *Store) InsertAction(ctx context.Context, entry discipline.ActionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO action_log (id, agent_id, author, logged_at, note) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.AgentID, entry.Author, entry.LoggedAt.String(), entry.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// ListActions returns entries logged within [from, to].
func (s *Store) ListActions(ctx context.Context, agentID discipline.AgentID, from, to discipline.TimePoint) ([]discipline.ActionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, author, logged_at, note FROM action_log
		WHERE agent_id = ? AND logged_at >= ? AND logged_at <= ?
		ORDER BY logged_at
	`, agentID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var entries []discipline.ActionLogEntry
	for rows.Next() {
		var e discipline.ActionLogEntry
		var loggedAt string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Author, &loggedAt, &e.Note); err != nil {
			return nil, err
		}
		e.LoggedAt = parseDate(loggedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// WEEKLY PERFORMANCE
// =============================================================================

// UpsertPerformance inserts or replaces a week's row.
func (s *Store) UpsertPerformance(ctx context.Context, row performance.WeeklyPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO weekly_performance (agent_id, metric, week_start, week_end, score, target, flag, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, metric, week_start) DO UPDATE SET
			week_end = excluded.week_end,
			score = excluded.score,
			target = excluded.target,
			flag = excluded.flag,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		row.AgentID, row.Metric, row.Week.Start.String(), row.Week.End.String(),
		row.Score.String(), row.Target.String(), nullString(string(row.Flag)),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert performance: %w", err)
	}
	return nil
}

// ListPerformance returns rows whose week starts within [from, to].
func (s *Store) ListPerformance(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, from, to discipline.TimePoint) ([]performance.WeeklyPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, metric, week_start, week_end, score, target, flag
		FROM weekly_performance
		WHERE agent_id = ? AND metric = ? AND week_start >= ? AND week_start <= ?
		ORDER BY week_start
	`, agentID, metric, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query performance: %w", err)
	}
	defer rows.Close()

	var result []performance.WeeklyPerformance
	for rows.Next() {
		var p performance.WeeklyPerformance
		var weekStart, weekEnd, score, target string
		var flag sql.NullString
		if err := rows.Scan(&p.AgentID, &p.Metric, &weekStart, &weekEnd, &score, &target, &flag); err != nil {
			return nil, err
		}
		p.Week = discipline.WeekRange{Start: parseDate(weekStart), End: parseDate(weekEnd)}
		p.Score = parseDecimal(score)
		p.Target = parseDecimal(target)
		p.Flag = performance.Flag(flag.String)
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"recommendations", "leadership_reports", "action_log", "weekly_performance", "warnings", "agents"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(tp *discipline.TimePoint) sql.NullString {
	if tp == nil || tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func datePtr(tp discipline.TimePoint) *discipline.TimePoint {
	return &tp
}

func parseDate(s string) discipline.TimePoint {
	tp, _ := discipline.ParseDate(s)
	return tp
}

func parseNullDate(ns sql.NullString) *discipline.TimePoint {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	tp := parseDate(ns.String)
	return &tp
}

func parseWeeks(start, end sql.NullString) discipline.WeekRange {
	if !start.Valid || !end.Valid {
		return discipline.WeekRange{}
	}
	return discipline.WeekRange{Start: parseDate(start.String), End: parseDate(end.String)}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
