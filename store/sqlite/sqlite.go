/*
Package sqlite provides the SQLite-backed policy record store.

PURPOSE:
  Implements ingest.Store for the ingestion engine plus the read-side
  queries the HTTP API needs (listing, lookups, category counts, stats,
  run history). One file, one schema, auto-migrated on New().

KEY TABLES:
  policies:    One row per unique announcement. The fingerprint column
               carries a unique index; a conflicting insert is absorbed,
               never an error. Enrichment columns are NULL until the
               record is analyzed.
  ingest_runs: Run history. The scheduler inserts a "running" row when a
               pass starts and upserts the final status when it ends.

WRITE DISCIPLINE:
  - InsertRecords is the only way policy rows come into existence.
  - UpdateEnrichment is the only mutation afterwards; it refuses rows
    that are already analyzed, so enrichment lands exactly once.
  - Nothing here deletes policy rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/policies.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ingest/store.go: the interface the engine consumes
  - store/memory: in-memory implementation for tests
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

	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/policy"
)

// Store implements ingest.Store plus the API's read-side queries.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ingest.Store = (*Store)(nil)

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
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

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Policy announcements. Enrichment columns stay NULL until analyzed.
	CREATE TABLE IF NOT EXISTS policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		published_date TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'general',
		impact_type TEXT,
		impact_value TEXT,
		old_value TEXT,
		new_value TEXT,
		affected_items TEXT,
		description TEXT,
		analyzed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: dedupe rests on this. Two processes racing on the same
	-- feed item both survive; the loser's insert is absorbed.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_fingerprint
		ON policies(fingerprint);

	-- Reconciliation queries scan analyzed=0 oldest-first (hot path)
	CREATE INDEX IF NOT EXISTS idx_policies_unanalyzed
		ON policies(analyzed, created_at);

	CREATE INDEX IF NOT EXISTS idx_policies_category
		ON policies(category);

	-- Newest-first listings
	CREATE INDEX IF NOT EXISTS idx_policies_created
		ON policies(created_at DESC);

	-- Ingestion run history ("trigger" is an SQL keyword, hence trigger_kind)
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		items_seen INTEGER NOT NULL DEFAULT 0,
		items_saved INTEGER NOT NULL DEFAULT 0,
		duplicate_skips INTEGER NOT NULL DEFAULT 0,
		unenriched INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_runs_started
		ON ingest_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INGEST STORE (ingest.Store interface)
// =============================================================================

// FindByFingerprints reports which fingerprints are already stored.
func (s *Store) FindByFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	out := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fingerprints)), ",")
	args := make([]any, len(fingerprints))
	for i, fp := range fingerprints {
		args[i] = fp
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT fingerprint FROM policies WHERE fingerprint IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		out[fp] = true
	}
	return out, rows.Err()
}

// InsertRecords persists records in one transaction, absorbing fingerprint
// conflicts per record.
func (s *Store) InsertRecords(ctx context.Context, records []policy.Record) ([]ingest.InsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO policies
		(fingerprint, title, summary, link, published_date, source,
		 category, impact_type, impact_value, old_value, new_value,
		 affected_items, description, analyzed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`

	outcomes := make([]ingest.InsertOutcome, len(records))
	for i, rec := range records {
		oc := ingest.InsertOutcome{Fingerprint: rec.Fingerprint}

		category, cols := enrichmentColumns(rec.Enrichment)
		res, err := sqlTx.ExecContext(ctx, query,
			rec.Fingerprint,
			rec.Title,
			rec.Summary,
			rec.Link,
			rec.PublishedDate,
			rec.Source,
			category,
			cols.impactType,
			cols.impactValue,
			cols.oldValue,
			cols.newValue,
			cols.affectedItems,
			cols.description,
			rec.Analyzed,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			oc.Inserted = true
			oc.ID, _ = res.LastInsertId()
		}
		outcomes[i] = oc
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit records: %w", err)
	}
	return outcomes, nil
}

// QueryUnanalyzed returns up to limit unanalyzed records, oldest first.
// limit <= 0 means no limit.
func (s *Store) QueryUnanalyzed(ctx context.Context, limit int) ([]policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT disables the cap
	}

	query := selectRecordCols + `
		FROM policies
		WHERE analyzed = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return s.queryRecords(ctx, query, limit)
}

// UpdateEnrichment attaches enrichment to one record and marks it
// analyzed. Rows that are already analyzed are refused, so the flip
// happens exactly once.
func (s *Store) UpdateEnrichment(ctx context.Context, id int64, e *policy.Enrichment) error {
	if e == nil {
		return fmt.Errorf("nil enrichment for record %d", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	category, cols := enrichmentColumns(e)
	query := `
		UPDATE policies SET
			category = ?,
			impact_type = ?,
			impact_value = ?,
			old_value = ?,
			new_value = ?,
			affected_items = ?,
			description = ?,
			analyzed = 1
		WHERE id = ? AND analyzed = 0
	`

	res, err := s.db.ExecContext(ctx, query,
		category,
		cols.impactType,
		cols.impactValue,
		cols.oldValue,
		cols.newValue,
		cols.affectedItems,
		cols.description,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d not found or already analyzed", id)
	}
	return nil
}

// SaveRun upserts one run-history row by ID.
func (s *Store) SaveRun(ctx context.Context, run ingest.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ingest_runs
		(id, trigger_kind, status, started_at, completed_at,
		 items_seen, items_saved, duplicate_skips, unenriched, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			items_seen = excluded.items_seen,
			items_saved = excluded.items_saved,
			duplicate_skips = excluded.duplicate_skips,
			unenriched = excluded.unenriched,
			error = excluded.error
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		run.Status,
		run.StartedAt.UTC().Format(time.RFC3339),
		nullTime(run.CompletedAt),
		run.ItemsSeen,
		run.ItemsSaved,
		run.DuplicateSkips,
		run.Unenriched,
		run.Error,
	)
	return err
}

// =============================================================================
// READ SIDE (HTTP API queries)
// =============================================================================

// ListFilter narrows a ListRecords query. Zero values mean "no filter".
type ListFilter struct {
	Limit    int
	Offset   int
	Category policy.Category
	Analyzed *bool
}

// ListRecords returns records newest first, optionally filtered.
func (s *Store) ListRecords(ctx context.Context, f ListFilter) ([]policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectRecordCols + " FROM policies"
	var conds []string
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Analyzed != nil {
		conds = append(conds, "analyzed = ?")
		args = append(args, *f.Analyzed)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	return s.queryRecords(ctx, query, args...)
}

// GetRecord returns one record by ID, or nil if it does not exist.
func (s *Store) GetRecord(ctx context.Context, id int64) (*policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectRecordCols+" FROM policies WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CategoryCounts returns the number of stored records per category.
// Categories with no records are absent from the map.
func (s *Store) CategoryCounts(ctx context.Context) (map[policy.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM policies GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	out := make(map[policy.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		out[policy.Category(cat)] = n
	}
	return out, rows.Err()
}

// Stats summarizes the stored corpus.
type Stats struct {
	TotalRecords      int
	AnalyzedRecords   int
	UnanalyzedRecords int
	Recent24h         int // records created in the last 24 hours
	TotalRuns         int
	LatestRecordAt    time.Time // zero when the table is empty
}

// GetStats returns corpus-wide counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(analyzed), 0), MAX(created_at) FROM policies",
	).Scan(&st.TotalRecords, &st.AnalyzedRecords, &latest)
	if err != nil {
		return st, fmt.Errorf("failed to query stats: %w", err)
	}
	st.UnanalyzedRecords = st.TotalRecords - st.AnalyzedRecords
	if latest.Valid && latest.String != "" {
		st.LatestRecordAt, _ = time.Parse(time.RFC3339, latest.String)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM policies WHERE created_at >= ?", cutoff,
	).Scan(&st.Recent24h); err != nil {
		return st, fmt.Errorf("failed to count recent records: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ingest_runs").Scan(&st.TotalRuns); err != nil {
		return st, fmt.Errorf("failed to count runs: %w", err)
	}
	return st, nil
}

// ListRuns returns up to limit run-history rows, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ingest.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, status, started_at, completed_at,
		       items_seen, items_saved, duplicate_skips, unenriched, error
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []ingest.RunRecord
	for rows.Next() {
		var r ingest.RunRecord
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Trigger, &r.Status, &startedAt, &completedAt,
			&r.ItemsSeen, &r.ItemsSaved, &r.DuplicateSkips, &r.Unenriched, &r.Error,
		); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			r.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// ROW MAPPING
// =============================================================================

const selectRecordCols = `
	SELECT id, fingerprint, title, summary, link, published_date, source,
	       category, impact_type, impact_value, old_value, new_value,
	       affected_items, description, analyzed, created_at`

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]policy.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []policy.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (policy.Record, error) {
	var (
		rec           policy.Record
		category      string
		impactType    sql.NullString
		impactValue   sql.NullString
		oldValue      sql.NullString
		newValue      sql.NullString
		affectedItems sql.NullString
		description   sql.NullString
		createdAt     string
	)

	err := row.Scan(
		&rec.ID, &rec.Fingerprint, &rec.Title, &rec.Summary, &rec.Link,
		&rec.PublishedDate, &rec.Source, &category, &impactType, &impactValue,
		&oldValue, &newValue, &affectedItems, &description, &rec.Analyzed,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if rec.Analyzed {
		e := &policy.Enrichment{
			Category:    policy.Category(category),
			ImpactType:  policy.ImpactType(impactType.String),
			Description: description.String,
		}
		if impactValue.Valid {
			if v, err := decimal.NewFromString(impactValue.String); err == nil {
				e.ImpactValue = v
			}
		}
		e.OldValue = parseNullDecimal(oldValue)
		e.NewValue = parseNullDecimal(newValue)
		if affectedItems.Valid && affectedItems.String != "" {
			json.Unmarshal([]byte(affectedItems.String), &e.AffectedItems)
		}
		rec.Enrichment = e
	}

	return rec, nil
}

// enrichmentCols are the nullable columns that carry the enrichment group.
type enrichmentCols struct {
	impactType    sql.NullString
	impactValue   sql.NullString
	oldValue      sql.NullString
	newValue      sql.NullString
	affectedItems sql.NullString
	description   sql.NullString
}

// enrichmentColumns maps an enrichment (possibly nil) to its column
// values. An absent enrichment yields the 'general' category and NULLs,
// keeping the nullable-as-a-group contract visible in the schema.
func enrichmentColumns(e *policy.Enrichment) (string, enrichmentCols) {
	if e == nil {
		return string(policy.CategoryGeneral), enrichmentCols{}
	}

	items := e.AffectedItems
	if items == nil {
		items = []string{}
	}
	itemsJSON, _ := json.Marshal(items)

	return string(e.Category), enrichmentCols{
		impactType:    nullString(string(e.ImpactType)),
		impactValue:   nullString(e.ImpactValue.String()),
		oldValue:      nullDecimalString(e.OldValue),
		newValue:      nullDecimalString(e.NewValue),
		affectedItems: nullString(string(itemsJSON)),
		description:   nullString(e.Description),
	}
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullDecimalString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
