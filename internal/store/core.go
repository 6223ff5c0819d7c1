// Package store implements the persistent store (C1): items, chunks, and
// the inverted index maintained under one atomic invariant (spec.md §3
// invariant A1), plus failures, frequencies, feedback, settings, and the
// learning core's persisted state. Single-process exclusive writer, many
// readers, mediated by SQLite's WAL mode plus an application-level
// busy-retry loop (spec.md §4.1), grounded on the teacher's pragma setup
// and dual chunk/BM25 write pattern in sqlite_bm25.go and
// internal/search/engine.go's Index/Delete methods.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// busyRetryAttempts and busyRetryStepMs implement spec.md §4.1's busy-retry
// loop: a write that fails with "busy/locked" retries up to 5 times with
// linearly increasing sleep (50ms per attempt) even after the native busy
// timeout has already expired, since the engine's busy handler is not
// invoked on every contention path (e.g. inside a SAVEPOINT nested in
// another process's long transaction).
const (
	busyRetryAttempts = 5
	busyRetryStepMs   = 50
)

// Store is the persistent store's single handle. It owns one *sql.DB for
// every relation named in spec.md §6 plus the legacy code-search tables
// already defined by sqlite_bm25.go's initSchema (both share one file).
type Store struct {
	db   *sql.DB
	path string

	stopWords map[string]struct{}
}

// Open creates or opens the store at path (or an in-memory store if path
// is empty), sets the required pragmas, and runs any pending migrations.
// A failed open never returns a usable handle: state lives only in "open"
// or "closed" (spec.md §4.1 state machine).
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA wal_autocheckpoint = 1000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(itemSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{db: db, path: path, stopWords: defaultStopWords}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies itemMigrations in order, recording the applied version
// under the "schema_version" setting (spec.md §4.1: "schema version is a
// setting; the schema is never altered outside the migration step").
func (s *Store) migrate() error {
	current := 1
	if v, ok, err := s.GetSetting("schema_version"); err == nil && ok {
		fmt.Sscanf(v, "%d", &current)
	}
	for i := current - 1; i < len(itemMigrations); i++ {
		if _, err := s.db.Exec(itemMigrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return s.SetSetting("schema_version", fmt.Sprintf("%d", len(itemMigrations)+1))
}

// Close closes the underlying handle; idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}

// withBusyRetry runs fn, retrying up to busyRetryAttempts times with
// linearly increasing sleep when fn fails with a busy/locked error
// (spec.md §4.1, §7, §8 "Store busy errors retry with 50ms linear backoff
// up to 5 attempts before surfacing").
func withBusyRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusyErr(err) {
			return err
		}
		time.Sleep(time.Duration(attempt*busyRetryStepMs) * time.Millisecond)
	}
	return err
}

// UpsertItem inserts or updates item keyed by Path, then re-reads the row
// to obtain its id — last-insert-rowid is unreliable under UPSERT during
// batch transactions (spec.md §4.1, §9 "Handle/id duality").
func (s *Store) UpsertItem(item Item) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	err := withBusyRetry(func() error {
		_, execErr := s.db.Exec(`
			INSERT INTO items (path, name, extension, kind, size, created_at, modified_at, last_indexed, content_hash, sensitivity, pinned, parent_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				name=excluded.name, extension=excluded.extension, kind=excluded.kind,
				size=excluded.size, modified_at=excluded.modified_at,
				last_indexed=excluded.last_indexed, content_hash=excluded.content_hash,
				sensitivity=excluded.sensitivity, pinned=excluded.pinned, parent_path=excluded.parent_path
		`, item.Path, item.Name, item.Extension, string(item.Kind), item.Size,
			item.CreatedAt.Unix(), item.ModifiedAt.Unix(), item.LastIndexed.Unix(),
			item.ContentHash, item.Sensitivity, boolToInt(item.Pinned), item.ParentPath)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("upsert item: %w", err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM items WHERE path = ?`, item.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("re-read item id: %w", err)
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetItemByPath returns the item at path, or (nil, nil) if absent.
func (s *Store) GetItemByPath(path string) (*Item, error) {
	row := s.db.QueryRow(`
		SELECT id, path, name, extension, kind, size, created_at, modified_at, last_indexed, content_hash, sensitivity, pinned, parent_path
		FROM items WHERE path = ?`, path)
	var it Item
	var kind string
	var pinned int
	var created, modified, indexed int64
	err := row.Scan(&it.ID, &it.Path, &it.Name, &it.Extension, &kind, &it.Size,
		&created, &modified, &indexed, &it.ContentHash, &it.Sensitivity, &pinned, &it.ParentPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by path: %w", err)
	}
	it.Kind = ItemKind(kind)
	it.Pinned = pinned != 0
	it.CreatedAt = time.Unix(created, 0)
	it.ModifiedAt = time.Unix(modified, 0)
	it.LastIndexed = time.Unix(indexed, 0)
	return &it, nil
}

// DeleteItemByPath deletes the item at path and cascades to Chunks, Tags,
// Failures, Feedback, Frequency, and VectorMap (spec.md §3 Item lifecycle).
func (s *Store) DeleteItemByPath(path string) error {
	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var id int64
		err = tx.QueryRow(`SELECT id FROM items WHERE path = ?`, path).Scan(&id)
		if err == sql.ErrNoRows {
			return tx.Commit()
		}
		if err != nil {
			return err
		}

		if err := deleteChunksForItemTx(tx, id); err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM failures WHERE item_id = ?`,
			`DELETE FROM feedback WHERE item_id = ?`,
			`DELETE FROM frequencies WHERE item_id = ?`,
			`DELETE FROM vector_map WHERE item_id = ?`,
			`DELETE FROM items WHERE id = ?`,
		} {
			if _, err := tx.Exec(stmt, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// DeleteChunksForItem removes every chunk and matching search_index row
// for itemID.
func (s *Store) DeleteChunksForItem(itemID int64) error {
	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := deleteChunksForItemTx(tx, itemID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func deleteChunksForItemTx(tx *sql.Tx, itemID int64) error {
	rows, err := tx.Query(`SELECT id FROM item_chunks WHERE item_id = ?`, itemID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM search_index WHERE chunk_id = ?`, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM item_chunks WHERE item_id = ?`, itemID); err != nil {
		return err
	}
	return nil
}

// InsertChunks is the atomic indexing operation of spec.md's invariant A1:
// inside one savepoint, it deletes existing chunks for item, deletes
// existing inverted-index rows for item, then inserts every chunk row
// followed by its inverted-index row. Any failure rolls back the
// savepoint. Wrapped in the busy-retry loop since rebuild-lane writers
// contend with live-lane writers and multi-process readers.
func (s *Store) InsertChunks(itemID int64, name, path string, chunks []ItemChunk) error {
	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(`SAVEPOINT insert_chunks`); err != nil {
			return err
		}
		rollback := func(cause error) error {
			_, _ = tx.Exec(`ROLLBACK TO SAVEPOINT insert_chunks`)
			return cause
		}

		if err := deleteChunksForItemTx(tx, itemID); err != nil {
			return rollback(err)
		}

		for _, c := range chunks {
			if _, err := tx.Exec(`
				INSERT INTO item_chunks (id, item_id, chunk_index, text, content_hash)
				VALUES (?, ?, ?, ?, ?)`, c.ID, itemID, c.ChunkIndex, c.Text, c.ContentHash); err != nil {
				return rollback(fmt.Errorf("insert chunk %s: %w", c.ID, err))
			}
			if _, err := tx.Exec(`
				INSERT INTO search_index (chunk_id, item_id, name, path, content)
				VALUES (?, ?, ?, ?, ?)`, c.ID, itemID, name, path, c.Text); err != nil {
				return rollback(fmt.Errorf("insert search_index row for chunk %s: %w", c.ID, err))
			}
		}

		if _, err := tx.Exec(`RELEASE SAVEPOINT insert_chunks`); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DeleteAll clears the inverted-index relation (virtual, does not cascade)
// before deleting items, per spec.md §4.1 "Delete-all".
func (s *Store) DeleteAll() error {
	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, stmt := range []string{
			`DELETE FROM search_index`,
			`DELETE FROM item_chunks`,
			`DELETE FROM failures`,
			`DELETE FROM feedback`,
			`DELETE FROM frequencies`,
			`DELETE FROM vector_map`,
			`DELETE FROM items`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetSetting satisfies settingsstore.Backing.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetSetting satisfies settingsstore.Backing.
func (s *Store) SetSetting(key, value string) error {
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
}

// ListSettings returns every persisted setting key/value pair, for the
// CLI's config list/export commands.
func (s *Store) ListSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// RecordFailure increments the (item, stage) failure counter, classifying
// severity from the message (spec.md §3 Failure).
func (s *Store) RecordFailure(itemID int64, stage, message string) error {
	now := time.Now().Unix()
	severity := ClassifyFailure(message)
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO failures (item_id, stage, count, first_seen, last_seen, message, severity)
			VALUES (?, ?, 1, ?, ?, ?, ?)
			ON CONFLICT(item_id, stage) DO UPDATE SET
				count = count + 1, last_seen = excluded.last_seen,
				message = excluded.message, severity = excluded.severity
		`, itemID, stage, now, now, message, string(severity))
		return err
	})
}

// ClearFailures removes every failure row for itemID (e.g. after a
// successful re-index).
func (s *Store) ClearFailures(itemID int64) error {
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM failures WHERE item_id = ?`, itemID)
		return err
	})
}

// TotalFailures aggregates failure counts, excluding expected-gap severity
// from the total per spec.md §4.1's "Failure severity filter", and returns
// the critical/expected-gap split.
func (s *Store) TotalFailures() (total, critical, expectedGap int, err error) {
	rows, err := s.db.Query(`SELECT count, severity FROM failures`)
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var count int
		var severity string
		if err := rows.Scan(&count, &severity); err != nil {
			return 0, 0, 0, err
		}
		if severity == string(SeverityExpectedGap) {
			expectedGap += count
		} else {
			critical += count
		}
	}
	total = critical
	return total, critical, expectedGap, rows.Err()
}

// ListFailures returns every recorded failure joined with its item's path,
// for the getHealthDetails() paginated listing (spec.md §4.5.2).
func (s *Store) ListFailures() ([]FailureDetail, error) {
	rows, err := s.db.Query(`
		SELECT items.path, failures.message, failures.severity
		FROM failures JOIN items ON items.id = failures.item_id
		ORDER BY failures.last_seen DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailureDetail
	for rows.Next() {
		var d FailureDetail
		var severity string
		if err := rows.Scan(&d.ItemPath, &d.Reason, &severity); err != nil {
			return nil, err
		}
		d.Severity = severity
		d.Expected = severity == string(SeverityExpectedGap)
		out = append(out, d)
	}
	return out, rows.Err()
}

// FailureDetail is one row of the getHealthDetails() listing, joining a
// failure's item path with its recorded message and severity.
type FailureDetail struct {
	ItemPath string
	Reason   string
	Severity string
	Expected bool
}

// RecordFeedback appends one feedback row (spec.md §3 Feedback).
func (s *Store) RecordFeedback(itemID int64, action, query string, resultPosition int) error {
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO feedback (item_id, action, query, result_position, timestamp)
			VALUES (?, ?, ?, ?, ?)`, itemID, action, query, resultPosition, time.Now().Unix())
		return err
	})
}

// IncrementFrequency bumps an item's interaction counter.
func (s *Store) IncrementFrequency(itemID int64) error {
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO frequencies (item_id, open_count, last_opened, interactions)
			VALUES (?, 0, ?, 1)
			ON CONFLICT(item_id) DO UPDATE SET interactions = interactions + 1
		`, itemID, time.Now().Unix())
		return err
	})
}

// GetFrequency returns itemID's frequency row (zero value if absent).
func (s *Store) GetFrequency(itemID int64) (Frequency, error) {
	var f Frequency
	var lastOpened int64
	f.ItemID = itemID
	err := s.db.QueryRow(`SELECT open_count, last_opened, interactions FROM frequencies WHERE item_id = ?`, itemID).
		Scan(&f.OpenCount, &lastOpened, &f.Interactions)
	if err == sql.ErrNoRows {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	f.LastOpened = time.Unix(lastOpened, 0)
	return f, nil
}

// GetFrequenciesBatch returns frequency rows for every id in itemIDs that
// has one recorded.
func (s *Store) GetFrequenciesBatch(itemIDs []int64) (map[int64]Frequency, error) {
	out := make(map[int64]Frequency, len(itemIDs))
	for _, id := range itemIDs {
		f, err := s.GetFrequency(id)
		if err != nil {
			return nil, err
		}
		out[id] = f
	}
	return out, nil
}

// AggregateFeedback folds un-aggregated "opened" feedback rows into
// frequencies.open_count. Idempotent: rows are marked aggregated so a
// repeated call over an unchanged feedback table is a no-op.
func (s *Store) AggregateFeedback() error {
	return withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.Query(`
			SELECT item_id, COUNT(*) FROM feedback
			WHERE action = 'opened' AND aggregated = 0
			GROUP BY item_id`)
		if err != nil {
			return err
		}
		type bump struct {
			itemID int64
			count  int
		}
		var bumps []bump
		for rows.Next() {
			var b bump
			if err := rows.Scan(&b.itemID, &b.count); err != nil {
				rows.Close()
				return err
			}
			bumps = append(bumps, b)
		}
		rows.Close()

		for _, b := range bumps {
			if _, err := tx.Exec(`
				INSERT INTO frequencies (item_id, open_count, last_opened, interactions)
				VALUES (?, ?, 0, 0)
				ON CONFLICT(item_id) DO UPDATE SET open_count = open_count + excluded.open_count
			`, b.itemID, b.count); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`UPDATE feedback SET aggregated = 1 WHERE action = 'opened' AND aggregated = 0`); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// CleanupOldFeedback deletes feedback rows older than retentionDays.
func (s *Store) CleanupOldFeedback(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM feedback WHERE timestamp < ?`, cutoff)
		return err
	})
}

// Health derives the store-owned portion of getHealth (spec.md §4.1):
// items_without_content as a set difference, and fts_index_size
// approximated in O(1) from page_count × page_size rather than scanning
// chunk lengths.
func (s *Store) Health() (HealthSnapshot, error) {
	var h HealthSnapshot

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&h.TotalItems); err != nil {
		return h, err
	}

	var withContent int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT item_id) FROM item_chunks`).Scan(&withContent); err != nil {
		return h, err
	}
	h.ItemsWithoutContent = h.TotalItems - withContent

	var pageCount, pageSize int64
	_ = s.db.QueryRow(`PRAGMA page_count`).Scan(&pageCount)
	_ = s.db.QueryRow(`PRAGMA page_size`).Scan(&pageSize)
	h.FTSIndexSizeBytes = pageCount * pageSize

	total, crit, gap, err := s.TotalFailures()
	if err != nil {
		return h, err
	}
	h.TotalFailures, h.CriticalFailures, h.ExpectedGapFailures = total, crit, gap

	return h, nil
}

// searchWeighted runs an FTS5 MATCH against search_index and applies the
// application-side field weighting documented in schema.go (name=10,
// path=5, content=1) on top of FTS5's own bm25() content score, since a
// single MATCH expression spans all three columns and FTS5's bm25()
// column-weight arguments can't express the spec's differently-scaled
// reward for a name/path hit versus a body hit.
func (s *Store) searchWeighted(matchExpr string, limit int) ([]FTSHit, error) {
	rows, err := s.db.Query(`
		SELECT chunk_id, item_id, name, path, content,
			bm25(search_index) AS raw_score,
			(name MATCH ?) AS name_hit,
			(path MATCH ?) AS path_hit
		FROM search_index
		WHERE search_index MATCH ?
		ORDER BY raw_score
		LIMIT ?`, matchExpr, matchExpr, matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("search_index match: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		var content string
		var rawScore float64
		var nameHit, pathHit int
		if err := rows.Scan(&h.ChunkID, &h.ItemID, &h.Name, &h.Path, &content, &rawScore, &nameHit, &pathHit); err != nil {
			return nil, err
		}
		h.Snippet = snippet(content)
		h.Score = -rawScore
		if nameHit != 0 {
			h.Score *= 10
		} else if pathHit != 0 {
			h.Score *= 5
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func snippet(content string) string {
	const maxLen = 240
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}

// SearchFTS runs the lexical search path. relaxed selects sanitizeRelaxed's
// OR-of-terms fallback over sanitizeStrict's phrase-preserving sanitizer
// (spec.md §4.5.2 query modes).
func (s *Store) SearchFTS(query string, limit int, relaxed bool) ([]FTSHit, error) {
	var expr string
	if relaxed {
		expr = relaxedMatchExpr(query)
	} else {
		expr = sanitizeStrict(query)
	}
	if expr == "" {
		return nil, nil
	}
	return s.searchWeighted(expr, limit)
}

// SearchByNameFuzzy matches query as a prefix against item names only,
// for the filename-first retrieval lane (spec.md §4.5.2).
func (s *Store) SearchByNameFuzzy(query string, limit int) ([]FTSHit, error) {
	expr := sanitizeStrict(query)
	if expr == "" {
		return nil, nil
	}
	return s.searchWeighted(fmt.Sprintf("name:%s", expr), limit)
}

// SearchFTSJoined runs SearchFTS and joins each hit's owning item, applying
// filters server-side (extension allowlist, path include/exclude prefixes,
// modified-time bounds, size bounds) before truncating to limit, so filter
// selectivity doesn't shrink an already-truncated result set
// (spec.md §4.5.1 filter pushdown).
func (s *Store) SearchFTSJoined(query string, limit int, relaxed bool, filters Filters) ([]JoinedHit, error) {
	hits, err := s.SearchFTS(query, limit*4, relaxed)
	if err != nil {
		return nil, err
	}

	var out []JoinedHit
	for _, h := range hits {
		item, err := s.getItemByID(h.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil || !matchesFilters(*item, filters) {
			continue
		}
		out = append(out, JoinedHit{
			FTSHit:     h,
			Extension:  item.Extension,
			ModifiedAt: item.ModifiedAt,
			Size:       item.Size,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetItemByID looks up one item by its row id, for callers (the semantic
// retriever) that only have an id coming back from the vector index.
func (s *Store) GetItemByID(id int64) (*Item, error) {
	return s.getItemByID(id)
}

func (s *Store) getItemByID(id int64) (*Item, error) {
	row := s.db.QueryRow(`
		SELECT id, path, name, extension, kind, size, created_at, modified_at, last_indexed, content_hash, sensitivity, pinned, parent_path
		FROM items WHERE id = ?`, id)
	var it Item
	var kind string
	var pinned int
	var created, modified, indexed int64
	err := row.Scan(&it.ID, &it.Path, &it.Name, &it.Extension, &kind, &it.Size,
		&created, &modified, &indexed, &it.ContentHash, &it.Sensitivity, &pinned, &it.ParentPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.Kind = ItemKind(kind)
	it.Pinned = pinned != 0
	it.CreatedAt = time.Unix(created, 0)
	it.ModifiedAt = time.Unix(modified, 0)
	it.LastIndexed = time.Unix(indexed, 0)
	return &it, nil
}

func matchesFilters(item Item, f Filters) bool {
	if len(f.Extensions) > 0 {
		ok := false
		for _, ext := range f.Extensions {
			if strings.EqualFold(ext, item.Extension) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, prefix := range f.IncludePaths {
		if !strings.HasPrefix(item.Path, prefix) {
			return false
		}
	}
	for _, prefix := range f.ExcludePaths {
		if strings.HasPrefix(item.Path, prefix) {
			return false
		}
	}
	if f.ModifiedAfter != nil && item.ModifiedAt.Before(*f.ModifiedAfter) {
		return false
	}
	if f.ModifiedBefore != nil && item.ModifiedAt.After(*f.ModifiedBefore) {
		return false
	}
	if f.MinSize != nil && item.Size < *f.MinSize {
		return false
	}
	if f.MaxSize != nil && item.Size > *f.MaxSize {
		return false
	}
	return true
}

// OptimizeFTS runs FTS5's merge-optimize command against search_index.
func (s *Store) OptimizeFTS() error {
	_, err := s.db.Exec(`INSERT INTO search_index(search_index) VALUES('optimize')`)
	return err
}

// Vacuum reclaims free pages.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec(`VACUUM`)
	return err
}

// IntegrityCheck runs SQLite's integrity_check pragma.
func (s *Store) IntegrityCheck() (string, error) {
	var result string
	if err := s.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return "", err
	}
	return result, nil
}

// FTSIntegrityCheck runs FTS5's integrity-check command against
// search_index, surfacing CORRUPTED_INDEX to callers on failure.
func (s *Store) FTSIntegrityCheck() error {
	_, err := s.db.Exec(`INSERT INTO search_index(search_index) VALUES('integrity-check')`)
	return err
}

// WalCheckpoint forces a WAL checkpoint.
func (s *Store) WalCheckpoint() error {
	_, err := s.db.Exec(`PRAGMA wal_checkpoint(PASSIVE)`)
	return err
}
