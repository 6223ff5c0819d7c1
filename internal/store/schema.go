package store

// itemSchema creates every relation the persistent store (C1) owns beyond
// the legacy code-search tables in sqlite_bm25.go: items, chunks, the
// field-weighted inverted index, failures, frequencies, feedback,
// interactions, vector map + generation state, the learning core's
// training-example/behavior-event/model-state tables, and settings.
// Grounded on the teacher's initSchema shape in sqlite_bm25.go, generalized
// from the single fts_content table to the full relation set spec.md §6
// names.
const itemSchema = `
CREATE TABLE IF NOT EXISTS item_schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	extension TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'text',
	size INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	modified_at INTEGER NOT NULL,
	last_indexed INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT '',
	sensitivity TEXT NOT NULL DEFAULT '',
	pinned INTEGER NOT NULL DEFAULT 0,
	parent_path TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS item_chunks (
	id TEXT PRIMARY KEY,
	item_id INTEGER NOT NULL REFERENCES items(id),
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	UNIQUE(item_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_item_chunks_item ON item_chunks(item_id);

-- search_index: the inverted-index relation of spec.md §3/§6. Virtual and
-- does not cascade on item/chunk deletes (spec.md §4.1 Delete-all note) --
-- callers must clear it explicitly. name/path/content are weighted
-- name=10, path=5, content=1 in application-side scoring (see
-- searchWeighted in core.go); FTS5 itself scores content via bm25().
CREATE VIRTUAL TABLE IF NOT EXISTS search_index USING fts5(
	chunk_id UNINDEXED,
	item_id UNINDEXED,
	name,
	path,
	content,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS failures (
	item_id INTEGER NOT NULL,
	stage TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT 'critical',
	PRIMARY KEY (item_id, stage)
);

CREATE TABLE IF NOT EXISTS frequencies (
	item_id INTEGER PRIMARY KEY,
	open_count INTEGER NOT NULL DEFAULT 0,
	last_opened INTEGER NOT NULL DEFAULT 0,
	interactions INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	query TEXT NOT NULL DEFAULT '',
	result_position INTEGER NOT NULL DEFAULT -1,
	timestamp INTEGER NOT NULL,
	aggregated INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_feedback_item ON feedback(item_id);
CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON feedback(timestamp);

CREATE TABLE IF NOT EXISTS vector_map (
	item_id INTEGER NOT NULL,
	generation INTEGER NOT NULL,
	vector_label TEXT NOT NULL,
	model_id TEXT NOT NULL,
	embedded_at INTEGER NOT NULL,
	PRIMARY KEY (item_id, generation)
);

CREATE TABLE IF NOT EXISTS vector_generation_state (
	name TEXT PRIMARY KEY,
	active_version INTEGER NOT NULL DEFAULT 0,
	rollback_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS training_examples_v1 (
	sample_id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	item_id INTEGER NOT NULL,
	features TEXT NOT NULL,
	label INTEGER NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	attribution_confidence REAL NOT NULL DEFAULT 0,
	consumed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS behavior_events_v1 (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	item_id INTEGER,
	item_path TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL DEFAULT '',
	app_bundle_id TEXT NOT NULL DEFAULT '',
	context_event_id TEXT NOT NULL DEFAULT '',
	activity_digest TEXT NOT NULL DEFAULT '',
	attribution_confidence REAL NOT NULL DEFAULT 0,
	recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS replay_reservoir_v1 (
	sample_id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	item_id INTEGER NOT NULL,
	features TEXT NOT NULL,
	label INTEGER NOT NULL,
	inserted_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_model_state_v1 (
	name TEXT PRIMARY KEY,
	active_version INTEGER NOT NULL DEFAULT 0,
	rollback_version INTEGER NOT NULL DEFAULT 0,
	active_backend TEXT NOT NULL DEFAULT 'none',
	last_cycle_status TEXT NOT NULL DEFAULT '',
	last_cycle_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO item_schema_version (version) VALUES (1);
`

// itemMigrations lists schema migrations applied in order after the base
// schema is created; each entry's index+1 is its version number, recorded
// in the settings table under a schema-version key (spec.md §4.1: "schema
// version is a setting").
var itemMigrations = []string{
	// v1 is the base schema above; future migrations append here.
}
