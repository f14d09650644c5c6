package store

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id             TEXT PRIMARY KEY,
	remote_id      TEXT,
	title          TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL DEFAULT '',
	duration       INTEGER NOT NULL DEFAULT 0,
	folder_id      TEXT,
	tags           TEXT NOT NULL DEFAULT '[]',
	is_pinned      INTEGER NOT NULL DEFAULT 0,
	is_archived    INTEGER NOT NULL DEFAULT 0,
	is_deleted     INTEGER NOT NULL DEFAULT 0,
	audio_path     TEXT,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	last_synced_at INTEGER,
	sync_status    TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS folders (
	id          TEXT PRIMARY KEY,
	remote_id   TEXT,
	name        TEXT NOT NULL,
	icon        TEXT,
	color       TEXT,
	parent_id   TEXT,
	sort_order  INTEGER NOT NULL DEFAULT 0,
	is_system   INTEGER NOT NULL DEFAULT 0,
	is_deleted  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS actions (
	id                 TEXT PRIMARY KEY,
	remote_id          TEXT,
	note_id            TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	type               TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	priority           TEXT NOT NULL DEFAULT 'medium',
	title              TEXT NOT NULL DEFAULT '',
	description        TEXT,
	scheduled_date     INTEGER,
	scheduled_end_date INTEGER,
	location           TEXT,
	attendees          TEXT NOT NULL DEFAULT '[]',
	email_to           TEXT,
	email_subject      TEXT,
	email_body         TEXT,
	due_date           INTEGER,
	external_id        TEXT,
	external_service   TEXT,
	external_url       TEXT,
	is_deleted         INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL,
	executed_at        INTEGER,
	sync_status        TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	operation   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT
);

CREATE TABLE IF NOT EXISTS audio_uploads (
	id            TEXT PRIMARY KEY,
	note_id       TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	file_size     INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress      REAL NOT NULL DEFAULT 0,
	remote_url    TEXT,
	transcription TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT,
	created_at    INTEGER NOT NULL,
	completed_at  INTEGER
);

CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_remote ON notes(remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder_id);
CREATE INDEX IF NOT EXISTS idx_notes_sync ON notes(sync_status);
CREATE INDEX IF NOT EXISTS idx_notes_listing ON notes(is_deleted, is_archived, is_pinned, created_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_remote ON folders(remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
CREATE INDEX IF NOT EXISTS idx_folders_sync ON folders(sync_status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_remote ON actions(remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_actions_note ON actions(note_id);
CREATE INDEX IF NOT EXISTS idx_actions_type ON actions(type);
CREATE INDEX IF NOT EXISTS idx_actions_sync ON actions(sync_status);

CREATE INDEX IF NOT EXISTS idx_queue_entity ON sync_queue(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_queue_order ON sync_queue(created_at, id);

CREATE INDEX IF NOT EXISTS idx_uploads_status ON audio_uploads(status);
`
