package db

// migrationsSQL creates the schema. Statements are idempotent so InitDB can
// run on every start.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS datasets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	path TEXT,
	last_processed_record INTEGER NOT NULL DEFAULT -1,
	added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT NOT NULL,
	dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	schema TEXT NOT NULL,
	entity_count INTEGER NOT NULL DEFAULT 0,
	analyzed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (id, dataset_id)
);

CREATE TABLE IF NOT EXISTS entities (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id TEXT NOT NULL,
	dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	schema TEXT NOT NULL,
	caption TEXT,
	properties TEXT NOT NULL DEFAULT '{}',
	document_id TEXT,
	stage TEXT,
	sources TEXT NOT NULL DEFAULT '[]',
	first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (entity_id, dataset_id)
);

CREATE TABLE IF NOT EXISTS entity_documents (
	entity_row_id INTEGER NOT NULL REFERENCES entities(row_id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	PRIMARY KEY (entity_row_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_entities_schema ON entities(dataset_id, schema);
CREATE INDEX IF NOT EXISTS idx_entity_documents_document ON entity_documents(document_id);
`
