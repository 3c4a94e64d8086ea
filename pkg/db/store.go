package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/entityscan/pkg/emit"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// CreateOrGetDataset returns the id of the dataset called name, creating it
// when missing.
func CreateOrGetDataset(db DBExecutor, name, path string) (int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("dataset name must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRow(`SELECT id FROM datasets WHERE name = ?`, trimmed).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		res, err := db.Exec(`INSERT INTO datasets (name, path) VALUES (?, ?)`, trimmed, path)
		if err != nil {
			// If another concurrent transaction inserted the same dataset, retry the SELECT.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}
	return 0, fmt.Errorf("could not create or get dataset after %d retries", maxRetries)
}

// GetDataset loads a dataset by id.
func GetDataset(db DBExecutor, id int64) (Dataset, error) {
	var d Dataset
	var path sql.NullString
	err := db.QueryRow(`SELECT id, name, path, last_processed_record, added_at FROM datasets WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &path, &d.LastProcessedRecord, &d.AddedAt)
	if err != nil {
		return Dataset{}, err
	}
	d.Path = path.String
	return d, nil
}

// GetDatasetProgress returns the index of the last committed record, -1 when
// nothing was committed yet.
func GetDatasetProgress(db DBExecutor, datasetID int64) (int, error) {
	var index int
	err := db.QueryRow("SELECT last_processed_record FROM datasets WHERE id = ?", datasetID).Scan(&index)
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateDatasetProgress stores the index of the last committed record.
func UpdateDatasetProgress(db DBExecutor, datasetID int64, index int) error {
	_, err := db.Exec("UPDATE datasets SET last_processed_record = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", index, datasetID)
	return err
}

// RecordDocument marks a document as analyzed.
func RecordDocument(db DBExecutor, datasetID int64, documentID, schema string, entityCount int) error {
	if documentID == "" {
		return fmt.Errorf("documentID must be non-empty")
	}
	_, err := db.Exec(`INSERT INTO documents (id, dataset_id, schema, entity_count) VALUES (?, ?, ?, ?)
	ON CONFLICT(id, dataset_id) DO UPDATE SET
	  schema = excluded.schema,
	  entity_count = excluded.entity_count,
	  analyzed_at = CURRENT_TIMESTAMP`, documentID, datasetID, schema, entityCount)
	if err != nil {
		return fmt.Errorf("record document %s: %w", documentID, err)
	}
	return nil
}

// GetDocument loads an analyzed document.
func GetDocument(db DBExecutor, datasetID int64, documentID string) (Document, error) {
	var d Document
	err := db.QueryRow(`SELECT id, dataset_id, schema, entity_count, analyzed_at FROM documents WHERE id = ? AND dataset_id = ?`,
		documentID, datasetID).Scan(&d.ID, &d.DatasetID, &d.Schema, &d.EntityCount, &d.AnalyzedAt)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// UpsertEntity stores e. An entity already stored under the same id is merged
// with e: properties and sources are unioned and the more specific schema
// wins. The document e was found in is linked to the stored row.
func UpsertEntity(db DBExecutor, datasetID int64, e *emit.Entity) (int64, error) {
	if e == nil || e.ID == "" {
		return 0, fmt.Errorf("entity must have an id")
	}

	var rowID int64
	existing, err := getEntity(db, `SELECT row_id, entity_id, schema, properties, document_id, stage, sources
		FROM entities WHERE entity_id = ? AND dataset_id = ?`, e.ID, datasetID)
	switch {
	case err == nil:
		rowID = existing.rowID
		merged := existing.entity
		if emit.IsA(e.Schema, merged.Schema) {
			merged.Schema = e.Schema
		}
		merged.Merge(e)
		props, sources, err := encode(merged)
		if err != nil {
			return 0, err
		}
		_, err = db.Exec(`UPDATE entities SET schema = ?, caption = ?, properties = ?, sources = ?, updated_at = CURRENT_TIMESTAMP
			WHERE row_id = ?`, merged.Schema, merged.Caption(), props, sources, rowID)
		if err != nil {
			return 0, fmt.Errorf("update entity %s: %w", e.ID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		props, sources, err := encode(e)
		if err != nil {
			return 0, err
		}
		err = db.QueryRow(`INSERT INTO entities (entity_id, dataset_id, schema, caption, properties, document_id, stage, sources)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING row_id`,
			e.ID, datasetID, e.Schema, e.Caption(), props, nullableString(e.Provenance.DocumentID),
			nullableString(e.Provenance.Stage), sources).Scan(&rowID)
		if err != nil {
			return 0, fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	default:
		return 0, fmt.Errorf("load entity %s: %w", e.ID, err)
	}

	if doc := e.Provenance.DocumentID; doc != "" {
		if _, err := db.Exec(`INSERT OR IGNORE INTO entity_documents (entity_row_id, document_id) VALUES (?, ?)`, rowID, doc); err != nil {
			return 0, fmt.Errorf("link entity %s to %s: %w", e.ID, doc, err)
		}
	}
	return rowID, nil
}

// GetEntity loads a stored entity by its id.
func GetEntity(db DBExecutor, datasetID int64, entityID string) (*emit.Entity, error) {
	row, err := getEntity(db, `SELECT row_id, entity_id, schema, properties, document_id, stage, sources
		FROM entities WHERE entity_id = ? AND dataset_id = ?`, entityID, datasetID)
	if err != nil {
		return nil, err
	}
	return row.entity, nil
}

// GetEntitiesByDocument returns the entities found in a document, ordered by
// first appearance.
func GetEntitiesByDocument(db DBExecutor, datasetID int64, documentID string) ([]*emit.Entity, error) {
	rows, err := db.Query(`SELECT e.row_id, e.entity_id, e.schema, e.properties, e.document_id, e.stage, e.sources
		FROM entities e JOIN entity_documents ed ON ed.entity_row_id = e.row_id
		WHERE e.dataset_id = ? AND ed.document_id = ?
		ORDER BY e.row_id`, datasetID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*emit.Entity
	for rows.Next() {
		r, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountEntitiesBySchema summarizes the stored entities of a dataset.
func CountEntitiesBySchema(db DBExecutor, datasetID int64) (map[string]int, error) {
	rows, err := db.Query(`SELECT schema, COUNT(*) FROM entities WHERE dataset_id = ? GROUP BY schema`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var schema string
		var n int
		if err := rows.Scan(&schema, &n); err != nil {
			return nil, err
		}
		out[schema] = n
	}
	return out, rows.Err()
}

type entityRow struct {
	rowID  int64
	entity *emit.Entity
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func getEntity(db DBExecutor, query string, args ...interface{}) (entityRow, error) {
	return scanEntity(db.QueryRow(query, args...))
}

func scanEntity(s scanner) (entityRow, error) {
	var r entityRow
	var id, schema, props, sources string
	var doc, stage sql.NullString
	if err := s.Scan(&r.rowID, &id, &schema, &props, &doc, &stage, &sources); err != nil {
		return entityRow{}, err
	}
	e := emit.NewEntity(schema, id)
	if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
		return entityRow{}, fmt.Errorf("decode properties of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(sources), &e.Provenance.Sources); err != nil {
		return entityRow{}, fmt.Errorf("decode sources of %s: %w", id, err)
	}
	if e.Properties == nil {
		e.Properties = map[string][]string{}
	}
	e.Provenance.DocumentID = doc.String
	e.Provenance.Stage = stage.String
	r.entity = e
	return r, nil
}

func encode(e *emit.Entity) (props, sources string, err error) {
	p, err := json.Marshal(e.Properties)
	if err != nil {
		return "", "", fmt.Errorf("encode properties of %s: %w", e.ID, err)
	}
	srcs := e.Provenance.Sources
	if srcs == nil {
		srcs = []string{}
	}
	s, err := json.Marshal(srcs)
	if err != nil {
		return "", "", fmt.Errorf("encode sources of %s: %w", e.ID, err)
	}
	return string(p), string(s), nil
}

// nullableString returns nil for "" else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
