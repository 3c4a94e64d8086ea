package db

import "time"

// Dataset is a named collection of records analyzed together.
type Dataset struct {
	ID                  int64
	Name                string
	Path                string
	LastProcessedRecord int
	AddedAt             time.Time
}

// Document is an analyzed source record.
type Document struct {
	ID          string
	DatasetID   int64
	Schema      string
	EntityCount int
	AnalyzedAt  time.Time
}
