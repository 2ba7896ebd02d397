// Package model holds the types shared between ingestion, normalization,
// and storage.
package model

import (
	"time"

	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

// Provenance fields stamped onto every normalized record.
const (
	FieldLocation             = "location"
	FieldDashboardVersion     = "dashboard_version"
	FieldDashboardLastUpdated = "dashboard_last_updated"
	FieldInsertedAt           = "inserted_at"
)

// VersionStamp identifies the dashboard snapshot a run was sourced from.
// It is produced once per run and copied by value into each record.
type VersionStamp struct {
	Version     string       `json:"dashboard_version"`
	LastUpdated resolve.Date `json:"dashboard_last_updated"`
}

// Record is a normalized feature: the raw attributes plus resolved fields
// and provenance. Records are schemaless documents.
type Record map[string]any

// Version returns the dashboard version stamped on the record.
func (r Record) Version() string {
	s, _ := r[FieldDashboardVersion].(string)
	return s
}

// InsertedAt returns the processing timestamp stamped on the record.
func (r Record) InsertedAt() time.Time {
	t, _ := r[FieldInsertedAt].(time.Time)
	return t
}
