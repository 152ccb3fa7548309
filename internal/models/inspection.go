// Package models defines the persisted record types for the reference host.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rendiffdev/containerintegrity/internal/diag"
)

// InspectionStatus tracks the lifecycle of a submitted inspection job.
type InspectionStatus string

const (
	InspectionStatusPending   InspectionStatus = "pending"
	InspectionStatusRunning   InspectionStatus = "running"
	InspectionStatusCompleted InspectionStatus = "completed"
	InspectionStatusFailed    InspectionStatus = "failed"
)

// Inspection is the host's persisted record of one file run through the
// container inspection core. Report holds the core's own output verbatim;
// the host never reinterprets its contents, only stores and renders it.
type Inspection struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	SourceURL   string               `db:"source_url" json:"source_url"`
	Format      string               `db:"format" json:"format"`
	Depth       diag.Depth           `db:"depth" json:"depth"`
	Status      InspectionStatus     `db:"status" json:"status"`
	Report      *diag.ContainerReport `db:"-" json:"report,omitempty"`
	ReportJSON  string               `db:"report_json" json:"-"`
	ErrorMsg    string               `db:"error_message" json:"error_message,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	CompletedAt *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
}
