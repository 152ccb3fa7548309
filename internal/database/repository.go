package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/models"
)

// ErrNotFound is returned when a requested inspection does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the persistence operations the host needs to track
// inspection jobs across their lifecycle.
type Repository interface {
	CreateInspection(ctx context.Context, insp *models.Inspection) error
	UpdateInspectionStatus(ctx context.Context, id uuid.UUID, status models.InspectionStatus, errMsg string) error
	CompleteInspection(ctx context.Context, id uuid.UUID, report *diag.ContainerReport) error
	GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error)
	ListInspections(ctx context.Context, limit, offset int) ([]models.Inspection, error)
}

type repository struct {
	db *DB
}

// NewRepository wraps a DB connection with inspection-record persistence.
func NewRepository(db *DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateInspection(ctx context.Context, insp *models.Inspection) error {
	const q = `
		INSERT INTO inspections (id, source_url, format, depth, status, created_at)
		VALUES (:id, :source_url, :format, :depth, :status, :created_at)`
	_, err := r.db.SQLX.NamedExecContext(ctx, q, insp)
	if err != nil {
		return fmt.Errorf("create inspection: %w", err)
	}
	return nil
}

func (r *repository) UpdateInspectionStatus(ctx context.Context, id uuid.UUID, status models.InspectionStatus, errMsg string) error {
	const q = `UPDATE inspections SET status = ?, error_message = ? WHERE id = ?`
	res, err := r.db.SQLX.ExecContext(ctx, q, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("update inspection status: %w", err)
	}
	return checkRowsAffected(res)
}

func (r *repository) CompleteInspection(ctx context.Context, id uuid.UUID, report *diag.ContainerReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	const q = `
		UPDATE inspections
		SET status = ?, report_json = ?, completed_at = ?, error_message = ''
		WHERE id = ?`
	res, err := r.db.SQLX.ExecContext(ctx, q, models.InspectionStatusCompleted, string(reportJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete inspection: %w", err)
	}
	return checkRowsAffected(res)
}

func (r *repository) GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	var insp models.Inspection
	const q = `SELECT id, source_url, format, depth, status, report_json, error_message, created_at, completed_at
		FROM inspections WHERE id = ?`
	if err := r.db.SQLX.GetContext(ctx, &insp, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get inspection: %w", err)
	}
	if err := attachReport(&insp); err != nil {
		return nil, err
	}
	return &insp, nil
}

func (r *repository) ListInspections(ctx context.Context, limit, offset int) ([]models.Inspection, error) {
	var rows []models.Inspection
	const q = `SELECT id, source_url, format, depth, status, report_json, error_message, created_at, completed_at
		FROM inspections ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := r.db.SQLX.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	for i := range rows {
		if err := attachReport(&rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func attachReport(insp *models.Inspection) error {
	if insp.ReportJSON == "" {
		return nil
	}
	var report diag.ContainerReport
	if err := json.Unmarshal([]byte(insp.ReportJSON), &report); err != nil {
		return fmt.Errorf("unmarshal report for inspection %s: %w", insp.ID, err)
	}
	insp.Report = &report
	return nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
