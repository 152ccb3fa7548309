package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rendiffdev/containerintegrity/internal/database"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/hostrun"
	"github.com/rendiffdev/containerintegrity/internal/inspector"
	"github.com/rendiffdev/containerintegrity/internal/middleware"
	"github.com/rendiffdev/containerintegrity/internal/models"
)

// maxConcurrentInspections bounds how many files SubmitBatch runs at once.
const maxConcurrentInspections = 8

// ErrUnsupportedContainer is returned when no registered inspector claims
// the submitted file.
var ErrUnsupportedContainer = fmt.Errorf("file is not a supported ISOBMFF or MXF container")

// InspectionService orchestrates one inspection job end to end: it stages
// the source file onto local disk (inspectors read through a memory-mapped
// local path, never a remote stream), hands it to the inspector registry,
// and persists the resulting report. It never inspects a file itself — that
// stays entirely inside the internal/inspector, internal/isobmff and
// internal/mxf packages.
type InspectionService struct {
	repo     database.Repository
	storage  *StorageService
	registry *inspector.Registry
	stageDir string
	pool     *hostrun.Pool
	logger   zerolog.Logger
}

// NewInspectionService wires the host's storage and persistence layers to
// the pure inspection core.
func NewInspectionService(repo database.Repository, storage *StorageService, registry *inspector.Registry, stageDir string, logger zerolog.Logger) *InspectionService {
	return &InspectionService{
		repo:     repo,
		storage:  storage,
		registry: registry,
		stageDir: stageDir,
		pool:     hostrun.NewPool(logger, maxConcurrentInspections),
		logger:   logger.With().Str("service", "inspection").Logger(),
	}
}

// Submit stages sourceKey from storage, creates a pending inspection record,
// then runs the inspection synchronously and records its outcome. The core
// itself is synchronous and single-file; SubmitBatch below is what bounds
// concurrency across many files.
func (s *InspectionService) Submit(ctx context.Context, sourceKey string, depth diag.Depth) (*models.Inspection, error) {
	insp := &models.Inspection{
		ID:        uuid.New(),
		SourceURL: sourceKey,
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(sourceKey)), "."),
		Depth:     depth,
		Status:    models.InspectionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateInspection(ctx, insp); err != nil {
		return nil, fmt.Errorf("create inspection record: %w", err)
	}

	s.run(ctx, insp)
	return insp, nil
}

// SubmitBatch creates a pending record for each source key and runs them
// concurrently through the host's bounded inspection pool, returning as
// soon as every record exists; callers poll GetInspection for outcomes.
func (s *InspectionService) SubmitBatch(ctx context.Context, sourceKeys []string, depth diag.Depth) ([]*models.Inspection, error) {
	inspections := make([]*models.Inspection, 0, len(sourceKeys))
	for _, key := range sourceKeys {
		insp := &models.Inspection{
			ID:        uuid.New(),
			SourceURL: key,
			Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(key)), "."),
			Depth:     depth,
			Status:    models.InspectionStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateInspection(ctx, insp); err != nil {
			return inspections, fmt.Errorf("create inspection record for %q: %w", key, err)
		}
		inspections = append(inspections, insp)
		middleware.BatchJobStarted(string(models.InspectionStatusPending))

		if _, err := s.pool.Submit(ctx, insp.ID.String(), func(jobCtx context.Context) error {
			s.run(jobCtx, insp)
			middleware.BatchJobCompleted(string(models.InspectionStatusPending), string(insp.Status))
			return nil
		}); err != nil {
			s.fail(ctx, insp, err)
			middleware.BatchJobCompleted(string(models.InspectionStatusPending), string(insp.Status))
		}
	}
	return inspections, nil
}

// run executes one inspection and updates its persisted status. Errors
// staging or inspecting the file are recorded on the record rather than
// returned, since by this point the caller already has the job's ID.
func (s *InspectionService) run(ctx context.Context, insp *models.Inspection) {
	insp.Status = models.InspectionStatusRunning
	if err := s.repo.UpdateInspectionStatus(ctx, insp.ID, models.InspectionStatusRunning, ""); err != nil {
		s.logger.Error().Err(err).Str("id", insp.ID.String()).Msg("failed to mark inspection running")
	}

	localPath, cleanup, err := s.stage(ctx, insp.SourceURL)
	if err != nil {
		s.fail(ctx, insp, fmt.Errorf("stage source file: %w", err))
		return
	}
	defer cleanup()

	report, matched, err := s.registry.Inspect(localPath, insp.Depth)
	if err != nil {
		s.fail(ctx, insp, fmt.Errorf("inspect: %w", err))
		return
	}
	if !matched {
		s.fail(ctx, insp, ErrUnsupportedContainer)
		return
	}

	insp.Status = models.InspectionStatusCompleted
	if err := s.repo.CompleteInspection(ctx, insp.ID, &report); err != nil {
		s.logger.Error().Err(err).Str("id", insp.ID.String()).Msg("failed to persist completed inspection")
	}
}

func (s *InspectionService) fail(ctx context.Context, insp *models.Inspection, err error) {
	insp.Status = models.InspectionStatusFailed
	s.logger.Error().Err(err).Str("id", insp.ID.String()).Msg("inspection failed")
	if uerr := s.repo.UpdateInspectionStatus(ctx, insp.ID, models.InspectionStatusFailed, err.Error()); uerr != nil {
		s.logger.Error().Err(uerr).Str("id", insp.ID.String()).Msg("failed to record inspection failure")
	}
}

// stage copies sourceKey out of the storage provider onto local disk so the
// inspector's memory-mapped reader has a real file to open. Returns a
// cleanup func that removes the staged copy.
func (s *InspectionService) stage(ctx context.Context, sourceKey string) (string, func(), error) {
	reader, err := s.storage.DownloadFile(ctx, sourceKey)
	if err != nil {
		return "", func() {}, err
	}
	defer reader.Close()

	if err := os.MkdirAll(s.stageDir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("create stage directory: %w", err)
	}

	staged, err := os.CreateTemp(s.stageDir, "inspect-*"+filepath.Ext(sourceKey))
	if err != nil {
		return "", func() {}, fmt.Errorf("create staged file: %w", err)
	}
	defer staged.Close()

	if _, err := io.Copy(staged, reader); err != nil {
		os.Remove(staged.Name())
		return "", func() {}, fmt.Errorf("copy to staged file: %w", err)
	}

	path := staged.Name()
	return path, func() { os.Remove(path) }, nil
}

// GetInspection fetches a previously recorded inspection.
func (s *InspectionService) GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	return s.repo.GetInspection(ctx, id)
}

// ListInspections returns recent inspections, most recent first.
func (s *InspectionService) ListInspections(ctx context.Context, limit, offset int) ([]models.Inspection, error) {
	return s.repo.ListInspections(ctx, limit, offset)
}
