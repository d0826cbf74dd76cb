package repository

import (
	"context"
	"errors"

	"github.com/timmy/appforge/internal/domain"
	"gorm.io/gorm"
)

// JobRepository persists job records. The orchestrator's in-memory map is
// authoritative while the process lives; this repository gives finished jobs
// a life beyond a restart.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save writes the full job record, replacing any existing row.
func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
// Returns domain.ErrNotFound when no row exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListUnfinished returns jobs that never reached a terminal state, such as
// jobs interrupted by a process crash. Callers may mark these failed on boot.
func (r *JobRepository) ListUnfinished(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("completed = ?", false).
		Order("created").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
