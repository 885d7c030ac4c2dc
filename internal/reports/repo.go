package reports

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
)

// Repository persists buyer disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, report *models.Report) error
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Report, error)
	CountPending(ctx context.Context, orderID uuid.UUID) (int64, error)
	Save(ctx context.Context, report *models.Report) error
	ListByStatus(ctx context.Context, status enums.ReportStatus) ([]models.Report, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a report repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) CountPending(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReportStatusPending).
		Count(&count).Error
	return count, err
}

func (r *repository) Save(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Save(report).Error
}

func (r *repository) ListByStatus(ctx context.Context, status enums.ReportStatus) ([]models.Report, error) {
	var rows []models.Report
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
