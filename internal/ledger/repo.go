package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
)

// Repository manages persistence for ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Save(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Transaction, error)
	FindForOrder(ctx context.Context, orderID uuid.UUID, lock bool) (*models.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, kind enums.SourceKind) ([]models.Transaction, error)
	FindPackage(ctx context.Context, id uuid.UUID) (*models.Package, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) Save(ctx context.Context, txn *models.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Transaction, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = dbpkg.ForUpdate(q)
	}
	var txn models.Transaction
	if err := q.First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindForOrder returns the order's ledger row, or gorm.ErrRecordNotFound.
func (r *repository) FindForOrder(ctx context.Context, orderID uuid.UUID, lock bool) (*models.Transaction, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = dbpkg.ForUpdate(q)
	}
	var txn models.Transaction
	err := q.Where("doc_no = ? AND source_kind = ?", orderID, enums.SourceKindOrder).
		Order("created_at ASC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Transaction{}).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, kind enums.SourceKind) ([]models.Transaction, error) {
	var rows []models.Transaction
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("source_kind = ?", kind)
	}
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindPackage(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	if err := r.db.WithContext(ctx).First(&pkg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}
