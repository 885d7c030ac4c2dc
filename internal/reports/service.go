package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/outbox"
)

const (
	refundSource     = "report"
	onePendingReport = "reports_one_pending_per_order"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput files a dispute against an order.
type CreateInput struct {
	ReporterID uuid.UUID
	OrderID    uuid.UUID
	Reason     string
	ImageURL   *string
}

// ResolveInput carries an admin decision.
type ResolveInput struct {
	ReportID uuid.UUID
	Decision string
	AdminID  uuid.UUID
}

// Resolution reports the outcome of ResolveReport.
type Resolution struct {
	Report   *models.Report `json:"report"`
	Refunded bool           `json:"refunded"`
}

// ReportEvent is the payload of report.created and report.resolved.
type ReportEvent struct {
	ReportID uuid.UUID          `json:"report_id"`
	OrderID  uuid.UUID          `json:"order_id"`
	Status   enums.ReportStatus `json:"status"`
	Refunded bool               `json:"refunded"`
}

// Service handles buyer disputes.
type Service interface {
	CreateReport(ctx context.Context, input CreateInput) (*models.Report, error)
	ResolveReport(ctx context.Context, input ResolveInput) (*Resolution, error)
	List(ctx context.Context, status string) ([]models.Report, error)
}

type service struct {
	repo   Repository
	orders orders.Repository
	ledger ledger.Service
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the dispute service.
func NewService(repo Repository, ordersRepo orders.Repository, ledgerSvc ledger.Service, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("report repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		orders: ordersRepo,
		ledger: ledgerSvc,
		tx:     tx,
		outbox: publisher,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateReport opens a dispute and freezes the order's ledger row until it
// is resolved.
func (s *service) CreateReport(ctx context.Context, input CreateInput) (*models.Report, error) {
	if input.ReporterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var created *models.Report
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
		}
		if order.BuyerID != input.ReporterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can report an order")
		}

		repo := s.repo.WithTx(tx)
		pending, err := repo.CountPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "count open reports")
		}
		if pending > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an open report")
		}

		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := s.ledger.Flag(ctx, tx, txn); err != nil {
			return err
		}

		report := &models.Report{
			OrderID:    order.ID,
			ReporterID: input.ReporterID,
			Reason:     reason,
			ImageURL:   input.ImageURL,
			Status:     enums.ReportStatusPending,
		}
		if err := repo.Create(ctx, report); err != nil {
			if dbpkg.IsUniqueViolation(err, onePendingReport) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an open report")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create report")
		}
		created = report
		return s.emit(ctx, tx, enums.EventReportCreated, report, input.ReporterID, enums.UserRoleBuyer, false)
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "create report")
	}
	return created, nil
}

// ResolveReport applies an admin decision once. Approval refunds through the
// same primitive as order failure, so money collected for an order is
// returned at most once whichever path gets there first.
func (s *service) ResolveReport(ctx context.Context, input ResolveInput) (*Resolution, error) {
	if input.ReportID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report id required")
	}
	decision, err := enums.ParseReportDecision(input.Decision)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision")
	}

	var result *Resolution
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		report, err := repo.FindByIDForUpdate(ctx, input.ReportID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "report not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load report")
		}
		if report.Status != enums.ReportStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "report already resolved").
				WithDetails(map[string]any{"status": report.Status})
		}

		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.FindByIDForUpdate(ctx, report.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
		}
		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		result = &Resolution{Report: report}
		switch decision {
		case enums.ReportStatusReject:
			if txn != nil && txn.State == enums.LedgerStateReport {
				if err := s.ledger.Unflag(ctx, tx, txn); err != nil {
					return err
				}
			}
		case enums.ReportStatusApprove:
			refunded, err := s.ledger.Refund(ctx, tx, txn, ledger.RefundInput{
				Amount:      order.Total,
				Description: "report approved",
				Source:      refundSource,
			})
			if err != nil {
				return err
			}
			if !refunded {
				if _, err := s.ledger.Void(ctx, tx, txn); err != nil {
					return err
				}
			}
			result.Refunded = refunded
			if order.Status != enums.OrderStatusFail {
				order.Status = enums.OrderStatusFail
				if err := ordersRepo.UpdateStatus(ctx, order); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "fail order")
				}
			}
		}

		resolvedAt := s.now()
		report.Status = decision
		report.ResolvedAt = &resolvedAt
		if err := repo.Save(ctx, report); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save report")
		}
		return s.emit(ctx, tx, enums.EventReportResolved, report, input.AdminID, enums.UserRoleAdmin, result.Refunded)
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "resolve report")
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, result.Report.OrderID.String()), map[string]any{
		"report_id": result.Report.ID.String(),
		"decision":  decision,
		"refunded":  result.Refunded,
	}), "report resolved")
	return result, nil
}

func (s *service) List(ctx context.Context, status string) ([]models.Report, error) {
	var filter enums.ReportStatus
	if status != "" {
		filter = enums.ReportStatus(strings.ToLower(strings.TrimSpace(status)))
		if !filter.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid report status")
		}
	}
	rows, err := s.repo.ListByStatus(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list reports")
	}
	return rows, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, report *models.Report, actorID uuid.UUID, role enums.UserRole, refunded bool) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID, Role: string(role)}
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReport,
		AggregateID:   report.ID,
		Actor:         actor,
		Data: ReportEvent{
			ReportID: report.ID,
			OrderID:  report.OrderID,
			Status:   report.Status,
			Refunded: refunded,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit report event")
	}
	return nil
}
