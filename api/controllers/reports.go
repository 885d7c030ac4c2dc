package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/api/responses"
	"github.com/koipond/koipond-backend/api/validators"
	"github.com/koipond/koipond-backend/internal/reports"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/logger"
)

type reportsService interface {
	CreateReport(ctx context.Context, input reports.CreateInput) (*models.Report, error)
	ResolveReport(ctx context.Context, input reports.ResolveInput) (*reports.Resolution, error)
	List(ctx context.Context, status string) ([]models.Report, error)
}

type createReportRequest struct {
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	Reason   string    `json:"reason" validate:"required,max=1000"`
	ImageURL *string   `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
}

func CreateReport(svc reportsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createReportRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.CreateReport(r.Context(), reports.CreateInput{
			ReporterID: id.UserID,
			OrderID:    req.OrderID,
			Reason:     validators.SanitizeString(req.Reason, 1000),
			ImageURL:   req.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

type resolveReportRequest struct {
	Decision string `json:"decision" validate:"required"`
}

func AdminResolveReport(svc reportsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reportID, err := validators.URLUUID(r, "reportId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveReportRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolution, err := svc.ResolveReport(r.Context(), reports.ResolveInput{
			ReportID: reportID,
			Decision: req.Decision,
			AdminID:  id.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolution)
	}
}

// AdminListReports lists reports by status, pending by default.
func AdminListReports(svc reportsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		list, err := svc.List(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
