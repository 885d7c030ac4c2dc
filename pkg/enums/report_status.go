package enums

import (
	"fmt"
	"strings"
)

// ReportStatus tracks a buyer dispute.
type ReportStatus string

const (
	ReportStatusPending ReportStatus = "pending"
	ReportStatusApprove ReportStatus = "approve"
	ReportStatusReject  ReportStatus = "reject"
)

var validReportStatuses = []ReportStatus{
	ReportStatusPending,
	ReportStatusApprove,
	ReportStatusReject,
}

func (s ReportStatus) String() string {
	return string(s)
}

func (s ReportStatus) IsValid() bool {
	for _, candidate := range validReportStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsDecision reports whether the status is a terminal resolution.
func (s ReportStatus) IsDecision() bool {
	return s == ReportStatusApprove || s == ReportStatusReject
}

// ParseReportDecision accepts only the resolution outcomes.
func ParseReportDecision(value string) (ReportStatus, error) {
	normalized := ReportStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsDecision() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid report decision %q", value)
}
