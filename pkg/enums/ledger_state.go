package enums

import (
	"fmt"
	"strings"
)

// LedgerState is the settlement tag of a transaction. It is independent from
// the order lifecycle.
type LedgerState string

const (
	LedgerStatePending LedgerState = "pending"
	LedgerStateSuccess LedgerState = "success"
	LedgerStateCancel  LedgerState = "cancel"
	LedgerStateReport  LedgerState = "report"
)

var validLedgerStates = []LedgerState{
	LedgerStatePending,
	LedgerStateSuccess,
	LedgerStateCancel,
	LedgerStateReport,
}

func (s LedgerState) String() string {
	return string(s)
}

func (s LedgerState) IsValid() bool {
	for _, candidate := range validLedgerStates {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseLedgerState(value string) (LedgerState, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validLedgerStates {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger state %q", value)
}
