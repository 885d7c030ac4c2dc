package enums

import "fmt"

// SourceKind tells what a transaction's doc_no refers to.
type SourceKind string

const (
	SourceKindOrder      SourceKind = "order"
	SourceKindPackage    SourceKind = "package"
	SourceKindDeposit    SourceKind = "deposit"
	SourceKindWithdrawal SourceKind = "withdrawal"
)

var validSourceKinds = []SourceKind{
	SourceKindOrder,
	SourceKindPackage,
	SourceKindDeposit,
	SourceKindWithdrawal,
}

func (k SourceKind) String() string {
	return string(k)
}

func (k SourceKind) IsValid() bool {
	for _, candidate := range validSourceKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseSourceKind(value string) (SourceKind, error) {
	for _, candidate := range validSourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid source kind %q", value)
}
