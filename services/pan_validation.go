package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fenilmodi00/ipo-allotment-client/shared"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

var (
	// ErrInvalidPAN is returned for PANs not matching AAAAA9999A
	ErrInvalidPAN = shared.NewValidationError("INVALID_PAN", "PAN must look like ABCDE1234F")
	// ErrDuplicatePAN is returned when a PAN is already in the result set
	ErrDuplicatePAN = shared.NewValidationError("DUPLICATE_PAN", "PAN already added")
	// ErrPANNotFound is returned when a PAN is not in the result set
	ErrPANNotFound = shared.NewValidationError("PAN_NOT_FOUND", "PAN not found")
	// ErrSuperseded is returned by a pass or refresh whose writes were dropped
	// because a newer reconciliation pass started.
	ErrSuperseded = shared.NewServiceError(shared.ErrorCategoryProcessing, "SUPERSEDED",
		"reconciliation superseded by a newer pass", "ReconcileSession", "reconcile", false, nil)
)

// NormalizePAN trims and uppercases a PAN
func NormalizePAN(pan string) string {
	return strings.ToUpper(strings.TrimSpace(pan))
}

// ValidatePAN normalizes a PAN and checks its format
func ValidatePAN(pan string) (string, error) {
	normalized := NormalizePAN(pan)
	if !panPattern.MatchString(normalized) {
		return "", shared.NewValidationError(ErrInvalidPAN.Code,
			fmt.Sprintf("%q is not a valid PAN (expected format ABCDE1234F)", pan))
	}
	return normalized, nil
}
