package models

// AllotmentStatus is the lifecycle state of one PAN's allotment check
type AllotmentStatus string

const (
	StatusWaiting     AllotmentStatus = "WAITING"
	StatusChecking    AllotmentStatus = "CHECKING"
	StatusAllotted    AllotmentStatus = "ALLOTTED"
	StatusNotAllotted AllotmentStatus = "NOT_ALLOTTED"
	StatusNotApplied  AllotmentStatus = "NOT_APPLIED"
	StatusError       AllotmentStatus = "ERROR"
	StatusUnknown     AllotmentStatus = "UNKNOWN"
)

// Display messages shared by the reconciliation pipeline
const (
	MessageTapToCheck    = "Tap to check"
	MessageWaiting       = "Waiting..."
	MessageChecking      = "Checking..."
	MessageNoRecordFound = "No record found"
)

// IsResolved reports whether the status is an authoritative answer worth caching.
// UNKNOWN and ERROR are never trusted as final.
func (s AllotmentStatus) IsResolved() bool {
	switch s {
	case StatusAllotted, StatusNotAllotted, StatusNotApplied:
		return true
	default:
		return false
	}
}

// Priority orders statuses for display, lower first
func (s AllotmentStatus) Priority() int {
	switch s {
	case StatusAllotted:
		return 1
	case StatusNotAllotted:
		return 2
	case StatusNotApplied:
		return 3
	default:
		return 4
	}
}

// ParseAllotmentStatus maps a backend status string onto a known status.
// Unrecognised values map to UNKNOWN.
func ParseAllotmentStatus(raw string) AllotmentStatus {
	switch s := AllotmentStatus(raw); s {
	case StatusWaiting, StatusChecking, StatusAllotted, StatusNotAllotted,
		StatusNotApplied, StatusError, StatusUnknown:
		return s
	default:
		return StatusUnknown
	}
}

// AllotmentResult is the last known allotment outcome of one PAN for one IPO.
// Name and Source are copied from the PAN entry and refreshed on every cache load.
type AllotmentResult struct {
	PANNumber string          `json:"pan_number"`
	Name      string          `json:"name"`
	Source    PANSource       `json:"source"`
	Status    AllotmentStatus `json:"status"`
	Units     *int            `json:"units,omitempty"`
	Message   string          `json:"message,omitempty"`
	DPID      string          `json:"dp_id,omitempty"`
}

// NewWaitingResult creates a queued result for a PAN with no known outcome
func NewWaitingResult(entry PANEntry, message string) AllotmentResult {
	return AllotmentResult{
		PANNumber: entry.PANNumber,
		Name:      entry.DisplayName(),
		Source:    entry.Source,
		Status:    StatusWaiting,
		Message:   message,
	}
}

// AllotmentOutcome is the normalized determination produced by one allotment check
type AllotmentOutcome struct {
	Status  AllotmentStatus
	Units   *int
	Message string
	DPID    string
}

// Apply copies the outcome onto a result, clearing units for non-allotted statuses
func (o AllotmentOutcome) Apply(result AllotmentResult) AllotmentResult {
	result.Status = o.Status
	result.Message = o.Message
	result.DPID = o.DPID
	result.Units = nil
	if o.Status == StatusAllotted && o.Units != nil {
		units := *o.Units
		result.Units = &units
	}
	return result
}

// AllotmentAPIRecord is one record returned by the allotment check endpoint
type AllotmentAPIRecord struct {
	Status  string `json:"status"`
	Units   *int   `json:"units,omitempty"`
	Message string `json:"message,omitempty"`
	DPID    string `json:"dp_id,omitempty"`
}

// AllotmentAPIResult is the response envelope of the allotment check endpoint
type AllotmentAPIResult struct {
	Success bool                 `json:"success"`
	Data    []AllotmentAPIRecord `json:"data"`
}

// AllotmentCheckRequest is the request body of the allotment check endpoint
type AllotmentCheckRequest struct {
	IPOName      string   `json:"ipo_name"`
	Registrar    string   `json:"registrar"`
	PANNumbers   []string `json:"pan_numbers"`
	ForceRefresh bool     `json:"force_refresh"`
}
