package models

import "strings"

// SourceFilter restricts a result view to one PAN source
type SourceFilter string

const (
	SourceFilterAll   SourceFilter = "ALL"
	SourceFilterLocal SourceFilter = "LOCAL"
	SourceFilterCloud SourceFilter = "CLOUD"
)

// ParseSourceFilter maps query text onto a filter, defaulting to ALL
func ParseSourceFilter(raw string) SourceFilter {
	switch SourceFilter(strings.ToUpper(strings.TrimSpace(raw))) {
	case SourceFilterLocal:
		return SourceFilterLocal
	case SourceFilterCloud:
		return SourceFilterCloud
	default:
		return SourceFilterAll
	}
}

// Matches reports whether a PAN source passes the filter
func (f SourceFilter) Matches(source PANSource) bool {
	return f == SourceFilterAll || f == "" || string(f) == string(source)
}

// ResultCounts aggregates a result set for the summary header.
// Applied counts every status except NOT_APPLIED, including in-flight rows.
type ResultCounts struct {
	Total       int `json:"total"`
	Applied     int `json:"applied"`
	Allotted    int `json:"allotted"`
	NotAllotted int `json:"not_allotted"`
	NotApplied  int `json:"not_applied"`
}

// SessionState is the pass-level state of a reconciliation session
type SessionState string

const (
	SessionIdle        SessionState = "IDLE"
	SessionReconciling SessionState = "RECONCILING"
	SessionReady       SessionState = "READY"
	SessionNoPANs      SessionState = "NO_PANS"
	SessionError       SessionState = "ERROR"
)

// SessionSnapshot is an immutable copy of a session published to observers
type SessionSnapshot struct {
	IPOName    string            `json:"ipo_name"`
	Generation uint64            `json:"generation"`
	State      SessionState      `json:"state"`
	Results    []AllotmentResult `json:"results"`
	Error      string            `json:"error,omitempty"`
	Retryable  bool              `json:"retryable"`
}
