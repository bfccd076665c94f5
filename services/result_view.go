package services

import (
	"sort"
	"strings"

	"github.com/fenilmodi00/ipo-allotment-client/models"
)

// FilterAndSortResults keeps results whose name or PAN contains the trimmed query
// (case-insensitive; a blank query matches everything) and whose source passes filter, ordered by status priority.
// Equal priorities keep their input order. The input slice is not modified.
func FilterAndSortResults(results []models.AllotmentResult, query string, filter models.SourceFilter) []models.AllotmentResult {
	needle := strings.ToLower(strings.TrimSpace(query))

	view := make([]models.AllotmentResult, 0, len(results))
	for _, result := range results {
		if !filter.Matches(result.Source) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(result.Name), needle) &&
			!strings.Contains(strings.ToLower(result.PANNumber), needle) {
			continue
		}
		view = append(view, result)
	}

	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Status.Priority() < view[j].Status.Priority()
	})
	return view
}

// CountResults aggregates a result set. Every status except NOT_APPLIED counts as applied.
func CountResults(results []models.AllotmentResult) models.ResultCounts {
	counts := models.ResultCounts{Total: len(results)}
	for _, result := range results {
		switch result.Status {
		case models.StatusAllotted:
			counts.Allotted++
		case models.StatusNotAllotted:
			counts.NotAllotted++
		case models.StatusNotApplied:
			counts.NotApplied++
		}
		if result.Status != models.StatusNotApplied {
			counts.Applied++
		}
	}
	return counts
}

// ResultView is the derived presentation of a session
type ResultView struct {
	IPOName   string                   `json:"ipo_name"`
	State     models.SessionState      `json:"state"`
	Error     string                   `json:"error,omitempty"`
	Retryable bool                     `json:"retryable"`
	Results   []models.AllotmentResult `json:"results"`
	Counts    models.ResultCounts      `json:"counts"`
}

// BuildResultView derives the filtered view of a snapshot. Counts cover the whole
// result set, not just the filtered rows.
func BuildResultView(snapshot models.SessionSnapshot, query string, filter models.SourceFilter) ResultView {
	return ResultView{
		IPOName:   snapshot.IPOName,
		State:     snapshot.State,
		Error:     snapshot.Error,
		Retryable: snapshot.Retryable,
		Results:   FilterAndSortResults(snapshot.Results, query, filter),
		Counts:    CountResults(snapshot.Results),
	}
}
