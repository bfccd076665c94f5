package services

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/sirupsen/logrus"
)

// Fragments of registrar-scraper failures (headless browser or automation errors).
// Such messages are backend internals and are never shown to the user.
var infrastructureFailureFingerprints = []string{
	"puppeteer",
	"playwright",
	"chromedp",
	"headless",
	"chromium",
	"browser has disconnected",
	"target closed",
	"session closed",
	"protocol error",
	"navigation timeout",
	"net::err_",
	"execution context was destroyed",
	"waiting for selector",
	"page.goto",
	"context deadline exceeded",
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// isInfrastructureFailureMessage reports whether a registrar message carries an
// automation failure fingerprint
func isInfrastructureFailureMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, fingerprint := range infrastructureFailureFingerprints {
		if strings.Contains(lower, fingerprint) {
			return true
		}
	}
	return false
}

// cleanMessage strips markup registrars embed in their messages and collapses whitespace
func cleanMessage(message string) string {
	text := message
	if strings.ContainsAny(message, "<>") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(message))
		if err != nil {
			logrus.WithError(err).WithField("component", "AllotmentMessage").Debug("Failed to parse message markup")
		} else {
			text = doc.Text()
		}
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// noRecordOutcome is the benign determination used whenever a check cannot
// produce an authoritative answer
func noRecordOutcome() models.AllotmentOutcome {
	return models.AllotmentOutcome{
		Status:  models.StatusNotApplied,
		Message: models.MessageNoRecordFound,
	}
}

// normalizeAPIResult turns a backend response into a determination.
// Missing data and infrastructure failures become NOT_APPLIED / "No record found".
func normalizeAPIResult(result *models.AllotmentAPIResult) models.AllotmentOutcome {
	if result == nil || !result.Success || len(result.Data) == 0 {
		return noRecordOutcome()
	}

	record := result.Data[0]
	if isInfrastructureFailureMessage(record.Message) {
		return noRecordOutcome()
	}

	outcome := models.AllotmentOutcome{
		Status:  models.ParseAllotmentStatus(strings.ToUpper(strings.TrimSpace(record.Status))),
		Message: cleanMessage(record.Message),
		DPID:    strings.TrimSpace(record.DPID),
	}
	if outcome.Status == models.StatusAllotted && record.Units != nil {
		units := *record.Units
		outcome.Units = &units
	}
	if outcome.Status == models.StatusNotApplied && outcome.Message == "" {
		outcome.Message = models.MessageNoRecordFound
	}
	return outcome
}
