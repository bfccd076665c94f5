package models

// PANSource records where a PAN entry is stored
type PANSource string

const (
	PANSourceLocal PANSource = "LOCAL"
	PANSourceCloud PANSource = "CLOUD"
)

// PANEntry is an applicant PAN known to the client, either kept on the device
// (unsaved) or synced to the user's account.
type PANEntry struct {
	PANNumber string    `json:"pan_number"`
	Name      string    `json:"name"`
	Source    PANSource `json:"source"`
}

// DisplayName returns the entry name, falling back to the PAN itself
func (p PANEntry) DisplayName() string {
	if p.Name == "" {
		return p.PANNumber
	}
	return p.Name
}
