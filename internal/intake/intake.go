// Package intake defines the normalized intake record the pipeline consumes.
// Collection and validation of raw user input happen upstream; this package
// only owns the record shape and the statute line parser.
package intake

import (
	"strings"
	"time"
)

type Jurisdiction struct {
	Country string `json:"country"`
	State   string `json:"state"`
	County  string `json:"county"`
}

type Event struct {
	Type  string `json:"type"`
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

type DriverContext struct {
	VehicleUse    string `json:"vehicle_use"`
	HasCDL        bool   `json:"has_cdl"`
	OfficerAgency string `json:"officer_agency"`
}

// Statute is one cited statute line. Citation and Title may be empty strings
// but are never absent; Raw preserves the line as entered.
type Statute struct {
	Raw      string `json:"raw"`
	Citation string `json:"citation"`
	Title    string `json:"title"`
}

type Attachment struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// FundingContext carries the free-text grant description used by the funding
// audit and doctrine stages. Optional.
type FundingContext struct {
	Grant string `json:"grant"`
}

// Record is the normalized intake artifact. Statutes preserve input order.
type Record struct {
	Jurisdiction  Jurisdiction    `json:"jurisdiction"`
	Event         Event           `json:"event"`
	DriverContext DriverContext   `json:"driver_context"`
	Statutes      []Statute       `json:"statutes"`
	Attachment    *Attachment     `json:"attachment"`
	Funding       *FundingContext `json:"funding,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Normalize fills the defaults the rest of the pipeline assumes, mirroring
// what the collection layer does for blank fields.
func (r *Record) Normalize() {
	if r.Jurisdiction.Country == "" {
		r.Jurisdiction.Country = "United States"
	}
	if r.Jurisdiction.State == "" {
		r.Jurisdiction.State = "Unknown"
	}
	if r.Event.Type == "" {
		r.Event.Type = "traffic_stop"
	}
	if r.DriverContext.VehicleUse == "" {
		r.DriverContext.VehicleUse = "personal"
	}
	if r.Statutes == nil {
		r.Statutes = []Statute{}
	}
}

// StatutesText returns the lower-cased concatenation of raw statute lines,
// the form every keyword scan downstream operates on.
func (r *Record) StatutesText() string {
	parts := make([]string, 0, len(r.Statutes))
	for _, s := range r.Statutes {
		parts = append(parts, strings.ToLower(s.Raw))
	}
	return strings.Join(parts, " ")
}

// RawStatutes returns the raw statute lines in input order.
func (r *Record) RawStatutes() []string {
	raw := make([]string, 0, len(r.Statutes))
	for _, s := range r.Statutes {
		raw = append(raw, s.Raw)
	}
	return raw
}

// ParseStatutes turns a multi-line statute block into Statute records. Each
// non-blank line is split on the first two dash-like separators into
// "citation — title"; missing components become empty strings.
func ParseStatutes(raw string) []Statute {
	if raw == "" {
		return []Statute{}
	}
	statutes := []Statute{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := splitDashes(line)
		citation := ""
		title := ""
		if len(parts) > 0 {
			citation = strings.TrimSpace(parts[0])
		}
		if len(parts) > 1 {
			title = strings.TrimSpace(parts[1])
		}
		statutes = append(statutes, Statute{Raw: line, Citation: citation, Title: title})
	}
	return statutes
}

// splitDashes splits on every hyphen, en dash, or em dash, keeping empty
// components so "— title" yields an empty citation.
func splitDashes(s string) []string {
	parts := []string{}
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '–' || r == '—' {
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	parts = append(parts, b.String())
	return parts
}
