// Package export assembles the run report: a JSON bundle of the module
// artifacts plus a rendered HTML summary. Reports are computed on demand
// from the artifact store rather than persisted.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"time"

	"lexaudit/internal/artifact"
	"lexaudit/internal/doctrine"
	"lexaudit/internal/funding"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	"lexaudit/internal/scorecard"
	"lexaudit/internal/validity"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/requestcontext"
)

// Modules holds the per-stage artifacts included in a bundle. Optional
// stages are nil when their artifact is missing.
type Modules struct {
	LawAudit     *lawaudit.Result `json:"law_audit"`
	FundingAudit *funding.Result  `json:"funding_audit"`
	Doctrine     *doctrine.Result `json:"doctrine"`
	Validity     *validity.Result `json:"validity,omitempty"`
}

// Bundle is the exportable view of one run. Law audit and scorecard are
// mandatory; the rest degrade to nil.
type Bundle struct {
	RunID        string              `json:"run_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Jurisdiction intake.Jurisdiction `json:"jurisdiction"`
	LawCategory  string              `json:"law_category"`
	Modules      Modules             `json:"modules"`
	Scorecard    scorecard.Result    `json:"scorecard"`
}

// Report carries the bundle plus its two rendered forms.
type Report struct {
	Bundle Bundle `json:"bundle"`
	JSON   string `json:"json"`
	HTML   string `json:"html"`
}

var reportTemplate = template.Must(template.New("report").Parse(`<h1>Constitutional Audit Report</h1>

<p><strong>Generated:</strong> {{.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}</p>
<p><strong>Jurisdiction:</strong> {{.Jurisdiction.State}}, {{.Jurisdiction.Country}}</p>
<p><strong>Law Category:</strong> {{.LawCategory}}</p>

<h2>Scorecard</h2>
<p><strong>Fidelity:</strong> {{.Scorecard.Scores.FidelityScore}}</p>
<p><strong>Divergence:</strong> {{.Scorecard.Scores.DivergenceScore}}</p>
<p><strong>Band:</strong> {{.Scorecard.Scores.BandLabel}}</p>
<p>{{.Scorecard.Summary.UserFriendly}}</p>

<h2>Law Audit</h2>
<pre>{{.LawAuditJSON}}</pre>

<h2>Funding Audit</h2>
<pre>{{.FundingJSON}}</pre>

<h2>Doctrine Analysis</h2>
<pre>{{.DoctrineJSON}}</pre>
{{if .ValidityJSON}}
<h2>Validity Assessment</h2>
<pre>{{.ValidityJSON}}</pre>
{{end}}`))

type templateData struct {
	Bundle
	LawAuditJSON string
	FundingJSON  string
	DoctrineJSON string
	ValidityJSON string
}

func indentJSON(v any) string {
	if v == nil {
		return "null"
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(payload)
}

// RenderHTML renders the bundle's HTML report.
func RenderHTML(b Bundle) (string, error) {
	data := templateData{
		Bundle:       b,
		LawAuditJSON: indentJSON(b.Modules.LawAudit),
		FundingJSON:  indentJSON(b.Modules.FundingAudit),
		DoctrineJSON: indentJSON(b.Modules.Doctrine),
	}
	if b.Modules.Validity != nil {
		data.ValidityJSON = indentJSON(b.Modules.Validity)
	}
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Service assembles reports from the artifact store.
type Service struct {
	store  artifact.Store
	logger *slog.Logger
}

func NewService(store artifact.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Build produces the report for a run. Missing law audit or scorecard is a
// missing prerequisite; funding, doctrine, and validity are optional.
func (s *Service) Build(ctx context.Context, runID string) (*Report, error) {
	law, err := artifact.Read[lawaudit.Result](ctx, s.store, runID, artifact.KeyLawAudit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no law audit for run", err)
	}
	card, err := artifact.Read[scorecard.Result](ctx, s.store, runID, artifact.KeyScorecard)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no scorecard for run", err)
	}

	modules := Modules{LawAudit: &law}
	if f, ferr := artifact.Read[funding.Result](ctx, s.store, runID, artifact.KeyFundingAudit); ferr == nil {
		modules.FundingAudit = &f
	}
	if d, derr := artifact.Read[doctrine.Result](ctx, s.store, runID, artifact.KeyDoctrine); derr == nil {
		modules.Doctrine = &d
	}
	if v, verr := artifact.Read[validity.Result](ctx, s.store, runID, artifact.KeyValidity); verr == nil {
		modules.Validity = &v
	}

	jurisdiction := law.Jurisdiction
	if jurisdiction.Country == "" {
		jurisdiction.Country = "United States"
	}
	if jurisdiction.State == "" {
		jurisdiction.State = "Unknown"
	}
	lawCategory := law.LawReference.Category
	if lawCategory == "" {
		lawCategory = "other"
	}

	bundle := Bundle{
		RunID:        runID,
		Timestamp:    requestcontext.Now(ctx),
		Jurisdiction: jurisdiction,
		LawCategory:  lawCategory,
		Modules:      modules,
		Scorecard:    card,
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to encode report bundle", err)
	}

	htmlOut, err := RenderHTML(bundle)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to render report", err)
	}

	return &Report{Bundle: bundle, JSON: string(payload), HTML: htmlOut}, nil
}
