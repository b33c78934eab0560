// Package scorecard computes the divergence and fidelity scores from the
// tier outcomes, funding risk, and matched doctrines. The two scores always
// sum to 100 after clamping.
package scorecard

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"lexaudit/internal/artifact"
	"lexaudit/internal/doctrine"
	"lexaudit/internal/funding"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	dErrors "lexaudit/pkg/domain-errors"
)

// Bands.
const (
	BandGreen  = "green"
	BandYellow = "yellow"
	BandOrange = "orange"
	BandRed    = "red"
)

// DoctrineScoreCap bounds the doctrine contribution so stacked doctrines do
// not dominate the scale.
const DoctrineScoreCap = 30

// Inputs is the snapshot the scores were computed from, kept on the artifact
// for auditability.
type Inputs struct {
	Tier1Status           string   `json:"tier1_status"`
	Tier2ScopeStatus      string   `json:"tier2_scope_status"`
	Tier3PreemptionStatus string   `json:"tier3_preemption_status"`
	Tier4ConstStatus      string   `json:"tier4_const_status"`
	FundingRisk           string   `json:"funding_risk"`
	DoctrinesApplied      []string `json:"doctrines_applied"`
	DoctrinesImplicated   []string `json:"doctrines_implicated"`
}

type Scores struct {
	FidelityScore   int    `json:"fidelity_score"`
	DivergenceScore int    `json:"divergence_score"`
	Band            string `json:"band"`
	BandLabel       string `json:"band_label"`
}

type Summary struct {
	UserFriendly string `json:"user_friendly"`
	Technical    string `json:"technical"`
}

// Result is the scorecard artifact.
type Result struct {
	Jurisdiction intake.Jurisdiction `json:"jurisdiction"`
	LawCategory  string              `json:"law_category"`
	Inputs       Inputs              `json:"inputs"`
	Scores       Scores              `json:"scores"`
	Summary      Summary             `json:"summary"`
}

// Ordinal weights per tier. Unrecognized statuses take the "unknown" weight.

func mapTier1(status string) int {
	switch status {
	case lawaudit.Tier1Aligned:
		return 0
	case lawaudit.Tier1OverBroad:
		return 15
	case lawaudit.Tier1UltraVires:
		return 25
	default:
		return 5
	}
}

func mapTier2(status string) int {
	switch status {
	case lawaudit.ScopeWithin:
		return 0
	case lawaudit.ScopeBeyond:
		return 20
	default:
		return 5
	}
}

func mapTier3(status string) int {
	switch status {
	case lawaudit.PreemptionNone:
		return 0
	case lawaudit.PreemptionExpress, lawaudit.PreemptionField, lawaudit.PreemptionConflict, lawaudit.PreemptionObstacle:
		return 20
	default:
		return 10
	}
}

func mapTier4(status string) int {
	switch status {
	case lawaudit.ConstTextAligned:
		return 0
	case lawaudit.ConstOverReach:
		return 25
	case lawaudit.ConstRightsInfringing:
		return 30
	case lawaudit.ConstVoidAbInitio:
		return 40
	default:
		return 10
	}
}

func mapFundingRisk(risk string) int {
	switch risk {
	case "none":
		return 0
	case funding.RiskLow:
		return 5
	case funding.RiskMedium:
		return 15
	case funding.RiskHigh:
		return 25
	default:
		return 5
	}
}

// scoreDoctrines weighs applied doctrines heavier than implicated ones,
// capped at DoctrineScoreCap.
func scoreDoctrines(applied, implicated []string) int {
	score := len(applied)*5 + len(implicated)*3
	if score > DoctrineScoreCap {
		return DoctrineScoreCap
	}
	return score
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// BandFromDivergence buckets the divergence score.
func BandFromDivergence(d int) (band, label string) {
	switch {
	case d <= 20:
		return BandGreen, "Constitutionally sound (low divergence)"
	case d <= 40:
		return BandYellow, "Mixed — caution warranted"
	case d <= 65:
		return BandOrange, "High concern — probable overreach"
	default:
		return BandRed, "Severe constitutional failure"
	}
}

// Compute derives the scores from the inputs. Divergence is the clamped sum
// of the component weights; fidelity is its complement.
func Compute(in Inputs) Scores {
	divergence := mapTier1(in.Tier1Status) +
		mapTier2(in.Tier2ScopeStatus) +
		mapTier3(in.Tier3PreemptionStatus) +
		mapTier4(in.Tier4ConstStatus) +
		mapFundingRisk(in.FundingRisk) +
		scoreDoctrines(in.DoctrinesApplied, in.DoctrinesImplicated)
	divergence = clamp(divergence, 0, 100)

	band, label := BandFromDivergence(divergence)
	return Scores{
		FidelityScore:   clamp(100-divergence, 0, 100),
		DivergenceScore: divergence,
		Band:            band,
		BandLabel:       label,
	}
}

// BuildInputs assembles the scoring snapshot. Funding and doctrine artifacts
// are optional and degrade to unknown risk and empty doctrine lists.
func BuildInputs(law *lawaudit.Result, fund *funding.Result, doc *doctrine.Result) Inputs {
	in := Inputs{
		Tier1Status:           law.AuditChecks.Tier1FederalAlignment.Status,
		Tier2ScopeStatus:      law.AuditChecks.Tier2ScopeAndNexus.ScopeStatus,
		Tier3PreemptionStatus: law.AuditChecks.Tier3Preemption.Status,
		Tier4ConstStatus:      law.AuditChecks.Tier4Constitutional.Status,
		FundingRisk:           funding.RiskUnknown,
		DoctrinesApplied:      []string{},
		DoctrinesImplicated:   []string{},
	}
	if in.Tier1Status == "" {
		in.Tier1Status = "unknown"
	}
	if in.Tier2ScopeStatus == "" {
		in.Tier2ScopeStatus = "unknown"
	}
	if in.Tier3PreemptionStatus == "" {
		in.Tier3PreemptionStatus = lawaudit.PreemptionNone
	}
	if in.Tier4ConstStatus == "" {
		in.Tier4ConstStatus = "unknown"
	}
	if fund != nil && fund.Assessment.RiskLevel != "" {
		in.FundingRisk = fund.Assessment.RiskLevel
	}
	if doc != nil {
		if doc.Doctrines.Applied != nil {
			in.DoctrinesApplied = doc.Doctrines.Applied
		}
		if doc.Doctrines.Implicated != nil {
			in.DoctrinesImplicated = doc.Doctrines.Implicated
		}
	}
	return in
}

// BuildSummary renders the two-sentence score readout plus the technical
// JSON dump.
func BuildSummary(jurisdiction intake.Jurisdiction, lawCategory string, scores Scores, in Inputs) Summary {
	uf := "In " + jurisdiction.State + ", this '" + lawCategory +
		"' scenario has a constitutional fidelity score of " + strconv.Itoa(scores.FidelityScore) +
		" out of 100. Divergence score " + strconv.Itoa(scores.DivergenceScore) +
		" places it in the " + scores.BandLabel + " band."

	tech := struct {
		Jurisdiction intake.Jurisdiction `json:"jurisdiction"`
		LawCategory  string              `json:"law_category"`
		Inputs       Inputs              `json:"inputs"`
		Scores       Scores              `json:"scores"`
	}{jurisdiction, lawCategory, in, scores}

	technical, err := json.MarshalIndent(tech, "", "  ")
	if err != nil {
		technical = []byte("{}")
	}
	return Summary{UserFriendly: uf, Technical: string(technical)}
}

// Service runs the scorecard stage against the artifact store.
type Service struct {
	store  artifact.Store
	logger *slog.Logger
}

func NewService(store artifact.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) Run(ctx context.Context, runID string) (*Result, error) {
	law, err := artifact.Read[lawaudit.Result](ctx, s.store, runID, artifact.KeyLawAudit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no law audit for run", err)
	}

	var fund *funding.Result
	if f, ferr := artifact.Read[funding.Result](ctx, s.store, runID, artifact.KeyFundingAudit); ferr == nil {
		fund = &f
	}
	var doc *doctrine.Result
	if d, derr := artifact.Read[doctrine.Result](ctx, s.store, runID, artifact.KeyDoctrine); derr == nil {
		doc = &d
	}

	lawCategory := law.LawReference.Category
	if lawCategory == "" {
		lawCategory = "other"
	}
	jurisdiction := law.Jurisdiction
	if jurisdiction.Country == "" {
		jurisdiction.Country = "United States"
	}
	if jurisdiction.State == "" {
		jurisdiction.State = "Unknown"
	}

	in := BuildInputs(&law, fund, doc)
	scores := Compute(in)

	result := Result{
		Jurisdiction: jurisdiction,
		LawCategory:  lawCategory,
		Inputs:       in,
		Scores:       scores,
		Summary:      BuildSummary(jurisdiction, lawCategory, scores, in),
	}

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyScorecard, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist scorecard", err)
	}
	return &result, nil
}
