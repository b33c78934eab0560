// Package funding assesses False Claims Act exposure for the federal funding
// programs implicated by the law audit's category. The decision table is
// ordered; the first matching rule wins.
package funding

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	"lexaudit/internal/rules"
	dErrors "lexaudit/pkg/domain-errors"
)

// Risk levels.
const (
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
	RiskUnknown = "unknown"
)

// Liability theories.
const (
	TheoryFalseCertification        = "false_certification"
	TheoryMetricsInflation          = "metrics_inflation"
	TheoryImpliedFalseCertification = "implied_false_certification"
	TheoryReverseFalseClaim         = "reverse_false_claim"
	TheoryNone                      = "no_clear_theory"
)

// ProgramMCSAP is the program id whose presence triggers the commercial
// metrics heuristic.
const ProgramMCSAP = "fmcsr_mcsap"

type Assessment struct {
	RiskLevel string   `json:"risk_level"`
	Theories  []string `json:"theories"`
	Notes     string   `json:"notes"`
}

type Summary struct {
	UserFriendly string `json:"user_friendly"`
	Technical    string `json:"technical"`
}

// Result is the funding audit artifact.
type Result struct {
	Jurisdiction       intake.Jurisdiction    `json:"jurisdiction"`
	LawCategory        string                 `json:"law_category"`
	ProgramsConsidered []rules.FundingProgram `json:"programs_considered"`
	Assessment         Assessment             `json:"assessment"`
	Summary            Summary                `json:"summary"`
}

// AssessRisk walks the ordered decision table over the tier outcomes. A
// reverse false claim theory is appended after the table when a high risk
// coincides with preemption.
func AssessRisk(programs []rules.FundingProgram, checks lawaudit.Checks, driverType classify.DriverType) Assessment {
	ultraVires := checks.Tier1FederalAlignment.Status == lawaudit.Tier1UltraVires
	beyondScope := checks.Tier2ScopeAndNexus.ScopeStatus == lawaudit.ScopeBeyond

	preempted := false
	switch checks.Tier3Preemption.Status {
	case lawaudit.PreemptionExpress, lawaudit.PreemptionField, lawaudit.PreemptionConflict, lawaudit.PreemptionObstacle:
		preempted = true
	}

	constBad := false
	switch checks.Tier4Constitutional.Status {
	case lawaudit.ConstOverReach, lawaudit.ConstRightsInfringing, lawaudit.ConstVoidAbInitio:
		constBad = true
	}

	usesMcsap := false
	for _, p := range programs {
		if p.ID == ProgramMCSAP {
			usesMcsap = true
		}
	}

	a := Assessment{RiskLevel: RiskUnknown, Theories: []string{}}

	switch {
	case usesMcsap && driverType == classify.DriverPrivate && (ultraVires || beyondScope):
		a.RiskLevel = RiskHigh
		a.Theories = append(a.Theories, TheoryFalseCertification, TheoryMetricsInflation)
		a.Notes = "Commercial FMCSR-style funding appears to be supported by enforcement metrics applied to a private, non-commercial driver. " +
			"This raises concern that the state certified commercial compliance while counting non-commercial events."
	case preempted && constBad:
		a.RiskLevel = RiskHigh
		a.Theories = append(a.Theories, TheoryImpliedFalseCertification)
		a.Notes = "The combination of preemption concerns and constitutional overreach suggests that funding certifications may not match actual practices."
	case beyondScope || constBad:
		a.RiskLevel = RiskMedium
		a.Theories = append(a.Theories, TheoryImpliedFalseCertification)
		a.Notes = "Enforcement appears structurally over-broad. Funding tied to these practices may be at risk if certifications assumed narrower, lawful use."
	case ultraVires:
		a.RiskLevel = RiskMedium
		a.Theories = append(a.Theories, TheoryFalseCertification)
		a.Notes = "Enforcement is characterized as ultra vires under the law audit. Funding that depends on lawful implementation may be subject to challenge."
	default:
		a.RiskLevel = RiskLow
		a.Theories = append(a.Theories, TheoryNone)
		a.Notes = "No strong indication from the law audit that existing funding is being used in a way that contradicts certifications or statutory intent."
	}

	if a.RiskLevel == RiskHigh && preempted {
		a.Theories = append(a.Theories, TheoryReverseFalseClaim)
	}

	a.Theories = dedupe(a.Theories)
	return a
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// BuildSummary renders the user-facing sentence and the technical JSON dump.
func BuildSummary(jurisdiction intake.Jurisdiction, lawCategory string, programs []rules.FundingProgram, assessment Assessment) Summary {
	uf := "In " + jurisdiction.State + ", this enforcement pattern appears in the category " +
		"'" + lawCategory + "'. Based on the sovereign law audit and the likely funding sources, " +
		"the False Claims Act / funding misalignment risk is assessed as " + strings.ToUpper(assessment.RiskLevel) + "."

	tech := struct {
		LawCategory        string                 `json:"law_category"`
		ProgramsConsidered []rules.FundingProgram `json:"programs_considered"`
		RiskLevel          string                 `json:"risk_level"`
		Theories           []string               `json:"theories"`
		Notes              string                 `json:"notes"`
	}{lawCategory, programs, assessment.RiskLevel, assessment.Theories, assessment.Notes}

	technical, err := json.MarshalIndent(tech, "", "  ")
	if err != nil {
		technical = []byte("{}")
	}
	return Summary{UserFriendly: uf, Technical: string(technical)}
}

// Audit runs program selection plus risk assessment. Pure given the loaded
// program table.
func Audit(law *lawaudit.Result, cls *classify.Result, programsTable *rules.ProgramsConfig) Result {
	category := law.LawReference.Category
	if category == "" {
		category = "other"
	}

	programs := programsTable.Select(category)
	assessment := AssessRisk(programs, law.AuditChecks, cls.DriverType)

	jurisdiction := intake.Jurisdiction{Country: law.Jurisdiction.Country, State: law.Jurisdiction.State}
	if jurisdiction.Country == "" {
		jurisdiction.Country = "United States"
	}
	if jurisdiction.State == "" {
		jurisdiction.State = "Unknown"
	}

	return Result{
		Jurisdiction:       jurisdiction,
		LawCategory:        category,
		ProgramsConsidered: programs,
		Assessment:         assessment,
		Summary:            BuildSummary(jurisdiction, category, programs, assessment),
	}
}

// Service runs the funding audit stage against the artifact store.
type Service struct {
	store  artifact.Store
	loader *rules.Loader
	logger *slog.Logger
}

func NewService(store artifact.Store, loader *rules.Loader, logger *slog.Logger) *Service {
	return &Service{store: store, loader: loader, logger: logger}
}

func (s *Service) Run(ctx context.Context, runID string) (*Result, error) {
	law, err := artifact.Read[lawaudit.Result](ctx, s.store, runID, artifact.KeyLawAudit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no law audit for run", err)
	}
	cls, err := artifact.Read[classify.Result](ctx, s.store, runID, artifact.KeyClassification)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no classification for run", err)
	}

	programsTable, err := s.loader.Programs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTableLoad, "programs table unavailable", err)
	}

	result := Audit(&law, &cls, programsTable)

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyFundingAudit, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist funding audit", err)
	}
	return &result, nil
}
