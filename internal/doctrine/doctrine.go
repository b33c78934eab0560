// Package doctrine matches the audit picture against the doctrine rule
// tables. Two passes run per case: the applicability rules over the tier
// statuses, and the preemption rule walk over case type, movement scope, law
// text, and funding programs. Rule conditions that fail to parse never abort
// a run; they evaluate false and surface as diagnostics.
package doctrine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/funding"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	"lexaudit/internal/platform/metrics"
	"lexaudit/internal/rules"
	"lexaudit/internal/rules/condition"
	dErrors "lexaudit/pkg/domain-errors"
)

// Inputs is the flat context snapshot the applicability rules evaluate
// against. Field names double as condition identifiers.
type Inputs struct {
	Tier1Status           string `json:"tier1_status"`
	Tier2ScopeStatus      string `json:"tier2_scope_status"`
	Tier3PreemptionStatus string `json:"tier3_preemption_status"`
	Tier4ConstStatus      string `json:"tier4_const_status"`
	FundingRisk           string `json:"funding_risk"`
	DriverType            string `json:"driver_type"`
	LawCategory           string `json:"law_category"`
}

func (in Inputs) conditionContext() *condition.Context {
	ctx := condition.NewContext()
	ctx.SetString("tier1_status", in.Tier1Status)
	ctx.SetString("tier2_scope_status", in.Tier2ScopeStatus)
	ctx.SetString("tier3_preemption_status", in.Tier3PreemptionStatus)
	ctx.SetString("tier4_const_status", in.Tier4ConstStatus)
	ctx.SetString("funding_risk", in.FundingRisk)
	ctx.SetString("driver_type", in.DriverType)
	ctx.SetString("law_category", in.LawCategory)
	return ctx
}

type Doctrines struct {
	Applied    []string `json:"applied"`
	Implicated []string `json:"implicated"`
	Notes      string   `json:"notes"`
}

// PreemptionFinding is one preemption rule that fired, with its attached
// doctrine definitions resolved.
type PreemptionFinding struct {
	RuleID      string           `json:"rule_id"`
	Description string           `json:"description"`
	Doctrines   []rules.Doctrine `json:"doctrines"`
}

// RightsFlag ties a state statute's risk flag to the rights test it names.
type RightsFlag struct {
	Statute      string           `json:"statute"`
	RightsTestID string           `json:"rights_test_id"`
	Description  string           `json:"description"`
	Doctrines    []rules.Doctrine `json:"doctrines"`
}

// EngineAnalysis is the preemption-walk half of the doctrine artifact.
type EngineAnalysis struct {
	State              string              `json:"state"`
	CaseType           string              `json:"case_type"`
	Severity           string              `json:"severity"`
	FundingProgramIDs  []string            `json:"funding_program_ids"`
	PreemptionFindings []PreemptionFinding `json:"preemption_findings"`
	RightsFlags        []RightsFlag        `json:"rights_flags"`
}

type Summary struct {
	UserFriendly string `json:"user_friendly"`
	Technical    string `json:"technical"`
}

// Result is the doctrine artifact.
type Result struct {
	Jurisdiction intake.Jurisdiction    `json:"jurisdiction"`
	LawCategory  string                 `json:"law_category"`
	Inputs       Inputs                 `json:"inputs"`
	Doctrines    Doctrines              `json:"doctrines"`
	Engine       EngineAnalysis         `json:"engine_analysis"`
	Summary      Summary                `json:"summary"`
	Diagnostics  []condition.Diagnostic `json:"diagnostics,omitempty"`
}

// BuildInputs assembles the rule context from upstream artifacts. A missing
// funding audit degrades to funding_risk "unknown".
func BuildInputs(law *lawaudit.Result, fund *funding.Result, cls *classify.Result) Inputs {
	in := Inputs{
		Tier1Status:           law.AuditChecks.Tier1FederalAlignment.Status,
		Tier2ScopeStatus:      law.AuditChecks.Tier2ScopeAndNexus.ScopeStatus,
		Tier3PreemptionStatus: law.AuditChecks.Tier3Preemption.Status,
		Tier4ConstStatus:      law.AuditChecks.Tier4Constitutional.Status,
		FundingRisk:           funding.RiskUnknown,
		DriverType:            string(cls.DriverType),
		LawCategory:           law.LawReference.Category,
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
	if in.DriverType == "" {
		in.DriverType = "unknown"
	}
	if in.LawCategory == "" {
		in.LawCategory = "other"
	}
	if fund != nil && fund.Assessment.RiskLevel != "" {
		in.FundingRisk = fund.Assessment.RiskLevel
	}
	return in
}

// ApplyRules evaluates every applicability rule against the inputs. Codes
// accumulate across rules, deduplicated in first-seen order. Rules with an
// empty condition are skipped.
func ApplyRules(ruleList []rules.ApplicabilityRule, ev *condition.Evaluator, in Inputs) (applied, implicated []string) {
	ctx := in.conditionContext()
	applied = []string{}
	implicated = []string{}
	seenApplied := map[string]struct{}{}
	seenImplicated := map[string]struct{}{}

	for _, rule := range ruleList {
		if rule.Condition == "" {
			continue
		}
		if !ev.Eval(rule.Condition, ctx) {
			continue
		}
		for _, code := range rule.AddApplied {
			if _, ok := seenApplied[code]; ok {
				continue
			}
			seenApplied[code] = struct{}{}
			applied = append(applied, code)
		}
		for _, code := range rule.AddImplicated {
			if _, ok := seenImplicated[code]; ok {
				continue
			}
			seenImplicated[code] = struct{}{}
			implicated = append(implicated, code)
		}
	}
	return applied, implicated
}

var severityOrder = map[string]int{"low": 0, "medium": 1, "high": 2, "extreme": 3}

// InferFundingProgramIDs scans the free-text grant description for program
// signals.
func InferFundingProgramIDs(grantText string) []string {
	text := strings.ToLower(grantText)
	ids := []string{}
	if strings.Contains(text, "mcsap") || strings.Contains(text, "motor carrier") {
		ids = append(ids, "mcsap")
	}
	if strings.Contains(text, "402") || strings.Contains(text, "nhtsa") {
		ids = append(ids, "nhtsa_402")
	}
	return ids
}

// EngineInput is the raw material for the preemption rule walk.
type EngineInput struct {
	State     string
	CaseType  string
	Severity  string
	LawsText  string
	GrantText string
}

// EvaluateEngine runs the preemption rules and the state rights-test scan.
// Every trigger on a rule must pass for the rule to fire; an absent trigger
// never filters.
func EvaluateEngine(tables *rules.DoctrineTables, input EngineInput) EngineAnalysis {
	state := strings.ToUpper(input.State)
	caseType := input.CaseType
	if caseType == "" {
		caseType = "traffic"
	}
	severity := input.Severity
	if severity == "" {
		severity = "medium"
	}
	lawsText := strings.ToLower(input.LawsText)
	movementScope := "private"

	programIDs := InferFundingProgramIDs(input.GrantText)

	findings := []PreemptionFinding{}
	for _, rule := range tables.PreemptionRules {
		if len(rule.Triggers.CaseType) > 0 && !contains(rule.Triggers.CaseType, caseType) {
			continue
		}
		if len(rule.Triggers.MovementScope) > 0 && !contains(rule.Triggers.MovementScope, movementScope) {
			continue
		}
		if len(rule.Triggers.KeywordsInLawBlock) > 0 {
			hit := false
			for _, kw := range rule.Triggers.KeywordsInLawBlock {
				if strings.Contains(lawsText, strings.ToLower(kw)) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
		}
		if len(rule.Triggers.FundingProgramIDs) > 0 {
			hit := false
			for _, id := range rule.Triggers.FundingProgramIDs {
				if contains(programIDs, id) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
		}
		if rule.Triggers.SeverityMin != "" {
			if severityOrder[severity] < severityOrder[rule.Triggers.SeverityMin] {
				continue
			}
		}

		findings = append(findings, PreemptionFinding{
			RuleID:      rule.ID,
			Description: rule.Description,
			Doctrines:   resolveDoctrines(tables, rule.DoctrineRefs),
		})
	}

	flags := []RightsFlag{}
	if tables.StateMap != nil {
		for _, statute := range tables.StateMap.Statutes {
			for _, flagID := range statute.RiskFlags {
				test, ok := findRightsTest(tables.RightsTests, flagID)
				if !ok {
					continue
				}
				flags = append(flags, RightsFlag{
					Statute:      statute.Citation,
					RightsTestID: test.ID,
					Description:  test.Description,
					Doctrines:    resolveDoctrines(tables, test.DoctrineRefs),
				})
			}
		}
	}

	return EngineAnalysis{
		State:              state,
		CaseType:           caseType,
		Severity:           severity,
		FundingProgramIDs:  programIDs,
		PreemptionFindings: findings,
		RightsFlags:        flags,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func resolveDoctrines(tables *rules.DoctrineTables, refs []string) []rules.Doctrine {
	out := []rules.Doctrine{}
	for _, id := range refs {
		if d, ok := tables.Doctrine(id); ok {
			out = append(out, d)
		}
	}
	return out
}

func findRightsTest(tests []rules.RightsTest, id string) (rules.RightsTest, bool) {
	for _, t := range tests {
		if t.ID == id {
			return t, true
		}
	}
	return rules.RightsTest{}, false
}

// BuildNotes renders applied then implicated doctrine descriptions, one per
// line. Codes without a description are skipped.
func BuildNotes(tables *rules.DoctrineTables, applied, implicated []string) string {
	parts := []string{}
	for _, code := range applied {
		if d, ok := tables.Doctrine(code); ok && d.Description != "" {
			parts = append(parts, d.Label+": "+d.Description)
		}
	}
	for _, code := range implicated {
		if d, ok := tables.Doctrine(code); ok && d.Description != "" {
			parts = append(parts, "(Implicated) "+d.Label+": "+d.Description)
		}
	}
	return strings.Join(parts, "\n")
}

// BuildSummary renders the doctrinal picture. Unknown codes fall back to the
// code itself as a label.
func BuildSummary(tables *rules.DoctrineTables, jurisdiction intake.Jurisdiction, lawCategory string, in Inputs, applied, implicated []string) Summary {
	label := func(code string) string {
		if d, ok := tables.Doctrine(code); ok && d.Label != "" {
			return d.Label
		}
		return code
	}

	parts := []string{
		"In " + jurisdiction.State + ", your scenario in the '" + lawCategory + "' category raises the following doctrinal picture.",
	}
	if len(applied) > 0 {
		labels := make([]string, 0, len(applied))
		for _, code := range applied {
			labels = append(labels, label(code))
		}
		parts = append(parts, "Directly applied doctrines: "+strings.Join(labels, ", ")+".")
	} else {
		parts = append(parts, "No clear doctrine is firmly applied by the current ruleset.")
	}
	if len(implicated) > 0 {
		labels := make([]string, 0, len(implicated))
		for _, code := range implicated {
			labels = append(labels, label(code))
		}
		parts = append(parts, "Doctrines implicated or suggested by the pattern: "+strings.Join(labels, ", ")+".")
	}

	tech := struct {
		Context             Inputs   `json:"context"`
		DoctrinesApplied    []string `json:"doctrines_applied"`
		DoctrinesImplicated []string `json:"doctrines_implicated"`
	}{in, applied, implicated}

	technical, err := json.MarshalIndent(tech, "", "  ")
	if err != nil {
		technical = []byte("{}")
	}
	return Summary{UserFriendly: strings.Join(parts, " "), Technical: string(technical)}
}

// caseTypeFor maps the classified scenario onto the engine's case type.
func caseTypeFor(scenario classify.Scenario) string {
	switch scenario {
	case classify.ScenarioCriminalCase:
		return "criminal"
	case classify.ScenarioCivilCase:
		return "civil"
	case classify.ScenarioHearing:
		return "hearing"
	default:
		return "traffic"
	}
}

// severityFor grades the case from the constitutional tier outcome.
func severityFor(tier4Status string) string {
	switch tier4Status {
	case lawaudit.ConstVoidAbInitio, lawaudit.ConstRightsInfringing:
		return "high"
	default:
		return "medium"
	}
}

// Service runs the doctrine stage against the artifact store.
type Service struct {
	store   artifact.Store
	loader  *rules.Loader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store artifact.Store, loader *rules.Loader, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, loader: loader, logger: logger, metrics: m}
}

func (s *Service) Run(ctx context.Context, runID string) (*Result, error) {
	cls, err := artifact.Read[classify.Result](ctx, s.store, runID, artifact.KeyClassification)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no classification for run", err)
	}
	law, err := artifact.Read[lawaudit.Result](ctx, s.store, runID, artifact.KeyLawAudit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no law audit for run", err)
	}

	// Funding and intake are optional here: a missing funding audit means
	// funding_risk stays unknown, a missing intake empties the law text scan.
	var fund *funding.Result
	if f, ferr := artifact.Read[funding.Result](ctx, s.store, runID, artifact.KeyFundingAudit); ferr == nil {
		fund = &f
	}
	var rec *intake.Record
	if r, rerr := artifact.Read[intake.Record](ctx, s.store, runID, artifact.KeyIntake); rerr == nil {
		rec = &r
	}

	stateCode := law.Jurisdiction.State
	tables, err := s.loader.DoctrineTables(ctx, stateCode)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTableLoad, "doctrine tables unavailable", err)
	}

	in := BuildInputs(&law, fund, &cls)

	ev := condition.New(s.logger, func() { s.metrics.IncrementConditionFailure() })
	applied, implicated := ApplyRules(tables.Map.Rules, ev, in)

	engineInput := EngineInput{
		State:    stateCode,
		CaseType: caseTypeFor(cls.Scenario),
		Severity: severityFor(in.Tier4ConstStatus),
	}
	if rec != nil {
		engineInput.LawsText = rec.StatutesText()
		if rec.Funding != nil {
			engineInput.GrantText = rec.Funding.Grant
		}
	}
	engine := EvaluateEngine(tables, engineInput)

	jurisdiction := law.Jurisdiction
	if jurisdiction.Country == "" {
		jurisdiction.Country = "United States"
	}
	if jurisdiction.State == "" {
		jurisdiction.State = "Unknown"
	}

	result := Result{
		Jurisdiction: jurisdiction,
		LawCategory:  in.LawCategory,
		Inputs:       in,
		Doctrines: Doctrines{
			Applied:    applied,
			Implicated: implicated,
			Notes:      BuildNotes(tables, applied, implicated),
		},
		Engine:      engine,
		Summary:     BuildSummary(tables, jurisdiction, in.LawCategory, in, applied, implicated),
		Diagnostics: ev.Diagnostics(),
	}

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyDoctrine, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist doctrine result", err)
	}
	return &result, nil
}
