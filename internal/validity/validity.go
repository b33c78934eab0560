// Package validity renders the final verdict: an exclusive four-state status
// cascade over the accumulated audit picture, plus the grounds, hooks, and
// recommended actions that go with it.
package validity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/doctrine"
	"lexaudit/internal/funding"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	"lexaudit/internal/platform/metrics"
	"lexaudit/internal/rules"
	"lexaudit/internal/rules/condition"
	"lexaudit/internal/scorecard"
	dErrors "lexaudit/pkg/domain-errors"
)

// Statuses, from worst to best. Exactly one applies to a run.
const (
	StatusVoidStrong            = "void_ab_initio_strong"
	StatusVoidCandidate         = "void_ab_initio_candidate"
	StatusStructurallyDefective = "structurally_defective"
	StatusPresumptivelyValid    = "presumptively_valid"
)

// Inputs is the evaluation context for the validity rules and the status
// cascade. Field names double as condition identifiers.
type Inputs struct {
	Tier1Status           string   `json:"tier1_status"`
	Tier2ScopeStatus      string   `json:"tier2_scope_status"`
	Tier3PreemptionStatus string   `json:"tier3_preemption_status"`
	Tier4ConstStatus      string   `json:"tier4_const_status"`
	FundingRisk           string   `json:"funding_risk"`
	DivergenceScore       int      `json:"divergence_score"`
	FidelityScore         int      `json:"fidelity_score"`
	DriverType            string   `json:"driver_type"`
	LawCategory           string   `json:"law_category"`
	DoctrinesApplied      []string `json:"doctrines_applied"`
	DoctrinesImplicated   []string `json:"doctrines_implicated"`
}

func (in Inputs) conditionContext() *condition.Context {
	ctx := condition.NewContext()
	ctx.SetString("tier1_status", in.Tier1Status)
	ctx.SetString("tier2_scope_status", in.Tier2ScopeStatus)
	ctx.SetString("tier3_preemption_status", in.Tier3PreemptionStatus)
	ctx.SetString("tier4_const_status", in.Tier4ConstStatus)
	ctx.SetString("funding_risk", in.FundingRisk)
	ctx.SetNumber("divergence_score", float64(in.DivergenceScore))
	ctx.SetNumber("fidelity_score", float64(in.FidelityScore))
	ctx.SetString("driver_type", in.DriverType)
	ctx.SetString("law_category", in.LawCategory)
	return ctx
}

type Verdict struct {
	Status              string   `json:"status"`
	Grounds             []string `json:"grounds"`
	ConstitutionalHooks []string `json:"constitutional_hooks"`
	RecommendedActions  []string `json:"recommended_actions"`
	Notes               string   `json:"notes"`
}

type Summary struct {
	UserFriendly string `json:"user_friendly"`
	Technical    string `json:"technical"`
}

// Result is the validity artifact.
type Result struct {
	Jurisdiction intake.Jurisdiction    `json:"jurisdiction"`
	LawCategory  string                 `json:"law_category"`
	Inputs       Inputs                 `json:"inputs"`
	Validity     Verdict                `json:"validity"`
	Summary      Summary                `json:"summary"`
	Diagnostics  []condition.Diagnostic `json:"diagnostics,omitempty"`
}

// ApplyRules evaluates the validity rule table. Grounds and hooks accumulate
// deduplicated in first-seen order; empty conditions are skipped.
func ApplyRules(ruleList []rules.ValidityRule, ev *condition.Evaluator, in Inputs) (grounds, hooks []string) {
	ctx := in.conditionContext()
	grounds = []string{}
	hooks = []string{}
	seenGrounds := map[string]struct{}{}
	seenHooks := map[string]struct{}{}

	for _, rule := range ruleList {
		if rule.Condition == "" {
			continue
		}
		if !ev.Eval(rule.Condition, ctx) {
			continue
		}
		for _, g := range rule.AddGrounds {
			if _, ok := seenGrounds[g]; ok {
				continue
			}
			seenGrounds[g] = struct{}{}
			grounds = append(grounds, g)
		}
		for _, h := range rule.AddHooks {
			if _, ok := seenHooks[h]; ok {
				continue
			}
			seenHooks[h] = struct{}{}
			hooks = append(hooks, h)
		}
	}
	return grounds, hooks
}

// ComputeStatus runs the exclusive status cascade, checked worst first.
func ComputeStatus(in Inputs, grounds []string) string {
	hasDoctrine := func(code string) bool {
		for _, c := range in.DoctrinesApplied {
			if c == code {
				return true
			}
		}
		for _, c := range in.DoctrinesImplicated {
			if c == code {
				return true
			}
		}
		return false
	}

	strongVoid := in.Tier4ConstStatus == lawaudit.ConstVoidAbInitio ||
		(in.Tier4ConstStatus == lawaudit.ConstRightsInfringing &&
			(in.Tier3PreemptionStatus != lawaudit.PreemptionNone || in.Tier1Status == lawaudit.Tier1UltraVires)) ||
		(hasDoctrine("supremacy_preemption") && hasDoctrine("ultra_vires")) ||
		(in.DivergenceScore >= 75 &&
			(in.Tier4ConstStatus == lawaudit.ConstOverReach || in.Tier4ConstStatus == lawaudit.ConstRightsInfringing))
	if strongVoid {
		return StatusVoidStrong
	}

	candidateVoid := in.Tier4ConstStatus == lawaudit.ConstOverReach ||
		in.Tier4ConstStatus == lawaudit.ConstRightsInfringing ||
		in.Tier1Status == lawaudit.Tier1UltraVires ||
		in.Tier2ScopeStatus == lawaudit.ScopeBeyond ||
		in.Tier3PreemptionStatus != lawaudit.PreemptionNone ||
		in.FundingRisk == funding.RiskHigh ||
		in.DivergenceScore >= 55
	if candidateVoid {
		return StatusVoidCandidate
	}

	structuralDefect := len(grounds) > 0 ||
		hasDoctrine("supremacy_preemption") ||
		hasDoctrine("police_power_overreach") ||
		in.DivergenceScore >= 35
	if structuralDefect {
		return StatusStructurallyDefective
	}

	return StatusPresumptivelyValid
}

// RecommendedActions maps the status to its fixed action list. Funding risk
// appends the False Claims Act consult where it applies.
func RecommendedActions(status, fundingRisk string) []string {
	switch status {
	case StatusPresumptivelyValid:
		return []string{
			"Document the scenario for your records.",
			"Monitor for any pattern of escalation or repeat misuse.",
		}
	case StatusStructurallyDefective:
		return []string{
			"Consult with counsel about raising statutory and constitutional objections.",
			"Consider requesting written justification from the enforcing agency.",
			"Preserve all records, citations, and communications.",
		}
	case StatusVoidCandidate:
		actions := []string{
			"Consult with constitutional or civil rights counsel about a void ab initio challenge.",
			"Preserve all court filings, transcripts, and evidence.",
			"Consider coordinating with others affected to show pattern and practice.",
		}
		if fundingRisk == funding.RiskHigh || fundingRisk == funding.RiskMedium {
			actions = append(actions, "Consider speaking with counsel familiar with False Claims Act or funding misuse.")
		}
		return actions
	case StatusVoidStrong:
		actions := []string{
			"Seek specialized constitutional/civil rights counsel as soon as possible.",
			"Treat this as a potential void ab initio case: the law or application may be invalid from the outset.",
			"Preserve every piece of documentation and evidence, including bodycam, dashcam, and court records.",
		}
		if fundingRisk == funding.RiskHigh {
			actions = append(actions, "Strongly consider consulting with False Claims Act / whistleblower counsel regarding systemic funding misuse.")
		}
		return actions
	default:
		return []string{"Gather more information and seek legal advice if possible."}
	}
}

// BuildSummary renders the verdict sentence with labeled grounds and hooks.
func BuildSummary(table *rules.ValidityMap, jurisdiction intake.Jurisdiction, lawCategory string, verdict Verdict, in Inputs) Summary {
	parts := []string{
		"In " + jurisdiction.State + ", this '" + lawCategory + "' enforcement pattern is assessed as: " +
			strings.ReplaceAll(verdict.Status, "_", " ") + ".",
	}

	if len(verdict.Grounds) > 0 {
		labels := make([]string, 0, len(verdict.Grounds))
		for _, g := range verdict.Grounds {
			labels = append(labels, table.GroundLabel(g))
		}
		parts = append(parts, "Key grounds: "+strings.Join(labels, "; ")+".")
	}
	if len(verdict.ConstitutionalHooks) > 0 {
		labels := make([]string, 0, len(verdict.ConstitutionalHooks))
		for _, h := range verdict.ConstitutionalHooks {
			labels = append(labels, table.HookLabel(h))
		}
		parts = append(parts, "Constitutional hooks: "+strings.Join(labels, "; ")+".")
	}

	tech := struct {
		Jurisdiction intake.Jurisdiction `json:"jurisdiction"`
		LawCategory  string              `json:"law_category"`
		Inputs       Inputs              `json:"inputs"`
		Validity     Verdict             `json:"validity"`
	}{jurisdiction, lawCategory, in, verdict}

	technical, err := json.MarshalIndent(tech, "", "  ")
	if err != nil {
		technical = []byte("{}")
	}
	return Summary{UserFriendly: strings.Join(parts, " "), Technical: string(technical)}
}

// Service runs the validity stage against the artifact store.
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
	law, err := artifact.Read[lawaudit.Result](ctx, s.store, runID, artifact.KeyLawAudit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no law audit for run", err)
	}
	card, err := artifact.Read[scorecard.Result](ctx, s.store, runID, artifact.KeyScorecard)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no scorecard for run", err)
	}

	var fund *funding.Result
	if f, ferr := artifact.Read[funding.Result](ctx, s.store, runID, artifact.KeyFundingAudit); ferr == nil {
		fund = &f
	}
	var doc *doctrine.Result
	if d, derr := artifact.Read[doctrine.Result](ctx, s.store, runID, artifact.KeyDoctrine); derr == nil {
		doc = &d
	}
	var cls *classify.Result
	if c, cerr := artifact.Read[classify.Result](ctx, s.store, runID, artifact.KeyClassification); cerr == nil {
		cls = &c
	}

	table, err := s.loader.ValidityMap(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTableLoad, "validity map unavailable", err)
	}

	in := buildInputs(&law, &card, fund, doc, cls)

	jurisdiction := law.Jurisdiction
	if jurisdiction.Country == "" {
		jurisdiction.Country = "United States"
	}
	if jurisdiction.State == "" {
		jurisdiction.State = "Unknown"
	}

	ev := condition.New(s.logger, func() { s.metrics.IncrementConditionFailure() })
	grounds, hooks := ApplyRules(table.Rules, ev, in)

	status := ComputeStatus(in, grounds)
	verdict := Verdict{
		Status:              status,
		Grounds:             grounds,
		ConstitutionalHooks: hooks,
		RecommendedActions:  RecommendedActions(status, in.FundingRisk),
	}

	result := Result{
		Jurisdiction: jurisdiction,
		LawCategory:  in.LawCategory,
		Inputs:       in,
		Validity:     verdict,
		Summary:      BuildSummary(table, jurisdiction, in.LawCategory, verdict, in),
		Diagnostics:  ev.Diagnostics(),
	}

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyValidity, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist validity result", err)
	}
	return &result, nil
}

func buildInputs(law *lawaudit.Result, card *scorecard.Result, fund *funding.Result, doc *doctrine.Result, cls *classify.Result) Inputs {
	in := Inputs{
		Tier1Status:           law.AuditChecks.Tier1FederalAlignment.Status,
		Tier2ScopeStatus:      law.AuditChecks.Tier2ScopeAndNexus.ScopeStatus,
		Tier3PreemptionStatus: law.AuditChecks.Tier3Preemption.Status,
		Tier4ConstStatus:      law.AuditChecks.Tier4Constitutional.Status,
		FundingRisk:           funding.RiskUnknown,
		DivergenceScore:       card.Scores.DivergenceScore,
		FidelityScore:         card.Scores.FidelityScore,
		DriverType:            "unknown",
		LawCategory:           law.LawReference.Category,
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
	if in.LawCategory == "" {
		in.LawCategory = "other"
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
	if cls != nil && cls.DriverType != "" {
		in.DriverType = string(cls.DriverType)
	}
	return in
}
