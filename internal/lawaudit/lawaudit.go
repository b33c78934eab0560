// Package lawaudit implements the four-tier law audit: federal alignment,
// scope and commercial nexus, preemption, and constitutional posture. Tier
// evaluators are pure functions over the inferred law category, the loaded
// rule table, and the classification.
package lawaudit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/intake"
	"lexaudit/internal/rules"
	dErrors "lexaudit/pkg/domain-errors"
)

// Law categories.
const (
	CategoryDriverLicensing     = "driver_licensing"
	CategoryVehicleRegistration = "vehicle_registration"
	CategoryInsurance           = "insurance"
	CategoryDWI                 = "dwi_dui_owi"
	CategoryCommercialTransport = "commercial_transport"
	CategoryFMCSRAdoption       = "fmcsr_adoption"
	CategoryImpliedConsent      = "implied_consent"
	CategoryOther               = "other"
)

// Tier 1 statuses.
const (
	Tier1Aligned    = "aligned"
	Tier1OverBroad  = "over_broad"
	Tier1UltraVires = "ultra_vires"
)

// Tier 2 statuses.
const (
	ScopeWithin = "within_scope"
	ScopeBeyond = "beyond_scope"
)

// Tier 3 statuses.
const (
	PreemptionNone     = "no_preemption_issue"
	PreemptionExpress  = "express_preempted"
	PreemptionField    = "field_preempted"
	PreemptionConflict = "conflict_preempted"
	PreemptionObstacle = "obstacle_preempted"
)

// Tier 4 statuses.
const (
	ConstTextAligned      = "text_aligned"
	ConstOverReach        = "over_reach"
	ConstRightsInfringing = "rights_infringing"
	ConstVoidAbInitio     = "void_ab_initio"
)

// Roll-up risk flags.
const (
	FlagUltraViresEnforcement   = "ultra_vires_enforcement"
	FlagNoCommercialNexus       = "no_commercial_nexus"
	FlagPrivateInCommercial     = "private_driver_in_commercial_framework"
	FlagLikelyPreempted         = "likely_preempted"
	FlagConstitutionalViolation = "constitutional_violation"
	FlagVoidAbInitioPattern     = "void_ab_initio_pattern"
)

type TierFederal struct {
	Status         string   `json:"status"`
	Notes          string   `json:"notes"`
	FederalSources []string `json:"federal_sources"`
}

type TierScope struct {
	CommercialNexusRequired bool   `json:"commercial_nexus_required"`
	CommercialNexusPresent  bool   `json:"commercial_nexus_present"`
	ScopeStatus             string `json:"scope_status"`
	Notes                   string `json:"notes"`
}

type TierPreemption struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type TierConstitutional struct {
	Status           string   `json:"status"`
	RightsImplicated []string `json:"rights_implicated"`
	Notes            string   `json:"notes"`
}

type Checks struct {
	Tier1FederalAlignment TierFederal        `json:"tier1_federal_alignment"`
	Tier2ScopeAndNexus    TierScope          `json:"tier2_scope_and_nexus"`
	Tier3Preemption       TierPreemption     `json:"tier3_preemption"`
	Tier4Constitutional   TierConstitutional `json:"tier4_constitutional"`
}

type LawReference struct {
	Category    string   `json:"category"`
	StatutesRaw []string `json:"statutes_raw"`
}

type UserProfile struct {
	DriverType     classify.DriverType     `json:"driver_type"`
	CDLStatus      classify.CDLStatus      `json:"cdl_status"`
	VehicleUse     string                  `json:"vehicle_use"`
	Scenario       classify.Scenario       `json:"scenario"`
	SuspectedBasis classify.SuspectedBasis `json:"suspected_basis"`
}

type Summary struct {
	UserFriendly string   `json:"user_friendly"`
	Technical    string   `json:"technical"`
	RiskFlags    []string `json:"risk_flags"`
}

// Result is the law audit artifact.
type Result struct {
	Jurisdiction intake.Jurisdiction `json:"jurisdiction"`
	LawReference LawReference        `json:"law_reference"`
	UserProfile  UserProfile         `json:"user_profile"`
	AuditChecks  Checks              `json:"audit_checks"`
	Summary      Summary             `json:"summary"`
}

// InferCategory maps the suspected basis plus statute text onto a law
// category. Suspected basis wins where it is decisive; otherwise the raw text
// is scanned for FMCSR adoption and implied consent signals.
func InferCategory(rec *intake.Record, cls *classify.Result) string {
	suspected := cls.SuspectedBasis
	text := rec.StatutesText()

	if suspected == classify.BasisLicensingOnly {
		return CategoryDriverLicensing
	}
	if suspected == classify.BasisRegistrationInsurance {
		if strings.Contains(text, "registr") {
			return CategoryVehicleRegistration
		}
		if strings.Contains(text, "insur") {
			return CategoryInsurance
		}
	}
	if suspected == classify.BasisImpairedDriving {
		return CategoryDWI
	}
	if suspected == classify.BasisCommercialCompliance {
		return CategoryCommercialTransport
	}

	if strings.Contains(text, "fmcsr") || strings.Contains(text, "390.") {
		return CategoryFMCSRAdoption
	}
	if strings.Contains(text, "implied consent") {
		return CategoryImpliedConsent
	}
	return CategoryOther
}

func commercialCategory(category string) bool {
	return category == CategoryFMCSRAdoption || category == CategoryCommercialTransport
}

// EvaluateTier1 checks federal alignment. Sources are the global anchors plus
// the category's own federal sources, in table order.
func EvaluateTier1(category string, table *rules.LawRules, cls *classify.Result) TierFederal {
	cat := table.Category(category)
	sources := append(append([]string{}, table.Federal.Anchors...), cat.FederalSources...)

	t := TierFederal{Status: Tier1Aligned, FederalSources: sources}

	switch {
	case commercialCategory(category) && cls.DriverType == classify.DriverPrivate:
		t.Status = Tier1UltraVires
		t.Notes = "FMCSRs and commercial transport rules are being applied to a private driver. This extends beyond the federal commercial scope in Title 49 and FMCSRs."
	case category == CategoryImpliedConsent && cls.DriverType == classify.DriverPrivate:
		t.Status = Tier1OverBroad
		t.Notes = "Implied consent doctrine is extended to a non-commercial driver without a clear federal or textual mandate."
	default:
		t.Notes = "No explicit federal statutory anchor found that justifies extending this framework to the classified driver type."
	}
	return t
}

// EvaluateTier2 checks commercial nexus against the category's requirement.
func EvaluateTier2(category string, table *rules.LawRules, cls *classify.Result, vehicleUse string) TierScope {
	cat := table.Category(category)
	required := cat.CommercialNexusRequired

	present := cls.DriverType == classify.DriverCommercialIntrastate ||
		cls.DriverType == classify.DriverCommercialInterstate ||
		vehicleUse == "intrastate_commercial" ||
		vehicleUse == "interstate_commercial"

	t := TierScope{
		CommercialNexusRequired: required,
		CommercialNexusPresent:  present,
		ScopeStatus:             ScopeWithin,
	}

	switch {
	case required && !present:
		t.ScopeStatus = ScopeBeyond
		t.Notes = "The ruleset being used assumes a commercial nexus, but the intake and classification show private, non-commercial use."
	case required && present:
		t.Notes = "Commercial nexus is present; analysis will hinge on correct FMCSR application."
	default:
		t.Notes = "No explicit commercial nexus requirement for this category; scope must still respect constitutional limits."
	}
	return t
}

// EvaluateTier3 applies the category-level preemption heuristic. The deeper
// doctrine-table preemption walk happens in the doctrine stage; this tier only
// covers the FMCSR-to-private-driver pattern.
func EvaluateTier3(category string, cls *classify.Result) TierPreemption {
	if commercialCategory(category) && cls.DriverType == classify.DriverPrivate {
		return TierPreemption{
			Status: PreemptionObstacle,
			Notes:  "State practice obstructs Congress's decision to limit FMCSRs and related funding conditions to commercial motor carriers.",
		}
	}
	return TierPreemption{
		Status: PreemptionNone,
		Notes:  "No immediate federal preemption conflict inferred from category and classification alone.",
	}
}

// EvaluateTier4 checks constitutional posture. Rights come from the rule
// table's rights mapping except for the licensing-only fallback, which has a
// fixed list.
func EvaluateTier4(category string, table *rules.LawRules, cls *classify.Result) TierConstitutional {
	t := TierConstitutional{Status: ConstTextAligned, RightsImplicated: []string{}}

	switch {
	case category == CategoryDriverLicensing && cls.DriverType == classify.DriverPrivate:
		t.Status = ConstVoidAbInitio
		t.RightsImplicated = append(t.RightsImplicated, table.RightsFor("driver_licensing_private")...)
		t.Notes = "Licensing private, non-commercial movement as a condition of basic travel exceeds delegated powers and burdens retained rights."
	case category == CategoryImpliedConsent && cls.DriverType == classify.DriverPrivate:
		t.Status = ConstRightsInfringing
		t.RightsImplicated = append(t.RightsImplicated, table.RightsFor("implied_consent_private")...)
		t.Notes = "Implied consent applied to non-commercial drivers raises serious Fourth, Fifth, Ninth, and Fourteenth Amendment concerns."
	case commercialCategory(category) && cls.DriverType == classify.DriverPrivate:
		t.Status = ConstOverReach
		t.Notes = "Importing commercial enforcement tools into private, non-commercial conduct suggests structural overreach."
	case cls.SuspectedBasis == classify.BasisLicensingOnly:
		t.Status = ConstOverReach
		t.RightsImplicated = append(t.RightsImplicated, "Ninth Amendment", "Tenth Amendment", "Fourteenth Amendment")
		t.Notes = "Licensing-only enforcement on a driver classified as exercising private movement indicates potential infringement on retained rights."
	default:
		t.Notes = "No immediate constitutional defect categorized at this tier, but detailed review may still reveal issues."
	}
	return t
}

// BuildSummary rolls the tier outcomes up into risk flags and a one-line
// user-facing sentence. Flag rules run in fixed order and accumulate.
func BuildSummary(jurisdiction intake.Jurisdiction, profile UserProfile, checks Checks) Summary {
	flags := []string{}

	if checks.Tier1FederalAlignment.Status == Tier1UltraVires {
		flags = append(flags, FlagUltraViresEnforcement)
	}
	if checks.Tier2ScopeAndNexus.CommercialNexusRequired && !checks.Tier2ScopeAndNexus.CommercialNexusPresent {
		flags = append(flags, FlagNoCommercialNexus, FlagPrivateInCommercial)
	}
	switch checks.Tier3Preemption.Status {
	case PreemptionExpress, PreemptionField, PreemptionConflict, PreemptionObstacle:
		flags = append(flags, FlagLikelyPreempted)
	}
	switch checks.Tier4Constitutional.Status {
	case ConstOverReach, ConstRightsInfringing, ConstVoidAbInitio:
		flags = append(flags, FlagConstitutionalViolation)
	}
	if checks.Tier4Constitutional.Status == ConstVoidAbInitio {
		flags = append(flags, FlagVoidAbInitioPattern)
	}

	humanize := func(s string) string { return strings.ReplaceAll(s, "_", " ") }
	uf := "You are classified as a " + string(profile.DriverType) + " driver in " + jurisdiction.State + ". " +
		"The laws or practices applied appear " + humanize(checks.Tier1FederalAlignment.Status) + " under federal scope, " +
		humanize(checks.Tier2ScopeAndNexus.ScopeStatus) + " on commercial nexus, " +
		"and " + humanize(checks.Tier4Constitutional.Status) + " at the constitutional level."

	technical, err := json.MarshalIndent(checks, "", "  ")
	if err != nil {
		technical = []byte("{}")
	}

	return Summary{UserFriendly: uf, Technical: string(technical), RiskFlags: flags}
}

// Audit runs the full four-tier evaluation. Pure given the loaded rule table.
func Audit(rec *intake.Record, cls *classify.Result, table *rules.LawRules) Result {
	category := InferCategory(rec, cls)

	profile := UserProfile{
		DriverType:     cls.DriverType,
		CDLStatus:      cls.CDLStatus,
		VehicleUse:     rec.DriverContext.VehicleUse,
		Scenario:       cls.Scenario,
		SuspectedBasis: cls.SuspectedBasis,
	}

	checks := Checks{
		Tier1FederalAlignment: EvaluateTier1(category, table, cls),
		Tier2ScopeAndNexus:    EvaluateTier2(category, table, cls, profile.VehicleUse),
		Tier3Preemption:       EvaluateTier3(category, cls),
		Tier4Constitutional:   EvaluateTier4(category, table, cls),
	}

	return Result{
		Jurisdiction: rec.Jurisdiction,
		LawReference: LawReference{Category: category, StatutesRaw: rec.RawStatutes()},
		UserProfile:  profile,
		AuditChecks:  checks,
		Summary:      BuildSummary(rec.Jurisdiction, profile, checks),
	}
}

// Service runs the law audit stage against the artifact store.
type Service struct {
	store  artifact.Store
	loader *rules.Loader
	logger *slog.Logger
}

func NewService(store artifact.Store, loader *rules.Loader, logger *slog.Logger) *Service {
	return &Service{store: store, loader: loader, logger: logger}
}

func (s *Service) Run(ctx context.Context, runID string) (*Result, error) {
	rec, err := artifact.Read[intake.Record](ctx, s.store, runID, artifact.KeyIntake)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no intake record for run", err)
	}
	rec.Normalize()

	cls, err := artifact.Read[classify.Result](ctx, s.store, runID, artifact.KeyClassification)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no classification for run", err)
	}

	table, err := s.loader.LawRules(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTableLoad, "law rules table unavailable", err)
	}

	result := Audit(&rec, &cls, table)

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyLawAudit, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist law audit", err)
	}
	return &result, nil
}
