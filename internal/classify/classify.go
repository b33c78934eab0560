// Package classify turns a raw intake record into a normalized
// classification: driver type, scenario, suspected statutory basis, and
// advisory flags. Every input field has a defined default, so classification
// has no error states of its own.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lexaudit/internal/artifact"
	"lexaudit/internal/intake"
	dErrors "lexaudit/pkg/domain-errors"
)

type DriverType string

const (
	DriverPrivate              DriverType = "private"
	DriverCommercialIntrastate DriverType = "commercial_intrastate"
	DriverCommercialInterstate DriverType = "commercial_interstate"
)

type CDLStatus string

const (
	CDLHeld CDLStatus = "has_cdl"
	CDLNone CDLStatus = "none"
)

type Scenario string

const (
	ScenarioRoutineStop  Scenario = "routine_stop"
	ScenarioCheckpoint   Scenario = "checkpoint"
	ScenarioHearing      Scenario = "hearing"
	ScenarioCriminalCase Scenario = "criminal_case"
	ScenarioCivilCase    Scenario = "civil_case"
)

type SuspectedBasis string

const (
	BasisLicensingOnly         SuspectedBasis = "licensing_only"
	BasisImpairedDriving       SuspectedBasis = "impaired_driving"
	BasisRegistrationInsurance SuspectedBasis = "registration_insurance"
	BasisCommercialCompliance  SuspectedBasis = "commercial_compliance"
	BasisUnknown               SuspectedBasis = "unknown"
)

// Advisory flags emitted by the fixed rule list.
const (
	FlagPrivateDriverCommercialFramework = "private_driver_in_commercial_framework"
	FlagPossibleFMCSRMisapplication      = "possible_fmcsr_misapplication"
	FlagCDLHolderPrivateUse              = "cdl_holder_private_use"
	FlagHighValueConstitutionalIssue     = "high_value_constitutional_issue"
)

// Result is the classification artifact.
type Result struct {
	DriverType            DriverType     `json:"driver_type"`
	CDLStatus             CDLStatus      `json:"cdl_status"`
	Scenario              Scenario       `json:"scenario"`
	SuspectedBasis        SuspectedBasis `json:"suspected_basis"`
	Flags                 []string       `json:"flags"`
	SourceIntakeCreatedAt time.Time      `json:"source_intake_created_at"`
}

// FromIntake derives the classification. Pure domain logic - no I/O, no side
// effects.
func FromIntake(rec *intake.Record) Result {
	driverType := classifyDriver(rec.DriverContext.VehicleUse)

	cdlStatus := CDLNone
	if rec.DriverContext.HasCDL {
		cdlStatus = CDLHeld
	}

	scenario := classifyScenario(rec.Event.Type)
	suspected := classifyBasis(rec.StatutesText())

	return Result{
		DriverType:            driverType,
		CDLStatus:             cdlStatus,
		Scenario:              scenario,
		SuspectedBasis:        suspected,
		Flags:                 adviseFlags(driverType, cdlStatus, suspected),
		SourceIntakeCreatedAt: rec.CreatedAt,
	}
}

func classifyDriver(vehicleUse string) DriverType {
	switch vehicleUse {
	case "intrastate_commercial":
		return DriverCommercialIntrastate
	case "interstate_commercial":
		return DriverCommercialInterstate
	default:
		return DriverPrivate
	}
}

func classifyScenario(eventType string) Scenario {
	switch eventType {
	case "checkpoint":
		return ScenarioCheckpoint
	case "hearing":
		return ScenarioHearing
	case "criminal_case":
		return ScenarioCriminalCase
	case "civil_case":
		return ScenarioCivilCase
	default:
		return ScenarioRoutineStop
	}
}

// classifyBasis scans the lower-cased statute text with a first-match-wins
// keyword list. Priority: licensing > impaired driving > registration or
// insurance > commercial compliance > unknown.
func classifyBasis(statutesText string) SuspectedBasis {
	contains := func(kw string) bool { return strings.Contains(statutesText, kw) }

	switch {
	case contains("license") || contains("licens"):
		return BasisLicensingOnly
	case contains("owi") || contains("dwi") || contains("dui") || contains("intoxicat"):
		return BasisImpairedDriving
	case contains("registration") || contains("insurance"):
		return BasisRegistrationInsurance
	case contains("commercial") || contains("fmcsr") || contains("motor carrier"):
		return BasisCommercialCompliance
	default:
		return BasisUnknown
	}
}

// adviseFlags runs the fixed flag rule list. Flags accumulate: every
// matching rule fires, not just the first.
func adviseFlags(driverType DriverType, cdlStatus CDLStatus, suspected SuspectedBasis) []string {
	flags := []string{}

	if driverType == DriverPrivate && suspected == BasisCommercialCompliance {
		flags = append(flags, FlagPrivateDriverCommercialFramework, FlagPossibleFMCSRMisapplication)
	}
	if cdlStatus == CDLHeld && driverType == DriverPrivate {
		flags = append(flags, FlagCDLHolderPrivateUse)
	}
	// Licensing-only enforcement flags regardless of driver type.
	if suspected == BasisLicensingOnly {
		flags = append(flags, FlagHighValueConstitutionalIssue)
	}

	return flags
}

// Service runs the classification stage against the artifact store.
type Service struct {
	store  artifact.Store
	logger *slog.Logger
}

func NewService(store artifact.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Run reads the intake artifact, classifies it, and persists the result.
func (s *Service) Run(ctx context.Context, runID string) (*Result, error) {
	rec, err := artifact.Read[intake.Record](ctx, s.store, runID, artifact.KeyIntake)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMissingPrerequisite, "no intake record for run", err)
	}
	rec.Normalize()

	result := FromIntake(&rec)

	if err := artifact.Write(ctx, s.store, runID, artifact.KeyClassification, result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist classification", err)
	}
	return &result, nil
}
