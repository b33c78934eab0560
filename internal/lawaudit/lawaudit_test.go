package lawaudit

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/intake"
	"lexaudit/internal/platform/logger"
	"lexaudit/internal/rules"
	dErrors "lexaudit/pkg/domain-errors"
)

func lawRulesFixture() *rules.LawRules {
	table := &rules.LawRules{}
	table.Federal.Anchors = []string{"U.S. Const. art. I, § 8", "49 U.S.C. § 31136"}
	table.Categories = map[string]rules.CategoryRule{
		"driver_licensing":     {FederalSources: []string{"49 U.S.C. § 31301"}, CommercialNexusRequired: false},
		"commercial_transport": {FederalSources: []string{"49 C.F.R. Parts 350-399"}, CommercialNexusRequired: true},
		"fmcsr_adoption":       {FederalSources: []string{"49 C.F.R. § 390.3"}, CommercialNexusRequired: true},
		"implied_consent":      {FederalSources: []string{}, CommercialNexusRequired: false},
		"other":                {FederalSources: []string{}, CommercialNexusRequired: false},
	}
	table.Constitutional.RightsMapping = map[string][]string{
		"driver_licensing_private": {"Ninth Amendment", "Tenth Amendment", "Fourteenth Amendment"},
		"implied_consent_private":  {"Fourth Amendment", "Fifth Amendment"},
	}
	return table
}

func privateClassification(basis classify.SuspectedBasis) *classify.Result {
	return &classify.Result{
		DriverType:     classify.DriverPrivate,
		CDLStatus:      classify.CDLNone,
		Scenario:       classify.ScenarioRoutineStop,
		SuspectedBasis: basis,
		Flags:          []string{},
	}
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		name     string
		basis    classify.SuspectedBasis
		statutes string
		want     string
	}{
		{"licensing basis", classify.BasisLicensingOnly, "343.05 - license", CategoryDriverLicensing},
		{"registration text", classify.BasisRegistrationInsurance, "341.04 - Registration required", CategoryVehicleRegistration},
		{"insurance text", classify.BasisRegistrationInsurance, "344.62 - Insurance required", CategoryInsurance},
		{"impaired", classify.BasisImpairedDriving, "346.63 - OWI", CategoryDWI},
		{"commercial", classify.BasisCommercialCompliance, "FMCSR part 391", CategoryCommercialTransport},
		{"fmcsr fallback", classify.BasisUnknown, "adopting 390.3 by reference", CategoryFMCSRAdoption},
		{"implied consent fallback", classify.BasisUnknown, "343.305 implied consent", CategoryImpliedConsent},
		{"nothing matches", classify.BasisUnknown, "939.12 misc", CategoryOther},
		// registration_insurance basis with neither keyword falls through to text scans
		{"registration basis without keywords", classify.BasisRegistrationInsurance, "fmcsr adoption text", CategoryFMCSRAdoption},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := intake.Record{Statutes: intake.ParseStatutes(tc.statutes)}
			assert.Equal(t, tc.want, InferCategory(&rec, privateClassification(tc.basis)))
		})
	}
}

func TestEvaluateTier1(t *testing.T) {
	table := lawRulesFixture()

	t.Run("commercial category against private driver is ultra vires", func(t *testing.T) {
		got := EvaluateTier1(CategoryCommercialTransport, table, privateClassification(classify.BasisCommercialCompliance))
		assert.Equal(t, Tier1UltraVires, got.Status)
		assert.Contains(t, got.Notes, "private driver")
	})

	t.Run("implied consent against private driver is over broad", func(t *testing.T) {
		got := EvaluateTier1(CategoryImpliedConsent, table, privateClassification(classify.BasisUnknown))
		assert.Equal(t, Tier1OverBroad, got.Status)
	})

	t.Run("commercial driver stays aligned", func(t *testing.T) {
		cls := privateClassification(classify.BasisCommercialCompliance)
		cls.DriverType = classify.DriverCommercialInterstate
		got := EvaluateTier1(CategoryCommercialTransport, table, cls)
		assert.Equal(t, Tier1Aligned, got.Status)
	})

	t.Run("sources concatenate anchors then category sources", func(t *testing.T) {
		got := EvaluateTier1(CategoryFMCSRAdoption, table, privateClassification(classify.BasisUnknown))
		assert.Equal(t, []string{"U.S. Const. art. I, § 8", "49 U.S.C. § 31136", "49 C.F.R. § 390.3"}, got.FederalSources)
	})

	t.Run("unknown category falls back to other", func(t *testing.T) {
		got := EvaluateTier1("never_heard_of_it", table, privateClassification(classify.BasisUnknown))
		assert.Equal(t, Tier1Aligned, got.Status)
		assert.Equal(t, table.Federal.Anchors, got.FederalSources)
	})
}

func TestEvaluateTier2(t *testing.T) {
	table := lawRulesFixture()

	t.Run("nexus required but absent is beyond scope", func(t *testing.T) {
		got := EvaluateTier2(CategoryFMCSRAdoption, table, privateClassification(classify.BasisUnknown), "personal")
		assert.True(t, got.CommercialNexusRequired)
		assert.False(t, got.CommercialNexusPresent)
		assert.Equal(t, ScopeBeyond, got.ScopeStatus)
	})

	t.Run("nexus from driver type", func(t *testing.T) {
		cls := privateClassification(classify.BasisUnknown)
		cls.DriverType = classify.DriverCommercialIntrastate
		got := EvaluateTier2(CategoryCommercialTransport, table, cls, "personal")
		assert.True(t, got.CommercialNexusPresent)
		assert.Equal(t, ScopeWithin, got.ScopeStatus)
	})

	t.Run("nexus from vehicle use alone", func(t *testing.T) {
		got := EvaluateTier2(CategoryCommercialTransport, table, privateClassification(classify.BasisUnknown), "interstate_commercial")
		assert.True(t, got.CommercialNexusPresent)
	})

	t.Run("category without requirement is always within scope", func(t *testing.T) {
		got := EvaluateTier2(CategoryDriverLicensing, table, privateClassification(classify.BasisLicensingOnly), "personal")
		assert.False(t, got.CommercialNexusRequired)
		assert.Equal(t, ScopeWithin, got.ScopeStatus)
	})
}

func TestEvaluateTier3(t *testing.T) {
	t.Run("fmcsr against private driver is obstacle preempted", func(t *testing.T) {
		got := EvaluateTier3(CategoryFMCSRAdoption, privateClassification(classify.BasisUnknown))
		assert.Equal(t, PreemptionObstacle, got.Status)
	})

	t.Run("anything else has no issue", func(t *testing.T) {
		got := EvaluateTier3(CategoryDriverLicensing, privateClassification(classify.BasisLicensingOnly))
		assert.Equal(t, PreemptionNone, got.Status)

		cls := privateClassification(classify.BasisCommercialCompliance)
		cls.DriverType = classify.DriverCommercialInterstate
		got = EvaluateTier3(CategoryCommercialTransport, cls)
		assert.Equal(t, PreemptionNone, got.Status)
	})
}

func TestEvaluateTier4(t *testing.T) {
	table := lawRulesFixture()

	t.Run("licensing of private driver is void ab initio with mapped rights", func(t *testing.T) {
		got := EvaluateTier4(CategoryDriverLicensing, table, privateClassification(classify.BasisLicensingOnly))
		assert.Equal(t, ConstVoidAbInitio, got.Status)
		assert.Equal(t, []string{"Ninth Amendment", "Tenth Amendment", "Fourteenth Amendment"}, got.RightsImplicated)
	})

	t.Run("implied consent on private driver infringes rights", func(t *testing.T) {
		got := EvaluateTier4(CategoryImpliedConsent, table, privateClassification(classify.BasisUnknown))
		assert.Equal(t, ConstRightsInfringing, got.Status)
		assert.Equal(t, []string{"Fourth Amendment", "Fifth Amendment"}, got.RightsImplicated)
	})

	t.Run("commercial framework on private driver is over reach without rights", func(t *testing.T) {
		got := EvaluateTier4(CategoryCommercialTransport, table, privateClassification(classify.BasisCommercialCompliance))
		assert.Equal(t, ConstOverReach, got.Status)
		assert.Empty(t, got.RightsImplicated)
	})

	t.Run("licensing-only basis fallback uses fixed rights list", func(t *testing.T) {
		cls := privateClassification(classify.BasisLicensingOnly)
		got := EvaluateTier4(CategoryOther, table, cls)
		assert.Equal(t, ConstOverReach, got.Status)
		assert.Equal(t, []string{"Ninth Amendment", "Tenth Amendment", "Fourteenth Amendment"}, got.RightsImplicated)
	})

	t.Run("default is text aligned", func(t *testing.T) {
		got := EvaluateTier4(CategoryOther, table, privateClassification(classify.BasisUnknown))
		assert.Equal(t, ConstTextAligned, got.Status)
		assert.Empty(t, got.RightsImplicated)
	})
}

func TestBuildSummary(t *testing.T) {
	jurisdiction := intake.Jurisdiction{Country: "United States", State: "Wisconsin"}
	profile := UserProfile{DriverType: classify.DriverPrivate}

	t.Run("worst case accumulates every flag in order", func(t *testing.T) {
		checks := Checks{
			Tier1FederalAlignment: TierFederal{Status: Tier1UltraVires},
			Tier2ScopeAndNexus:    TierScope{CommercialNexusRequired: true, CommercialNexusPresent: false, ScopeStatus: ScopeBeyond},
			Tier3Preemption:       TierPreemption{Status: PreemptionObstacle},
			Tier4Constitutional:   TierConstitutional{Status: ConstVoidAbInitio},
		}
		got := BuildSummary(jurisdiction, profile, checks)
		assert.Equal(t, []string{
			FlagUltraViresEnforcement,
			FlagNoCommercialNexus,
			FlagPrivateInCommercial,
			FlagLikelyPreempted,
			FlagConstitutionalViolation,
			FlagVoidAbInitioPattern,
		}, got.RiskFlags)
	})

	t.Run("clean case has no flags and readable sentence", func(t *testing.T) {
		checks := Checks{
			Tier1FederalAlignment: TierFederal{Status: Tier1Aligned},
			Tier2ScopeAndNexus:    TierScope{ScopeStatus: ScopeWithin},
			Tier3Preemption:       TierPreemption{Status: PreemptionNone},
			Tier4Constitutional:   TierConstitutional{Status: ConstTextAligned},
		}
		got := BuildSummary(jurisdiction, profile, checks)
		assert.Empty(t, got.RiskFlags)
		assert.Contains(t, got.UserFriendly, "private driver in Wisconsin")
		assert.Contains(t, got.UserFriendly, "within scope")
		assert.Contains(t, got.UserFriendly, "text aligned")
		assert.Contains(t, got.Technical, "tier1_federal_alignment")
	})
}

func TestAudit_EndToEnd(t *testing.T) {
	table := lawRulesFixture()
	rec := intake.Record{
		Jurisdiction: intake.Jurisdiction{Country: "United States", State: "Wisconsin"},
		Statutes:     intake.ParseStatutes("343.05 - Operating without a license"),
	}
	rec.Normalize()
	cls := classify.FromIntake(&rec)

	got := Audit(&rec, &cls, table)

	assert.Equal(t, CategoryDriverLicensing, got.LawReference.Category)
	assert.Equal(t, []string{"343.05 - Operating without a license"}, got.LawReference.StatutesRaw)
	assert.Equal(t, ConstVoidAbInitio, got.AuditChecks.Tier4Constitutional.Status)
	assert.Contains(t, got.Summary.RiskFlags, FlagVoidAbInitioPattern)
	assert.Equal(t, "personal", got.UserProfile.VehicleUse)
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()
	log := logger.New()

	tablesFS := fstest.MapFS{
		"law_rules.json": &fstest.MapFile{Data: []byte(`{
			"federal": {"anchors": ["49 U.S.C. § 31136"]},
			"categories": {
				"driver_licensing": {"federal_sources": [], "commercial_nexus_required": false},
				"other": {"federal_sources": [], "commercial_nexus_required": false}
			},
			"constitutional": {"rights_mapping": {"driver_licensing_private": ["Ninth Amendment"]}}
		}`)},
	}
	loader := rules.NewLoader(tablesFS)

	seed := func(t *testing.T, store artifact.Store, runID string) {
		rec := intake.Record{Statutes: intake.ParseStatutes("343.05 - license")}
		rec.Normalize()
		require.NoError(t, artifact.Write(ctx, store, runID, artifact.KeyIntake, rec))
		cls := classify.FromIntake(&rec)
		require.NoError(t, artifact.Write(ctx, store, runID, artifact.KeyClassification, cls))
	}

	t.Run("audits and persists", func(t *testing.T) {
		store := artifact.NewInMemoryStore()
		seed(t, store, "run-1")

		svc := NewService(store, loader, log)
		result, err := svc.Run(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, CategoryDriverLicensing, result.LawReference.Category)

		stored, err := artifact.Read[Result](ctx, store, "run-1", artifact.KeyLawAudit)
		require.NoError(t, err)
		assert.Equal(t, *result, stored)
	})

	t.Run("missing classification is a missing prerequisite", func(t *testing.T) {
		store := artifact.NewInMemoryStore()
		rec := intake.Record{}
		rec.Normalize()
		require.NoError(t, artifact.Write(ctx, store, "run-2", artifact.KeyIntake, rec))

		svc := NewService(store, loader, log)
		_, err := svc.Run(ctx, "run-2")
		assert.Equal(t, dErrors.CodeMissingPrerequisite, dErrors.CodeOf(err))
	})

	t.Run("unloadable table is a table load error", func(t *testing.T) {
		store := artifact.NewInMemoryStore()
		seed(t, store, "run-3")

		svc := NewService(store, rules.NewLoader(fstest.MapFS{}), log)
		_, err := svc.Run(ctx, "run-3")
		assert.Equal(t, dErrors.CodeTableLoad, dErrors.CodeOf(err))
	})
}
