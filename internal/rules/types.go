// Package rules loads the static JSON rule tables the pipeline consumes.
// Table content is opaque configuration; only the shapes are owned here.
package rules

// LawRules drives the law-audit stage: federal anchors, per-category
// requirements, and the constitutional rights mapping.
type LawRules struct {
	Federal struct {
		Anchors []string `json:"anchors"`
	} `json:"federal"`
	Categories     map[string]CategoryRule `json:"categories"`
	Constitutional struct {
		RightsMapping map[string][]string `json:"rights_mapping"`
	} `json:"constitutional"`
}

// CategoryRule describes one law category's audit inputs.
type CategoryRule struct {
	FederalSources          []string `json:"federal_sources"`
	CommercialNexusRequired bool     `json:"commercial_nexus_required"`
}

// Category returns the named category rule, falling back to "other".
func (r *LawRules) Category(name string) CategoryRule {
	if cat, ok := r.Categories[name]; ok {
		return cat
	}
	return r.Categories["other"]
}

// RightsFor returns the rights list mapped for the given key, or nil.
func (r *LawRules) RightsFor(key string) []string {
	return r.Constitutional.RightsMapping[key]
}

// FundingProgram is one federal funding program candidates are drawn from.
type FundingProgram struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Notes string `json:"notes"`
}

// ProgramsConfig maps law categories to candidate funding programs.
type ProgramsConfig struct {
	Programs           []FundingProgram    `json:"programs"`
	CategoryToPrograms map[string][]string `json:"category_to_programs"`
}

// Select resolves the programs for a category, falling back to "other".
// Unknown program ids are silently dropped; order follows the id list.
func (c *ProgramsConfig) Select(category string) []FundingProgram {
	ids, ok := c.CategoryToPrograms[category]
	if !ok {
		ids = c.CategoryToPrograms["other"]
	}
	byID := make(map[string]FundingProgram, len(c.Programs))
	for _, p := range c.Programs {
		byID[p.ID] = p
	}
	selected := []FundingProgram{}
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			selected = append(selected, p)
		}
	}
	return selected
}

// Doctrine is a named legal principle rules can apply or implicate.
type Doctrine struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ApplicabilityRule adds doctrine codes when its condition matches the
// run context. Used by the doctrine stage.
type ApplicabilityRule struct {
	Condition     string   `json:"condition"`
	AddApplied    []string `json:"add_applied"`
	AddImplicated []string `json:"add_implicated"`
}

// DoctrineMap is the doctrine stage's rule table.
type DoctrineMap struct {
	Doctrines map[string]Doctrine `json:"doctrines"`
	Rules     []ApplicabilityRule `json:"rules"`
}

// Label resolves a doctrine code to its label, falling back to the code.
func (m *DoctrineMap) Label(code string) string {
	if d, ok := m.Doctrines[code]; ok && d.Label != "" {
		return d.Label
	}
	return code
}

// ValidityRule adds grounds and constitutional hooks when its condition
// matches. Distinct rule set from the doctrine map.
type ValidityRule struct {
	Condition  string   `json:"condition"`
	AddGrounds []string `json:"add_grounds"`
	AddHooks   []string `json:"add_hooks"`
}

// ValidityMap is the validity stage's rule table.
type ValidityMap struct {
	Rules               []ValidityRule    `json:"rules"`
	ConstitutionalHooks map[string]string `json:"constitutional_hooks"`
	GroundsLabels       map[string]string `json:"grounds_labels"`
}

// HookLabel resolves a hook code to its label, falling back to the code.
func (m *ValidityMap) HookLabel(code string) string {
	if label, ok := m.ConstitutionalHooks[code]; ok {
		return label
	}
	return code
}

// GroundLabel resolves a ground code to its label, falling back to the code.
func (m *ValidityMap) GroundLabel(code string) string {
	if label, ok := m.GroundsLabels[code]; ok {
		return label
	}
	return code
}

// PreemptionTriggers filter which audit contexts a preemption rule fires on.
// Every present trigger must pass; absent triggers match anything.
type PreemptionTriggers struct {
	CaseType           []string `json:"case_type"`
	MovementScope      []string `json:"movement_scope"`
	KeywordsInLawBlock []string `json:"keywords_in_law_block"`
	FundingProgramIDs  []string `json:"funding_program_ids"`
	SeverityMin        string   `json:"severity_min"`
}

// PreemptionRule attaches doctrines to scenarios matching its triggers.
type PreemptionRule struct {
	ID           string             `json:"id"`
	Description  string             `json:"description"`
	Triggers     PreemptionTriggers `json:"triggers"`
	DoctrineRefs []string           `json:"doctrine_refs"`
}

// RightsTest links a statute risk flag to its doctrinal basis.
type RightsTest struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	DoctrineRefs []string `json:"doctrine_refs"`
}

// StateStatute is one entry of an optional per-state statute map.
type StateStatute struct {
	Citation  string   `json:"citation"`
	RiskFlags []string `json:"risk_flags"`
}

// StateMap is the optional per-state statute table. Absence degrades
// gracefully rather than failing the run.
type StateMap struct {
	Statutes []StateStatute `json:"statutes"`
}
