package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Loader reads rule tables from a directory. Tables within one load are
// independent reads, so they are fetched concurrently; the load does not
// return until all required tables have resolved.
type Loader struct {
	fsys fs.FS
}

// NewLoader builds a loader over the given filesystem (os.DirFS in
// production, fstest.MapFS in tests).
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

func loadJSON[T any](fsys fs.FS, name string) (*T, error) {
	payload, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

// LawRules loads the law-audit category table. Required.
func (l *Loader) LawRules(_ context.Context) (*LawRules, error) {
	return loadJSON[LawRules](l.fsys, "law_rules.json")
}

// Programs loads the funding program table. Required.
func (l *Loader) Programs(_ context.Context) (*ProgramsConfig, error) {
	return loadJSON[ProgramsConfig](l.fsys, "programs.json")
}

// ValidityMap loads the validity applicability rules. Required.
func (l *Loader) ValidityMap(_ context.Context) (*ValidityMap, error) {
	return loadJSON[ValidityMap](l.fsys, "validity_map.json")
}

// DoctrineTables bundles everything the doctrine stage consumes.
type DoctrineTables struct {
	Map              *DoctrineMap
	FederalDoctrines map[string]Doctrine
	PreemptionRules  []PreemptionRule
	RightsTests      []RightsTest
	// StateMap is nil when no per-state table exists for the jurisdiction.
	StateMap *StateMap
}

// Doctrine resolves a doctrine id from the federal table, falling back to
// the doctrine map.
func (t *DoctrineTables) Doctrine(id string) (Doctrine, bool) {
	if d, ok := t.FederalDoctrines[id]; ok {
		return d, true
	}
	if t.Map != nil {
		if d, ok := t.Map.Doctrines[id]; ok {
			return d, true
		}
	}
	return Doctrine{}, false
}

// DoctrineTables loads the doctrine stage's tables concurrently. The
// per-state statute map is optional: a failed load leaves StateMap nil and
// the stage simply skips statute-linked enrichment.
func (l *Loader) DoctrineTables(ctx context.Context, stateCode string) (*DoctrineTables, error) {
	tables := &DoctrineTables{}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := loadJSON[DoctrineMap](l.fsys, "doctrine_map.json")
		if err != nil {
			return err
		}
		tables.Map = m
		return nil
	})
	g.Go(func() error {
		var fed struct {
			Doctrines []Doctrine `json:"doctrines"`
		}
		payload, err := fs.ReadFile(l.fsys, "federal_doctrines.json")
		if err != nil {
			return fmt.Errorf("load federal_doctrines.json: %w", err)
		}
		if err := json.Unmarshal(payload, &fed); err != nil {
			return fmt.Errorf("parse federal_doctrines.json: %w", err)
		}
		index := make(map[string]Doctrine, len(fed.Doctrines))
		for _, d := range fed.Doctrines {
			index[d.ID] = d
		}
		tables.FederalDoctrines = index
		return nil
	})
	g.Go(func() error {
		var wrapper struct {
			Rules []PreemptionRule `json:"rules"`
		}
		payload, err := fs.ReadFile(l.fsys, "preemption_rules.json")
		if err != nil {
			return fmt.Errorf("load preemption_rules.json: %w", err)
		}
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return fmt.Errorf("parse preemption_rules.json: %w", err)
		}
		tables.PreemptionRules = wrapper.Rules
		return nil
	})
	g.Go(func() error {
		var wrapper struct {
			Tests []RightsTest `json:"tests"`
		}
		payload, err := fs.ReadFile(l.fsys, "rights_tests.json")
		if err != nil {
			return fmt.Errorf("load rights_tests.json: %w", err)
		}
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return fmt.Errorf("parse rights_tests.json: %w", err)
		}
		tables.RightsTests = wrapper.Tests
		return nil
	})
	g.Go(func() error {
		if stateCode == "" {
			return nil
		}
		name := "state_map_" + strings.ToUpper(stateCode) + ".json"
		m, err := loadJSON[StateMap](l.fsys, name)
		if err != nil {
			// Optional table: degrade to nil, never fail the load.
			return nil
		}
		tables.StateMap = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
