// Package artifact is the shared key-value store for pipeline artifacts.
// Each stage is the sole writer of its own key within a run; readers treat a
// missing key as "stage not yet run" and a malformed value as missing.
package artifact

import (
	"context"
	"encoding/json"

	"lexaudit/pkg/platform/sentinel"
)

// Key names one artifact slot per run.
type Key string

const (
	KeyIntake         Key = "intake"
	KeyClassification Key = "classification"
	KeyLawAudit       Key = "law_audit"
	KeyFundingAudit   Key = "funding_audit"
	KeyDoctrine       Key = "doctrine"
	KeyScorecard      Key = "scorecard"
	KeyValidity       Key = "validity"
)

// Store persists serialized artifacts. Implementations are interface-driven
// so the pipeline can run against in-memory, Redis, or Postgres persistence
// without rewiring business code. Save replaces any prior value wholesale;
// last write wins, no locking.
type Store interface {
	Save(ctx context.Context, runID string, key Key, payload []byte) error
	Find(ctx context.Context, runID string, key Key) ([]byte, error)
}

// Write marshals v and stores it under (runID, key).
func Write(ctx context.Context, s Store, runID string, key Key, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(ctx, runID, key, payload)
}

// Read fetches and unmarshals the artifact under (runID, key). A malformed
// stored value reports sentinel.ErrNotFound, the same as a missing key, so
// readers never have to distinguish the two.
func Read[T any](ctx context.Context, s Store, runID string, key Key) (T, error) {
	var v T
	payload, err := s.Find(ctx, runID, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, sentinel.ErrNotFound
	}
	return v, nil
}
