package artifact

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lexaudit/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	runID string
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.runID = uuid.NewString()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) TestSaveAndFind() {
	s.Run("round-trips a payload", func() {
		s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyClassification, []byte(`{"driver_type":"private"}`)))

		payload, err := s.store.Find(s.ctx, s.runID, KeyClassification)
		s.Require().NoError(err)
		s.JSONEq(`{"driver_type":"private"}`, string(payload))
	})

	s.Run("returns ErrNotFound for an unwritten key", func() {
		_, err := s.store.Find(s.ctx, s.runID, KeyValidity)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("runs are isolated", func() {
		s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyScorecard, []byte(`{}`)))
		_, err := s.store.Find(s.ctx, uuid.NewString(), KeyScorecard)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestSaveReplacesWholesale() {
	s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyLawAudit, []byte(`{"v":1}`)))
	s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyLawAudit, []byte(`{"v":2}`)))

	payload, err := s.store.Find(s.ctx, s.runID, KeyLawAudit)
	s.Require().NoError(err)
	s.JSONEq(`{"v":2}`, string(payload))
}

func (s *MemoryStoreSuite) TestTypedReadTreatsMalformedAsMissing() {
	s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyDoctrine, []byte(`{not json`)))

	type doc struct {
		LawCategory string `json:"law_category"`
	}
	_, err := Read[doc](s.ctx, s.store, s.runID, KeyDoctrine)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestFindReturnsCopy() {
	s.Require().NoError(s.store.Save(s.ctx, s.runID, KeyIntake, []byte(`{"a":1}`)))

	payload, err := s.store.Find(s.ctx, s.runID, KeyIntake)
	s.Require().NoError(err)
	payload[0] = 'X'

	again, err := s.store.Find(s.ctx, s.runID, KeyIntake)
	s.Require().NoError(err)
	s.JSONEq(`{"a":1}`, string(again))
}
