//go:build integration

package artifact_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lexaudit/internal/artifact"
	"lexaudit/pkg/platform/sentinel"
	"lexaudit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *artifact.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = artifact.NewPostgresStore(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "artifacts"))
}

func (s *PostgresStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	runID := uuid.NewString()

	s.Require().NoError(s.store.Save(ctx, runID, artifact.KeyClassification, []byte(`{"driver_type":"private"}`)))

	payload, err := s.store.Find(ctx, runID, artifact.KeyClassification)
	s.Require().NoError(err)
	s.JSONEq(`{"driver_type":"private"}`, string(payload))

	_, err = s.store.Find(ctx, runID, artifact.KeyValidity)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertLastWriteWins() {
	ctx := context.Background()
	runID := uuid.NewString()

	s.Require().NoError(s.store.Save(ctx, runID, artifact.KeyScorecard, []byte(`{"divergence_score":25}`)))
	s.Require().NoError(s.store.Save(ctx, runID, artifact.KeyScorecard, []byte(`{"divergence_score":40}`)))

	payload, err := s.store.Find(ctx, runID, artifact.KeyScorecard)
	s.Require().NoError(err)
	s.JSONEq(`{"divergence_score":40}`, string(payload))
}
