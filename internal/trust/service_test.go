package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"match-gateway/internal/search"
	dErrors "match-gateway/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	ctx      context.Context
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = NewRegistry(NewEngineStore(search.NewMemory()))
}

func (s *RegistrySuite) TestAddGeneratesKeyAndDefaultsLabel() {
	entry, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: DirectionIn})
	s.Require().NoError(err)

	s.Equal("beacon", entry.Label)
	s.Len(entry.Key, 60, "generated keys are 30 random bytes hex encoded")
}

func (s *RegistrySuite) TestAddRejectsInvalidDirection() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: "sideways"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConfig, dErrors.CodeOf(err))
}

func (s *RegistrySuite) TestAddOutgoingRequiresHTTPS() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: DirectionOut})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConfig, dErrors.CodeOf(err))

	_, err = s.registry.Add(s.ctx, AddParams{
		ServerID:  "beacon",
		Direction: DirectionOut,
		BaseURL:   "http://beacon.example.org",
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConfig, dErrors.CodeOf(err))

	entry, err := s.registry.Add(s.ctx, AddParams{
		ServerID:  "beacon",
		Direction: DirectionOut,
		BaseURL:   "https://beacon.example.org",
	})
	s.Require().NoError(err)
	s.Equal("https://beacon.example.org", entry.BaseURL)
}

func (s *RegistrySuite) TestAddSamePairUpdatesInPlace() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: DirectionIn, Key: "k1"})
	s.Require().NoError(err)
	_, err = s.registry.Add(s.ctx, AddParams{
		ServerID: "beacon", Direction: DirectionIn, Key: "k2", Label: "Beacon Network",
	})
	s.Require().NoError(err)

	entries, err := s.registry.List(s.ctx, DirectionIn)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("k2", entries[0].Key)
	s.Equal("Beacon Network", entries[0].Label)
}

func (s *RegistrySuite) TestDirectionsAreIndependent() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: DirectionIn, Key: "in-key"})
	s.Require().NoError(err)
	_, err = s.registry.Add(s.ctx, AddParams{
		ServerID: "beacon", Direction: DirectionOut, Key: "out-key",
		BaseURL: "https://beacon.example.org",
	})
	s.Require().NoError(err)

	all, err := s.registry.List(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *RegistrySuite) TestDuplicateInboundKeyRejected() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "alpha", Direction: DirectionIn, Key: "shared"})
	s.Require().NoError(err)

	_, err = s.registry.Add(s.ctx, AddParams{ServerID: "beta", Direction: DirectionIn, Key: "shared"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConfig, dErrors.CodeOf(err))

	// Re-adding the holder itself with the same key is an update, not a
	// collision.
	_, err = s.registry.Add(s.ctx, AddParams{ServerID: "alpha", Direction: DirectionIn, Key: "shared"})
	s.NoError(err)
}

func (s *RegistrySuite) TestVerifyToken() {
	_, err := s.registry.Add(s.ctx, AddParams{
		ServerID: "beacon", Label: "Beacon Network", Direction: DirectionIn, Key: "secret",
	})
	s.Require().NoError(err)
	_, err = s.registry.Add(s.ctx, AddParams{
		ServerID: "phenome", Direction: DirectionOut, Key: "out-secret",
		BaseURL: "https://phenome.example.org",
	})
	s.Require().NoError(err)

	s.Run("known token", func() {
		identity, err := s.registry.VerifyToken(s.ctx, "secret")
		s.Require().NoError(err)
		s.Require().NotNil(identity)
		s.Equal("beacon", identity.ServerID)
		s.Equal("Beacon Network", identity.Label)
	})

	s.Run("empty token", func() {
		identity, err := s.registry.VerifyToken(s.ctx, "")
		s.NoError(err)
		s.Nil(identity)
	})

	s.Run("unknown token", func() {
		identity, err := s.registry.VerifyToken(s.ctx, "nope")
		s.NoError(err)
		s.Nil(identity)
	})

	s.Run("outgoing keys do not authenticate inbound requests", func() {
		identity, err := s.registry.VerifyToken(s.ctx, "out-secret")
		s.NoError(err)
		s.Nil(identity)
	})
}

func (s *RegistrySuite) TestRemove() {
	_, err := s.registry.Add(s.ctx, AddParams{ServerID: "beacon", Direction: DirectionIn, Key: "in-key"})
	s.Require().NoError(err)
	_, err = s.registry.Add(s.ctx, AddParams{
		ServerID: "beacon", Direction: DirectionOut, Key: "out-key",
		BaseURL: "https://beacon.example.org",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.registry.Remove(s.ctx, "beacon", DirectionIn))
	entries, err := s.registry.List(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(DirectionOut, entries[0].Direction)

	// Empty direction removes whatever is left in both directions.
	s.Require().NoError(s.registry.Remove(s.ctx, "beacon", ""))
	entries, err = s.registry.List(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(entries)

	s.NoError(s.registry.Remove(s.ctx, "ghost", ""), "removing an unknown server is a no-op")
}
