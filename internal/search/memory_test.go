package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MemoryEngineSuite struct {
	suite.Suite
	ctx    context.Context
	engine *MemoryEngine
}

func TestMemoryEngineSuite(t *testing.T) {
	suite.Run(t, new(MemoryEngineSuite))
}

func (s *MemoryEngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.engine = NewMemory()
}

func (s *MemoryEngineSuite) seed(index, id string, keywords map[string][]string) {
	s.T().Helper()
	err := s.engine.Upsert(s.ctx, index, id, Document{
		Keywords: keywords,
		Source:   json.RawMessage(`{"id":"` + id + `"}`),
	})
	s.Require().NoError(err)
}

func (s *MemoryEngineSuite) TestIndexLifecycle() {
	ok, err := s.engine.Exists(s.ctx, "patients")
	s.NoError(err)
	s.False(ok)

	// Upsert creates the index on first use.
	s.seed("patients", "p1", map[string][]string{"gene": {"ENSG00000000001"}})

	ok, err = s.engine.Exists(s.ctx, "patients")
	s.NoError(err)
	s.True(ok)

	n, err := s.engine.Count(s.ctx, "patients")
	s.NoError(err)
	s.EqualValues(1, n)
}

func (s *MemoryEngineSuite) TestUpsertReplacesByID() {
	s.seed("patients", "p1", map[string][]string{"gene": {"A"}})
	s.seed("patients", "p1", map[string][]string{"gene": {"B"}})

	n, err := s.engine.Count(s.ctx, "patients")
	s.NoError(err)
	s.EqualValues(1, n)

	hits, err := s.engine.Search(s.ctx, "patients", Query{Should: []Term{{Field: "gene", Value: "A"}}}, 10)
	s.NoError(err)
	s.Empty(hits, "replaced document must not match its old terms")

	hits, err = s.engine.Search(s.ctx, "patients", Query{Should: []Term{{Field: "gene", Value: "B"}}}, 10)
	s.NoError(err)
	s.Len(hits, 1)
}

func (s *MemoryEngineSuite) TestShouldScoringOrders() {
	s.seed("patients", "one-term", map[string][]string{"phenotype": {"HP:1"}})
	s.seed("patients", "two-terms", map[string][]string{"phenotype": {"HP:1", "HP:2"}})
	s.seed("patients", "unrelated", map[string][]string{"phenotype": {"HP:9"}})

	q := Query{Should: []Term{
		{Field: "phenotype", Value: "HP:1"},
		{Field: "phenotype", Value: "HP:2"},
	}}
	hits, err := s.engine.Search(s.ctx, "patients", q, 10)
	s.Require().NoError(err)
	s.Require().Len(hits, 2, "a doc matching no should clause is excluded")
	s.Equal("two-terms", hits[0].ID)
	s.Equal("one-term", hits[1].ID)
	s.Greater(hits[0].Score, hits[1].Score)
}

func (s *MemoryEngineSuite) TestFiltersAreExactAndUnscored() {
	s.seed("servers", "a", map[string][]string{
		"server_id": {"alpha"}, "direction": {"in"}, "server_key": {"k1"},
	})
	s.seed("servers", "b", map[string][]string{
		"server_id": {"alpha"}, "direction": {"out"}, "server_key": {"k2"},
	})

	hits, err := s.engine.Search(s.ctx, "servers", Query{Filter: []Term{
		{Field: "server_id", Value: "alpha"},
		{Field: "direction", Value: "in"},
	}}, 0)
	s.Require().NoError(err)
	s.Require().Len(hits, 1)
	s.Equal("a", hits[0].ID)
	s.Zero(hits[0].Score)

	// Filters are case-sensitive exact matches.
	hits, err = s.engine.Search(s.ctx, "servers", Query{Filter: []Term{
		{Field: "server_key", Value: "K1"},
	}}, 0)
	s.NoError(err)
	s.Empty(hits)
}

func (s *MemoryEngineSuite) TestSearchUnknownIndexIsEmpty() {
	hits, err := s.engine.Search(s.ctx, "nope", Query{Should: []Term{{Field: "f", Value: "v"}}}, 10)
	s.NoError(err)
	s.Empty(hits)
}

func (s *MemoryEngineSuite) TestLimit() {
	for _, id := range []string{"a", "b", "c"} {
		s.seed("patients", id, map[string][]string{"gene": {"G"}})
	}
	hits, err := s.engine.Search(s.ctx, "patients", Query{Should: []Term{{Field: "gene", Value: "G"}}}, 2)
	s.NoError(err)
	s.Len(hits, 2)
}

func (s *MemoryEngineSuite) TestDelete() {
	s.seed("patients", "p1", map[string][]string{"gene": {"G"}})
	s.Require().NoError(s.engine.Delete(s.ctx, "patients", "p1"))
	s.Require().NoError(s.engine.Delete(s.ctx, "patients", "p1"), "deleting twice is a no-op")

	n, err := s.engine.Count(s.ctx, "patients")
	s.NoError(err)
	s.Zero(n)
}
