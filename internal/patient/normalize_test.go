package patient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"match-gateway/internal/vocabulary"
	dErrors "match-gateway/pkg/domain-errors"
)

// fakeResolver resolves from fixed maps; unknown ids yield (nil, nil) the
// way the vocabulary service does.
type fakeResolver struct {
	terms map[string]*vocabulary.Term
	genes map[string]*vocabulary.Term
}

func (f *fakeResolver) OntologyTerm(_ context.Context, id string) (*vocabulary.Term, error) {
	return f.terms[id], nil
}

func (f *fakeResolver) Gene(_ context.Context, id string) (*vocabulary.Term, error) {
	return f.genes[id], nil
}

func newFakeResolver() *fakeResolver {
	microcephaly := &vocabulary.Term{
		ID:      "HP:0000252",
		Name:    "Microcephaly",
		Closure: []string{"HP:0000118", "HP:0000252", "HP:0012443"},
	}
	onset := &vocabulary.Term{ID: "HP:0003577", Name: "Congenital onset"}
	ngly1 := &vocabulary.Term{ID: "ENSG00000151092", Name: "N-glycanase 1", AltIDs: []string{"NGLY1"}}

	return &fakeResolver{
		terms: map[string]*vocabulary.Term{
			"HP:0000252": microcephaly,
			"HP:0001111": microcephaly, // alt_id
			"HP:0003577": onset,
		},
		genes: map[string]*vocabulary.Term{
			"ENSG00000151092": ngly1,
			"NGLY1":           ngly1,
		},
	}
}

type NormalizerSuite struct {
	suite.Suite
	ctx        context.Context
	normalizer *Normalizer
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) SetupTest() {
	s.ctx = context.Background()
	s.normalizer = NewNormalizer(newFakeResolver())
}

func (s *NormalizerSuite) TestNormalizeCanonicalizes() {
	p := Patient{
		ID:      "P0001",
		Contact: Contact{Name: "Clinician", Href: "mailto:c@example.org"},
		Features: []Feature{
			{ID: "HP:0001111", AgeOfOnset: "HP:0003577"},
		},
		GenomicFeatures: []GenomicFeature{
			{Gene: &GeneRef{ID: "NGLY1"}},
		},
	}

	record, err := s.normalizer.Normalize(s.ctx, p)
	s.Require().NoError(err)

	feature := record.Patient.Features[0]
	s.Equal("HP:0000252", feature.ID, "alt_id is rewritten to the primary id")
	s.Equal("Microcephaly", feature.Label)
	s.Equal("yes", feature.Observed)
	s.Equal("HP:0003577", feature.AgeOfOnset)

	s.Equal("ENSG00000151092", record.Patient.GenomicFeatures[0].Gene.ID)
	s.Equal("N-glycanase 1", record.Patient.GenomicFeatures[0].Gene.Label)

	s.ElementsMatch([]string{"HP:0000118", "HP:0000252", "HP:0012443"}, record.Phenotypes)
	s.Equal([]string{"ENSG00000151092"}, record.Genes)
}

func (s *NormalizerSuite) TestNormalizeDoesNotMutateInput() {
	p := Patient{
		ID:              "P0001",
		Features:        []Feature{{ID: "HP:0001111"}},
		GenomicFeatures: []GenomicFeature{{Gene: &GeneRef{ID: "NGLY1"}}},
	}
	_, err := s.normalizer.Normalize(s.ctx, p)
	s.Require().NoError(err)

	s.Equal("HP:0001111", p.Features[0].ID)
	s.Equal("NGLY1", p.GenomicFeatures[0].Gene.ID)
}

func (s *NormalizerSuite) TestUnobservedFeatureExcludedFromClosure() {
	p := Patient{
		ID: "P0002",
		Features: []Feature{
			{ID: "HP:0000252", Observed: "no"},
		},
	}
	record, err := s.normalizer.Normalize(s.ctx, p)
	s.Require().NoError(err)

	s.Empty(record.Phenotypes)
	s.Equal("no", record.Patient.Features[0].Observed)
	s.Equal("HP:0000252", record.Patient.Features[0].ID, "the feature itself is still canonicalized")
}

func (s *NormalizerSuite) TestUnresolvedIdsKeptButNotDerived() {
	p := Patient{
		ID: "P0003",
		Features: []Feature{
			{ID: "HP:0000252"},
			{ID: "HP:9999999"},
		},
		GenomicFeatures: []GenomicFeature{
			{Gene: &GeneRef{ID: "FAKEGENE"}},
		},
	}
	record, err := s.normalizer.Normalize(s.ctx, p)
	s.Require().NoError(err)

	s.Equal("HP:9999999", record.Patient.Features[1].ID)
	s.ElementsMatch([]string{"HP:0000118", "HP:0000252", "HP:0012443"}, record.Phenotypes)
	s.Equal("FAKEGENE", record.Patient.GenomicFeatures[0].Gene.ID)
	s.Empty(record.Genes)
}

func (s *NormalizerSuite) TestEmptyPatientIsUnprocessable() {
	_, err := s.normalizer.Normalize(s.ctx, Patient{ID: "P0004"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnprocessable, dErrors.CodeOf(err))
}
