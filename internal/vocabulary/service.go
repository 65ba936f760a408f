package vocabulary

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"match-gateway/internal/search"
	dErrors "match-gateway/pkg/domain-errors"
)

const (
	// OntologyIndex holds Human Phenotype Ontology terms.
	OntologyIndex = "hpo"
	// GeneIndex holds the Ensembl-Entrez-HGNC-symbol gene crosswalk.
	GeneIndex = "genes"
)

// Term is a vocabulary entry. Ontology terms carry parents and their
// ancestor closure; gene terms only use the id, name and alt_ids fields.
type Term struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	AltIDs   []string `json:"alt_ids,omitempty"`
	Parents  []string `json:"parent_ids,omitempty"`
	Closure  []string `json:"ancestor_closure,omitempty"`
}

// Cache is an optional read-through cache for resolved terms. Both methods
// are best effort; failures must not surface to callers.
type Cache interface {
	GetTerm(ctx context.Context, index, id string) (*Term, bool)
	SetTerm(ctx context.Context, index, id string, term *Term)
}

// Service ingests vocabulary files and resolves ids against them.
type Service struct {
	engine search.Engine
	cache  Cache
	log    *slog.Logger
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func NewService(engine search.Engine, opts ...Option) *Service {
	s := &Service{engine: engine, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestOntology parses an OBO file and indexes every non-obsolete term
// with its ancestor closure. Nothing is written unless the whole file
// parses. Returns the number of terms indexed.
func (s *Service) IngestOntology(ctx context.Context, r io.Reader) (int, error) {
	doc, err := parseOBO(r)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "parse ontology file")
	}
	terms, err := ontologyTerms(doc)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "parse ontology file")
	}
	return s.indexTerms(ctx, OntologyIndex, terms)
}

// IngestGenes parses an HGNC TSV crosswalk and indexes one term per gene,
// keyed by Ensembl id. Rows without an Ensembl id are skipped. Returns the
// number of terms indexed.
func (s *Service) IngestGenes(ctx context.Context, r io.Reader) (int, error) {
	terms, err := parseGenes(r)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "parse gene file")
	}

	kept := terms[:0]
	for _, term := range terms {
		if term.ID == "" {
			s.log.Warn("skipping gene row without Ensembl id", "name", term.Name)
			continue
		}
		kept = append(kept, term)
	}
	return s.indexTerms(ctx, GeneIndex, kept)
}

func (s *Service) indexTerms(ctx context.Context, index string, terms []Term) (int, error) {
	exists, err := s.engine.Exists(ctx, index)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "check vocabulary index")
	}
	if exists {
		s.log.Warn("vocabulary index already exists", "index", index)
	} else {
		s.log.Info("creating vocabulary index", "index", index)
		if err := s.engine.Create(ctx, index); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "create vocabulary index")
		}
	}

	for _, term := range terms {
		source, err := json.Marshal(term)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "encode term")
		}
		doc := search.Document{
			Keywords: map[string][]string{
				"id":     {term.ID},
				"alt_id": term.AltIDs,
			},
			Source: source,
		}
		if err := s.engine.Upsert(ctx, index, term.ID, doc); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "index term")
		}
	}

	if err := s.engine.Refresh(ctx, index); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "refresh vocabulary index")
	}
	n, err := s.engine.Count(ctx, index)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "count vocabulary index")
	}
	s.log.Info("vocabulary index populated", "index", index, "terms", n)
	return len(terms), nil
}

// OntologyTerm resolves an HPO id or alt_id to its term. An id that does
// not resolve to exactly one term yields nil without error.
func (s *Service) OntologyTerm(ctx context.Context, id string) (*Term, error) {
	return s.resolve(ctx, OntologyIndex, id)
}

// Gene resolves an Ensembl id, gene symbol, Entrez id (NCBIGene:NNN) or
// HGNC id to its gene term. An id that does not resolve to exactly one
// gene yields nil without error.
func (s *Service) Gene(ctx context.Context, id string) (*Term, error) {
	return s.resolve(ctx, GeneIndex, id)
}

func (s *Service) resolve(ctx context.Context, index, id string) (*Term, error) {
	if s.cache != nil {
		if term, ok := s.cache.GetTerm(ctx, index, id); ok {
			return term, nil
		}
	}

	query := search.Query{Should: []search.Term{
		{Field: "id", Value: id},
		{Field: "alt_id", Value: id},
	}}
	hits, err := s.engine.Search(ctx, index, query, 2)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search vocabulary")
	}
	if len(hits) != 1 {
		s.log.Warn("unable to uniquely resolve term", "index", index, "id", id, "hits", len(hits))
		return nil, nil
	}

	var term Term
	if err := json.Unmarshal(hits[0].Source, &term); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode term")
	}
	if s.cache != nil {
		s.cache.SetTerm(ctx, index, id, &term)
	}
	return &term, nil
}
