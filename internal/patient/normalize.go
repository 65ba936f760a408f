package patient

import (
	"context"
	"log/slog"

	"match-gateway/internal/vocabulary"
	dErrors "match-gateway/pkg/domain-errors"
)

// Resolver resolves phenotype and gene identifiers against the loaded
// vocabularies. A nil term with a nil error means the id did not resolve
// uniquely.
type Resolver interface {
	OntologyTerm(ctx context.Context, id string) (*vocabulary.Term, error)
	Gene(ctx context.Context, id string) (*vocabulary.Term, error)
}

// Normalizer rewrites incoming patients into canonical form: phenotype and
// gene ids replaced with their primary vocabulary ids, labels refreshed,
// and the derived sets (phenotype ancestor closure, candidate genes)
// computed for indexing and matching.
type Normalizer struct {
	vocab Resolver
	log   *slog.Logger
}

type NormalizerOption func(*Normalizer)

func WithNormalizerLogger(log *slog.Logger) NormalizerOption {
	return func(n *Normalizer) { n.log = log }
}

func NewNormalizer(vocab Resolver, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{vocab: vocab, log: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize canonicalizes the patient and derives its searchable sets.
// Identifiers that do not resolve are kept verbatim in the canonical form
// but contribute nothing to the derived sets. Only observed phenotypes
// contribute their closure.
func (n *Normalizer) Normalize(ctx context.Context, p Patient) (*Record, error) {
	if len(p.Features) == 0 && len(p.GenomicFeatures) == 0 {
		return nil, dErrors.New(dErrors.CodeUnprocessable,
			"at least one of features or genomicFeatures must be provided")
	}

	// Rewrites below must not reach back into the caller's slices.
	p.Features = append([]Feature(nil), p.Features...)
	p.GenomicFeatures = append([]GenomicFeature(nil), p.GenomicFeatures...)
	for i := range p.GenomicFeatures {
		if gene := p.GenomicFeatures[i].Gene; gene != nil {
			clone := *gene
			p.GenomicFeatures[i].Gene = &clone
		}
	}

	phenotypes := make(map[string]bool)
	for i := range p.Features {
		feature := &p.Features[i]

		term, err := n.vocab.OntologyTerm(ctx, feature.ID)
		if err != nil {
			return nil, err
		}
		if term == nil {
			n.log.Warn("unresolved phenotype id", "patient", p.ID, "id", feature.ID)
		} else {
			feature.ID = term.ID
			feature.Label = term.Name
			if feature.IsObserved() {
				for _, ancestor := range term.Closure {
					phenotypes[ancestor] = true
				}
			}
		}

		if feature.IsObserved() {
			feature.Observed = "yes"
		} else {
			feature.Observed = "no"
		}

		if feature.AgeOfOnset != "" {
			onset, err := n.vocab.OntologyTerm(ctx, feature.AgeOfOnset)
			if err != nil {
				return nil, err
			}
			if onset != nil {
				feature.AgeOfOnset = onset.ID
			}
		}
	}

	genes := make(map[string]bool)
	for i := range p.GenomicFeatures {
		gene := p.GenomicFeatures[i].Gene
		if gene == nil || gene.ID == "" {
			continue
		}
		term, err := n.vocab.Gene(ctx, gene.ID)
		if err != nil {
			return nil, err
		}
		if term == nil {
			n.log.Warn("unresolved gene id", "patient", p.ID, "id", gene.ID)
			continue
		}
		gene.ID = term.ID
		gene.Label = term.Name
		genes[term.ID] = true
	}

	return &Record{
		Patient:    p,
		Phenotypes: keys(phenotypes),
		Genes:      keys(genes),
	}, nil
}

func keys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
