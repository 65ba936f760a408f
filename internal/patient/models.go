// Package patient holds the Matchmaker Exchange patient model, its
// normalization against the vocabularies, and the similarity search over
// the patient index.
package patient

import (
	"encoding/json"
	"fmt"
	"sort"

	"match-gateway/internal/search"
)

// MediaType is the protocol content type for match requests and responses.
const MediaType = "application/vnd.ga4gh.matchmaker.v1.0+json"

// Contact identifies the submitter of a patient record.
type Contact struct {
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
	Href        string `json:"href"`
}

// Feature is one phenotype observation, coded as an HPO term id.
type Feature struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	Observed   string `json:"observed,omitempty"`
	AgeOfOnset string `json:"ageOfOnset,omitempty"`
}

// IsObserved reports whether the phenotype is present. Absent means yes;
// any value other than "yes" means no.
func (f Feature) IsObserved() bool {
	return f.Observed == "" || f.Observed == "yes"
}

// GeneRef names a candidate gene inside a genomic feature.
type GeneRef struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// GenomicFeature is one candidate variant. Variant, zygosity and type are
// carried through untouched.
type GenomicFeature struct {
	Gene     *GeneRef        `json:"gene,omitempty"`
	Variant  json.RawMessage `json:"variant,omitempty"`
	Zygosity json.RawMessage `json:"zygosity,omitempty"`
	Type     json.RawMessage `json:"type,omitempty"`
}

// Patient is the wire representation of a patient record.
type Patient struct {
	ID              string            `json:"id"`
	Label           string            `json:"label,omitempty"`
	Contact         Contact           `json:"contact"`
	Species         string            `json:"species,omitempty"`
	Sex             string            `json:"sex,omitempty"`
	AgeOfOnset      string            `json:"ageOfOnset,omitempty"`
	Inheritance     string            `json:"inheritanceMode,omitempty"`
	Features        []Feature         `json:"features,omitempty"`
	GenomicFeatures []GenomicFeature  `json:"genomicFeatures,omitempty"`
	Disorders       []json.RawMessage `json:"disorders,omitempty"`
	Test            bool              `json:"test,omitempty"`
}

// MatchRequest is the body of a POST /match.
type MatchRequest struct {
	Patient Patient `json:"patient"`
}

// Score carries the similarity of one result, in [0, 1).
type Score struct {
	Patient float64 `json:"patient"`
}

// MatchResult pairs a matched patient with its score.
type MatchResult struct {
	Score   Score   `json:"score"`
	Patient Patient `json:"patient"`
}

// MatchResponse is the body of a match response, results in descending
// score order.
type MatchResponse struct {
	Results []MatchResult `json:"results"`
}

// Record is a normalized patient ready for indexing: the canonical patient
// plus its derived phenotype closure and candidate gene set, both sorted.
type Record struct {
	Patient    Patient  `json:"doc"`
	Phenotypes []string `json:"phenotype"`
	Genes      []string `json:"gene"`
}

// Document renders the record as an engine document. The derived sets are
// the searchable keywords; the canonical patient rides along as source.
func (r *Record) Document() (search.Document, error) {
	sort.Strings(r.Phenotypes)
	sort.Strings(r.Genes)

	source, err := json.Marshal(r)
	if err != nil {
		return search.Document{}, fmt.Errorf("patient: encode record: %w", err)
	}
	return search.Document{
		Keywords: map[string][]string{
			"phenotype": r.Phenotypes,
			"gene":      r.Genes,
		},
		Source: source,
	}, nil
}

// RecordFromHit decodes an engine hit back into a record.
func RecordFromHit(hit search.Hit) (*Record, error) {
	var record Record
	if err := json.Unmarshal(hit.Source, &record); err != nil {
		return nil, fmt.Errorf("patient: decode record %q: %w", hit.ID, err)
	}
	return &record, nil
}
