package patient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"match-gateway/internal/platform/metrics"
	"match-gateway/internal/search"
	dErrors "match-gateway/pkg/domain-errors"
	"match-gateway/pkg/platform/audit"
)

// PatientIndex is the engine index holding normalized patient records.
const PatientIndex = "patients"

// DefaultMatchLimit is the number of results returned when the caller does
// not configure one.
const DefaultMatchLimit = 5

// MatchService indexes normalized patients and answers similarity queries
// against them.
type MatchService struct {
	engine     search.Engine
	normalizer *Normalizer
	recorder   *audit.Recorder
	metrics    *metrics.Metrics
	log        *slog.Logger
}

type ServiceOption func(*MatchService)

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *MatchService) { s.log = log }
}

func WithAudit(recorder *audit.Recorder) ServiceOption {
	return func(s *MatchService) { s.recorder = recorder }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *MatchService) { s.metrics = m }
}

func NewMatchService(engine search.Engine, normalizer *Normalizer, opts ...ServiceOption) *MatchService {
	s := &MatchService{
		engine:     engine,
		normalizer: normalizer,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index upserts one normalized record. A record with the same patient id
// replaces the previous one.
func (s *MatchService) Index(ctx context.Context, record *Record) error {
	doc, err := record.Document()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode patient record")
	}
	if err := s.engine.Upsert(ctx, PatientIndex, record.Patient.ID, doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "index patient record")
	}

	s.log.Info("indexed patient", "id", record.Patient.ID)
	if s.metrics != nil {
		s.metrics.PatientsIndexed.Inc()
	}
	s.recorder.Record(ctx, "patient.indexed", "", map[string]string{"id": record.Patient.ID})
	return nil
}

// IngestCorpus normalizes and indexes a JSON array of patients. Any record
// that fails to normalize aborts the load.
func (s *MatchService) IngestCorpus(ctx context.Context, r io.Reader) (int64, error) {
	var patients []Patient
	if err := json.NewDecoder(r).Decode(&patients); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "decode patient file")
	}

	for _, p := range patients {
		record, err := s.normalizer.Normalize(ctx, p)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "normalize patient "+p.ID)
		}
		if err := s.Index(ctx, record); err != nil {
			return 0, err
		}
	}

	if err := s.engine.Refresh(ctx, PatientIndex); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "refresh patient index")
	}
	n, err := s.engine.Count(ctx, PatientIndex)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeIngestion, "count patient index")
	}
	s.log.Info("datastore now contains patient records", "count", n)
	return n, nil
}

// Match returns up to limit patients similar to the query record, most
// similar first. The engine relevance r maps onto the protocol score range
// [0, 1) as 1 - 1/(1+r), so a higher raw relevance always yields a higher
// score and no score ever reaches 1.
func (s *MatchService) Match(ctx context.Context, record *Record, limit int) (*MatchResponse, error) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	if len(record.Phenotypes) == 0 && len(record.Genes) == 0 {
		return nil, dErrors.New(dErrors.CodeUnprocessable,
			"no phenotype or gene terms could be resolved for the query patient")
	}

	var should []search.Term
	for _, id := range record.Phenotypes {
		should = append(should, search.Term{Field: "phenotype", Value: id})
	}
	for _, id := range record.Genes {
		should = append(should, search.Term{Field: "gene", Value: id})
	}

	hits, err := s.engine.Search(ctx, PatientIndex, search.Query{Should: should}, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search patient index")
	}

	results := make([]MatchResult, 0, len(hits))
	for _, hit := range hits {
		matched, err := RecordFromHit(hit)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode match result")
		}
		results = append(results, MatchResult{
			Score:   Score{Patient: 1 - 1/(1+hit.Score)},
			Patient: matched.Patient,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score.Patient > results[j].Score.Patient
	})

	if s.metrics != nil {
		s.metrics.MatchRequests.Inc()
	}
	s.recorder.Record(ctx, "match.request", "", map[string]string{
		"patient": record.Patient.ID,
		"results": strconv.Itoa(len(results)),
	})
	return &MatchResponse{Results: results}, nil
}
