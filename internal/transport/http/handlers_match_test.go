package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"match-gateway/internal/federation"
	"match-gateway/internal/patient"
	"match-gateway/internal/platform/middleware"
	"match-gateway/internal/search"
	httptransport "match-gateway/internal/transport/http"
	"match-gateway/internal/trust"
	"match-gateway/internal/vocabulary"
)

const testOBO = `[Term]
id: HP:0000118
name: Phenotypic abnormality

[Term]
id: HP:0000707
name: Abnormality of the nervous system
is_a: HP:0000118

[Term]
id: HP:0000252
name: Microcephaly
alt_id: HP:0001111
is_a: HP:0000707
`

const testGenes = "HGNC ID\tApproved Symbol\tApproved Name\tPrevious Symbols\tSynonyms\tEntrez Gene ID(supplied by NCBI)\tEnsembl ID(supplied by Ensembl)\n" +
	"HGNC:17646\tNGLY1\tN-glycanase 1\t\t\t55768\tENSG00000151092\n"

const inboundKey = "inbound-secret"

type staticOutbound struct {
	entries []trust.Entry
}

func (s *staticOutbound) Outbound(context.Context) ([]trust.Entry, error) {
	return s.entries, nil
}

type HandlerSuite struct {
	suite.Suite
	ctx        context.Context
	normalizer *patient.Normalizer
	matcher    *patient.MatchService
	registry   *trust.Registry
	router     http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	engine := search.NewMemory()

	vocab := vocabulary.NewService(engine)
	_, err := vocab.IngestOntology(s.ctx, strings.NewReader(testOBO))
	s.Require().NoError(err)
	_, err = vocab.IngestGenes(s.ctx, strings.NewReader(testGenes))
	s.Require().NoError(err)

	s.normalizer = patient.NewNormalizer(vocab)
	s.matcher = patient.NewMatchService(engine, s.normalizer)

	s.registry = trust.NewRegistry(trust.NewEngineStore(engine))
	_, err = s.registry.Add(s.ctx, trust.AddParams{
		ServerID:  "partner",
		Label:     "Partner Node",
		Key:       inboundKey,
		Direction: trust.DirectionIn,
	})
	s.Require().NoError(err)

	s.router = s.newRouter(federation.NewProxy(s.registry))
}

func (s *HandlerSuite) newRouter(proxy httptransport.Fanout) http.Handler {
	handler := httptransport.NewHandler(httptransport.Config{
		Matcher:    s.matcher,
		Normalizer: s.normalizer,
		Servers:    s.registry,
		Proxy:      proxy,
		MatchLimit: 5,
	})
	return httptransport.NewRouter(handler, s.registry)
}

func (s *HandlerSuite) indexPatient(p patient.Patient) {
	s.T().Helper()
	record, err := s.normalizer.Normalize(s.ctx, p)
	s.Require().NoError(err)
	s.Require().NoError(s.matcher.Index(s.ctx, record))
}

func (s *HandlerSuite) seedPatients() {
	s.indexPatient(patient.Patient{
		ID:              "exact",
		Contact:         patient.Contact{Name: "A", Href: "mailto:a@x.org"},
		Features:        []patient.Feature{{ID: "HP:0000252"}},
		GenomicFeatures: []patient.GenomicFeature{{Gene: &patient.GeneRef{ID: "NGLY1"}}},
	})
	s.indexPatient(patient.Patient{
		ID:       "related",
		Contact:  patient.Contact{Name: "B", Href: "mailto:b@x.org"},
		Features: []patient.Feature{{ID: "HP:0000707"}},
	})
}

func (s *HandlerSuite) matchBody() []byte {
	body, err := json.Marshal(patient.MatchRequest{Patient: patient.Patient{
		ID:       "query",
		Contact:  patient.Contact{Name: "Clinician", Href: "mailto:c@example.org"},
		Features: []patient.Feature{{ID: "HP:0001111"}},
	}})
	s.Require().NoError(err)
	return body
}

func (s *HandlerSuite) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func protocolHeaders() map[string]string {
	return map[string]string{
		"Content-Type":         patient.MediaType,
		middleware.TokenHeader: inboundKey,
	}
}

func (s *HandlerSuite) TestMatchRequiresToken() {
	rec := s.do(http.MethodPost, "/match", s.matchBody(), map[string]string{
		"Content-Type": patient.MediaType,
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.JSONEq(`{"error":"unauthorized","error_description":"X-Auth-Token not authorized"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/match", s.matchBody(), map[string]string{
		"Content-Type":         patient.MediaType,
		middleware.TokenHeader: "wrong",
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestMatchRejectsWrongMediaType() {
	headers := protocolHeaders()
	headers["Content-Type"] = "text/plain"
	rec := s.do(http.MethodPost, "/match", s.matchBody(), headers)
	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

func (s *HandlerSuite) TestMatchRejectsMalformedJSON() {
	rec := s.do(http.MethodPost, "/match", []byte("{not json"), protocolHeaders())
	s.Equal(http.StatusBadRequest, rec.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("bad_request", body["error"])
}

func (s *HandlerSuite) TestMatchRejectsSchemaViolations() {
	body, err := json.Marshal(patient.MatchRequest{Patient: patient.Patient{
		ID:      "query",
		Contact: patient.Contact{Name: "Clinician", Href: "mailto:c@example.org"},
	}})
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/match", body, protocolHeaders())
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("unprocessable_entity", resp["error"])
}

func (s *HandlerSuite) TestMatchReturnsRankedResults() {
	s.seedPatients()

	rec := s.do(http.MethodPost, "/match", s.matchBody(), protocolHeaders())
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(patient.MediaType, rec.Header().Get("Content-Type"))

	var resp patient.MatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Results, 2)
	s.Equal("exact", resp.Results[0].Patient.ID)
	s.Equal("related", resp.Results[1].Patient.ID)
	s.Greater(resp.Results[0].Score.Patient, resp.Results[1].Score.Patient)
}

func (s *HandlerSuite) TestListServersOmitsKeys() {
	rec := s.do(http.MethodGet, "/servers", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), inboundKey)

	var resp struct {
		Servers []map[string]any `json:"servers"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Servers, 1)
	s.Equal("partner", resp.Servers[0]["server_id"])
	s.NotContains(resp.Servers[0], "server_key")
}

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *HandlerSuite) TestFederatedMatchMergesPartnerResults() {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := patient.MatchResponse{Results: []patient.MatchResult{
			{Score: patient.Score{Patient: 0.2}, Patient: patient.Patient{ID: "remote-low"}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer remote.Close()

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := patient.MatchResponse{Results: []patient.MatchResult{
			{Score: patient.Score{Patient: 0.9}, Patient: patient.Patient{ID: "remote-high"}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer other.Close()

	outbound := &staticOutbound{entries: []trust.Entry{
		{ServerID: "low", Key: "kl", Direction: trust.DirectionOut, BaseURL: remote.URL},
		{ServerID: "high", Key: "kh", Direction: trust.DirectionOut, BaseURL: other.URL},
	}}
	router := s.newRouter(federation.NewProxy(outbound))

	req := httptest.NewRequest(http.MethodPost, "/federation/match?timeout=2000", bytes.NewReader(s.matchBody()))
	for k, v := range protocolHeaders() {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp patient.MatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Results, 2)
	s.Equal("remote-high", resp.Results[0].Patient.ID)
	s.Equal("remote-low", resp.Results[1].Patient.ID)
}

// logCapture is a slog handler that records every message, for asserting
// log-only paths.
type logCapture struct {
	mu       sync.Mutex
	messages []string
}

func (c *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *logCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, r.Message)
	return nil
}

func (c *logCapture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *logCapture) WithGroup(string) slog.Handler      { return c }

func (c *logCapture) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func (s *HandlerSuite) TestFederatedMatchLogsInvalidPartnerScores() {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := patient.MatchResponse{Results: []patient.MatchResult{
			{Score: patient.Score{Patient: 1.5}, Patient: patient.Patient{ID: "remote-bad"}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer remote.Close()

	capture := &logCapture{}
	handler := httptransport.NewHandler(httptransport.Config{
		Logger:     slog.New(capture),
		Matcher:    s.matcher,
		Normalizer: s.normalizer,
		Servers:    s.registry,
		Proxy: federation.NewProxy(&staticOutbound{entries: []trust.Entry{
			{ServerID: "bad", Key: "kb", Direction: trust.DirectionOut, BaseURL: remote.URL},
		}}),
		MatchLimit: 5,
	})
	router := httptransport.NewRouter(handler, s.registry)

	req := httptest.NewRequest(http.MethodPost, "/federation/match", bytes.NewReader(s.matchBody()))
	for k, v := range protocolHeaders() {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The out-of-range score is relayed, not dropped, but the defect is
	// logged.
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp patient.MatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Results, 1)
	s.Equal(1.5, resp.Results[0].Score.Patient)
	s.Contains(capture.all(), "federated match response failed validation")
}

func (s *HandlerSuite) TestFederatedMatchRejectsBadTimeout() {
	req := httptest.NewRequest(http.MethodPost, "/federation/match?timeout=abc", bytes.NewReader(s.matchBody()))
	for k, v := range protocolHeaders() {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}
