// Package federation forwards match queries to trusted remote servers and
// collects their answers without letting one slow or broken partner affect
// the others.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"match-gateway/internal/platform/metrics"
	"match-gateway/internal/platform/middleware"
	"match-gateway/internal/patient"
	"match-gateway/internal/trust"
	dErrors "match-gateway/pkg/domain-errors"
)

const (
	defaultWorkers      = 8
	defaultCallTimeout  = 5 * time.Second
	defaultBatchTimeout = 30 * time.Second
)

// PartnerLister yields the outgoing trust entries to fan out to.
type PartnerLister interface {
	Outbound(ctx context.Context) ([]trust.Entry, error)
}

// Outcome is the result of querying one partner. Exactly one of Response
// and Err is set.
type Outcome struct {
	ServerID string
	Label    string
	Response *patient.MatchResponse
	Err      error
}

// OK reports whether the partner answered successfully.
func (o Outcome) OK() bool { return o.Err == nil }

// Proxy fans a match request out to remote partners over a bounded worker
// pool. Each call gets its own deadline and the whole batch gets another,
// so a pathological partner set cannot hold a request open indefinitely.
type Proxy struct {
	partners     PartnerLister
	client       *http.Client
	workers      int
	callTimeout  time.Duration
	batchTimeout time.Duration
	metrics      *metrics.Metrics
	log          *slog.Logger
}

type Option func(*Proxy)

func WithLogger(log *slog.Logger) Option {
	return func(p *Proxy) { p.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

func WithClient(client *http.Client) Option {
	return func(p *Proxy) { p.client = client }
}

func WithWorkers(n int) Option {
	return func(p *Proxy) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

func NewProxy(partners PartnerLister, opts ...Option) *Proxy {
	p := &Proxy{
		partners:     partners,
		client:       &http.Client{},
		workers:      defaultWorkers,
		callTimeout:  defaultCallTimeout,
		batchTimeout: defaultBatchTimeout,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fanout sends the request to every outgoing partner, or only to those in
// targets when it is non-empty. callTimeout overrides the configured
// per-call deadline when positive. One outcome is returned per partner
// queried, in partner order; partner failures land in their outcome, never
// in the returned error.
func (p *Proxy) Fanout(ctx context.Context, req *patient.MatchRequest, targets []string, callTimeout time.Duration) ([]Outcome, error) {
	partners, err := p.partners.Outbound(ctx)
	if err != nil {
		return nil, err
	}
	if len(targets) > 0 {
		wanted := make(map[string]bool, len(targets))
		for _, id := range targets {
			wanted[id] = true
		}
		kept := partners[:0]
		for _, partner := range partners {
			if wanted[partner.ServerID] {
				kept = append(kept, partner)
			}
		}
		partners = kept
	}
	if len(partners) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode match request")
	}
	if callTimeout <= 0 {
		callTimeout = p.callTimeout
	}

	batchCtx, cancel := context.WithTimeout(ctx, p.batchTimeout)
	defer cancel()

	outcomes := make([]Outcome, len(partners))
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(p.workers)

	for i, partner := range partners {
		g.Go(func() error {
			outcome := Outcome{ServerID: partner.ServerID, Label: partner.Label}
			resp, err := p.call(gctx, partner, body, callTimeout)
			if err != nil {
				outcome.Err = err
				p.metrics.ObserveFanout("error")
				p.log.WarnContext(ctx, "partner query failed",
					"request_id", middleware.GetRequestID(ctx),
					"server_id", partner.ServerID,
					"error", err,
				)
			} else {
				outcome.Response = resp
				p.metrics.ObserveFanout("ok")
			}
			outcomes[i] = outcome
			return nil
		})
	}
	// Workers never return errors; Wait only observes batch completion.
	_ = g.Wait()
	return outcomes, nil
}

func (p *Proxy) call(ctx context.Context, partner trust.Entry, body []byte, timeout time.Duration) (*patient.MatchResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := partner.BaseURL + "/match"
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", partner.ServerID, err)
	}
	req.Header.Set("Content-Type", patient.MediaType)
	req.Header.Set("Accept", patient.MediaType)
	req.Header.Set(middleware.TokenHeader, partner.Key)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", partner.ServerID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("query %s: unexpected status %d", partner.ServerID, resp.StatusCode)
	}

	var matchResp patient.MatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&matchResp); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", partner.ServerID, err)
	}
	return &matchResp, nil
}
