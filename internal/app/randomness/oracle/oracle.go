// Package oracle implements the third-party oracle provider. Requests are
// POSTed to the registered endpoint; words come back either as a push callback
// from the oracle identity or through the polling Dispatcher.
package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/engine/bus"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Provider submits requests to the oracle endpoint.
type Provider struct {
	client *http.Client
	params func() protocol.OracleParams
	apiKey string
	limits *bus.BusLimiter
	log    *logger.Logger
}

var _ randomness.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = strings.TrimSpace(key) }
}

// WithLimiter bounds concurrent submissions.
func WithLimiter(l *bus.BusLimiter) Option {
	return func(p *Provider) { p.limits = l }
}

// WithLogger sets the provider logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// New creates a provider that reads the endpoint from params on every request.
func New(params func() protocol.OracleParams, opts ...Option) *Provider {
	p := &Provider{
		client: &http.Client{Timeout: 5 * time.Second},
		params: params,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.NewDefault("oracle-provider")
	}
	return p
}

func (p *Provider) Kind() wager.ProviderKind { return wager.ProviderOracle }

type submission struct {
	RequestID string `json:"request_id"`
	Player    string `json:"player"`
	Count     int    `json:"count"`
	Seed      string `json:"seed"`
}

func (p *Provider) Request(ctx context.Context, req randomness.Request) (randomness.Ticket, error) {
	endpoint := strings.TrimSpace(p.params().Endpoint)
	if endpoint == "" {
		return randomness.Ticket{}, fmt.Errorf("oracle endpoint not configured")
	}
	seed, err := randomness.NewSeed()
	if err != nil {
		return randomness.Ticket{}, err
	}
	sub := submission{
		RequestID: uuid.NewString(),
		Player:    req.Player,
		Count:     req.Count,
		Seed:      hex.EncodeToString(seed),
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return randomness.Ticket{}, err
	}

	err = p.limits.Do(ctx, bus.KindOracleSubmit, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build oracle request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		resp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("oracle request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("oracle status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return randomness.Ticket{}, err
	}
	p.log.WithField("request_id", sub.RequestID).Debug("oracle request submitted")
	return randomness.Ticket{
		RequestID: sub.RequestID,
		Seed:      seed,
		Meta:      map[string]interface{}{"endpoint": endpoint},
	}, nil
}

// ParseWord parses a decimal or 0x-prefixed hex word.
func ParseWord(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad word %q", wager.ErrInvalidDraws, s)
	}
	return v, nil
}

// ParseWords parses every word in raw.
func ParseWords(raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(raw))
	for i, s := range raw {
		v, err := ParseWord(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
