package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Result is the oracle's answer for one request.
type Result struct {
	Done       bool
	Success    bool
	Words      []*big.Int
	Bonus      []bool
	Error      string
	RetryAfter time.Duration
}

// RequestResolver fetches the status of a pending request.
type RequestResolver interface {
	Resolve(ctx context.Context, req wager.Request) (Result, error)
}

// HTTPResolver polls an HTTP endpoint for oracle request status.
type HTTPResolver struct {
	client    *http.Client
	endpoint  *url.URL
	apiKey    string
	wordsPath string
	log       *logger.Logger
}

var _ RequestResolver = (*HTTPResolver)(nil)

// NewHTTPResolver constructs a resolver using the provided endpoint. wordsPath is
// a JSONPath expression locating the words array; empty means the top-level
// "words" field.
func NewHTTPResolver(client *http.Client, endpoint, apiKey, wordsPath string, log *logger.Logger) (*HTTPResolver, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("resolver endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse resolver endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("oracle-http-resolver")
	}
	return &HTTPResolver{
		client:    client,
		endpoint:  parsed,
		apiKey:    strings.TrimSpace(apiKey),
		wordsPath: strings.TrimSpace(wordsPath),
		log:       log,
	}, nil
}

func (r *HTTPResolver) Resolve(ctx context.Context, req wager.Request) (Result, error) {
	requestURL := *r.endpoint
	q := requestURL.Query()
	q.Set("request_id", req.ID)
	requestURL.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build resolver request: %w", err)
	}
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("resolver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("resolver status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read resolver response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return Result{}, fmt.Errorf("decode resolver response: invalid json")
	}

	doc := gjson.ParseBytes(body)
	retry := time.Duration(doc.Get("retry_after_seconds").Float() * float64(time.Second))
	if retry <= 0 {
		retry = 5 * time.Second
	}

	if !doc.Get("done").Bool() {
		return Result{RetryAfter: retry}, nil
	}
	if !doc.Get("success").Bool() {
		return Result{Done: true, Error: doc.Get("error").String()}, nil
	}

	raw, err := r.words(body, doc)
	if err != nil {
		return Result{}, err
	}
	words, err := ParseWords(raw)
	if err != nil {
		return Result{}, err
	}
	var bonus []bool
	for _, b := range doc.Get("bonus").Array() {
		bonus = append(bonus, b.Bool())
	}
	return Result{Done: true, Success: true, Words: words, Bonus: bonus}, nil
}

func (r *HTTPResolver) words(body []byte, doc gjson.Result) ([]string, error) {
	if r.wordsPath == "" {
		var out []string
		for _, w := range doc.Get("words").Array() {
			out = append(out, w.String())
		}
		return out, nil
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode resolver response: %w", err)
	}
	found, err := jsonpath.Get(r.wordsPath, v)
	if err != nil {
		return nil, fmt.Errorf("words path %s: %w", r.wordsPath, err)
	}
	items, ok := found.([]interface{})
	if !ok {
		return nil, fmt.Errorf("words path %s: not an array", r.wordsPath)
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprint(item)
	}
	return out, nil
}
