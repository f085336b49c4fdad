package databento

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RangeRequest names one chunk's vendor call (spec §4.2 step 2, §6).
type RangeRequest struct {
	Dataset    string
	Schema     string
	Symbols    []string
	SymbolType string
	Start      time.Time
	End        time.Time
}

// VendorClient is the historical range endpoint contract (spec §6). A
// real implementation streams NDJSON; tests substitute a fake.
type VendorClient interface {
	FetchRange(ctx context.Context, req RangeRequest) (io.ReadCloser, error)
}

// HTTPClient is the default VendorClient, guarded by rate limiting,
// circuit breaking, and retry/backoff (guard.go), the way the teacher's
// kraken.Client wraps every call site in rateLimiter.Wait + makeRequest
// (internal/providers/kraken/client.go).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	guard      *Guard
}

// NewHTTPClient builds the default vendor client.
func NewHTTPClient(baseURL, apiKey string, guard *Guard) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://hist.databento.com"
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 0, // streaming response; caller's context bounds it
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		guard: guard,
	}
}

func (c *HTTPClient) FetchRange(ctx context.Context, req RangeRequest) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("dataset", req.Dataset)
	params.Set("schema", req.Schema)
	params.Set("symbols", joinSymbols(req.Symbols))
	params.Set("stype_in", req.SymbolType)
	params.Set("start", req.Start.Format(time.RFC3339))
	params.Set("end", req.End.Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/v0/timeseries.get_range?%s", c.baseURL, params.Encode())

	resp, err := c.guard.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build vendor request: %w", err)
		}
		httpReq.SetBasicAuth(c.apiKey, "")
		httpReq.Header.Set("Accept", "application/x-ndjson")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		var ce *CallError
		if ok := asCallError(err, &ce); ok && ce.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("vendor authentication failed: %w", err)
		}
		return nil, err
	}
	return resp.Body, nil
}

func asCallError(err error, target **CallError) bool {
	type causer interface{ Unwrap() error }
	for err != nil {
		if ce, ok := err.(*CallError); ok {
			*target = ce
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Unwrap()
	}
	return false
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// NDJSONDecoder decodes a streamed newline-delimited JSON response body
// into RawRecord values, one per line, matching Databento's historical
// streaming transport.
type NDJSONDecoder struct {
	dec *json.Decoder
}

func NewNDJSONDecoder(r io.Reader) *NDJSONDecoder {
	return &NDJSONDecoder{dec: json.NewDecoder(r)}
}

// Next decodes the next record, returning io.EOF when the stream ends.
func (d *NDJSONDecoder) Next() (RawRecord, error) {
	var raw RawRecord
	if err := d.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
