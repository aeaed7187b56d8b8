// Package httptransport is the REST client transport. Each call becomes one
// HTTP request against a Sheets v4 shaped API; non-2xx answers come back as
// *transport.StatusError.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

// DefaultBaseURL is the public Sheets API endpoint.
const DefaultBaseURL = "https://sheets.googleapis.com"

const maxErrorBody = 64 << 10

// Client is a transport.Transport over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL (scheme and host, optionally a path
// prefix). An empty baseURL means DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		userAgent:  "sheetbase",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ transport.Transport = (*Client)(nil)

// Do performs one HTTP request for call.
func (c *Client) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}

	store := url.PathEscape(call.Store)
	valuesPath := "/v4/spreadsheets/" + store + "/values/"
	query := url.Values{}

	switch call.Op {
	case transport.OpRead:
		var vr ValueRange
		if err := c.send(ctx, call, http.MethodGet, valuesPath+url.PathEscape(call.Range), query, nil, &vr); err != nil {
			return nil, err
		}
		return &transport.Result{Values: vr.Values}, nil

	case transport.OpBatchRead:
		for _, r := range call.Ranges {
			query.Add("ranges", r)
		}
		var resp BatchGetResponse
		if err := c.send(ctx, call, http.MethodGet, "/v4/spreadsheets/"+store+"/values:batchGet", query, nil, &resp); err != nil {
			return nil, err
		}
		res := &transport.Result{ValueRanges: make([]transport.ValueRange, len(resp.ValueRanges))}
		for i, vr := range resp.ValueRanges {
			res.ValueRanges[i] = transport.ValueRange{Range: vr.Range, Values: vr.Values}
		}
		return res, nil

	case transport.OpWrite:
		query.Set("valueInputOption", "RAW")
		body := ValueRange{Range: call.Range, MajorDimension: "ROWS", Values: call.Values}
		var resp UpdateResponse
		if err := c.send(ctx, call, http.MethodPut, valuesPath+url.PathEscape(call.Range), query, body, &resp); err != nil {
			return nil, err
		}
		return &transport.Result{UpdatedRange: resp.UpdatedRange}, nil

	case transport.OpAppend:
		query.Set("valueInputOption", "RAW")
		query.Set("insertDataOption", "INSERT_ROWS")
		body := ValueRange{Range: call.Range, MajorDimension: "ROWS", Values: call.Values}
		var resp AppendResponse
		if err := c.send(ctx, call, http.MethodPost, valuesPath+url.PathEscape(call.Range)+":append", query, body, &resp); err != nil {
			return nil, err
		}
		return &transport.Result{UpdatedRange: resp.Updates.UpdatedRange}, nil

	case transport.OpClear:
		if err := c.send(ctx, call, http.MethodPost, valuesPath+url.PathEscape(call.Range)+":clear", query, struct{}{}, nil); err != nil {
			return nil, err
		}
		return &transport.Result{}, nil

	case transport.OpBatchClear:
		body := BatchClearRequest{Ranges: call.Ranges}
		if err := c.send(ctx, call, http.MethodPost, "/v4/spreadsheets/"+store+"/values:batchClear", query, body, nil); err != nil {
			return nil, err
		}
		return &transport.Result{}, nil

	case transport.OpBatchWrite:
		body := BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: make([]ValueRange, len(call.Data))}
		for i, vr := range call.Data {
			body.Data[i] = ValueRange{Range: vr.Range, MajorDimension: "ROWS", Values: vr.Values}
		}
		if err := c.send(ctx, call, http.MethodPost, "/v4/spreadsheets/"+store+"/values:batchUpdate", query, body, nil); err != nil {
			return nil, err
		}
		return &transport.Result{}, nil

	case transport.OpStructure:
		body := BatchUpdateRequest{Requests: call.Requests}
		var resp Spreadsheet
		if err := c.send(ctx, call, http.MethodPost, "/v4/spreadsheets/"+store+":batchUpdate", query, body, &resp); err != nil {
			return nil, err
		}
		return &transport.Result{Tabs: TabsFromSheets(resp.Sheets)}, nil

	case transport.OpMetadata:
		query.Set("fields", "spreadsheetId,sheets.properties")
		var resp Spreadsheet
		if err := c.send(ctx, call, http.MethodGet, "/v4/spreadsheets/"+store, query, nil, &resp); err != nil {
			return nil, err
		}
		return &transport.Result{StoreID: resp.SpreadsheetID, Tabs: TabsFromSheets(resp.Sheets)}, nil

	case transport.OpCreateStore:
		body := Spreadsheet{Properties: SpreadsheetProperties{Title: call.Title}}
		for _, title := range call.Tabs {
			body.Sheets = append(body.Sheets, Sheet{Properties: SheetProperties{Title: title}})
		}
		var resp Spreadsheet
		if err := c.send(ctx, call, http.MethodPost, "/v4/spreadsheets", query, body, &resp); err != nil {
			return nil, err
		}
		return &transport.Result{StoreID: resp.SpreadsheetID, Tabs: TabsFromSheets(resp.Sheets)}, nil
	}
	return nil, fmt.Errorf("httptransport: unsupported op %q", call.Op)
}

func (c *Client) send(ctx context.Context, call *transport.Call, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httptransport: encode %s body: %w", call.Op, err)
		}
		reader = bytes.NewReader(data)
	}

	if call.Token == "" && call.APIKey != "" {
		query.Set("key", call.APIKey)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("httptransport: build %s request: %w", call.Op, err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httptransport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httptransport: decode %s response: %w", call.Op, err)
	}
	return nil
}

func statusError(resp *http.Response) *transport.StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &transport.StatusError{
		Code:       resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	var eb ErrorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		se.Body = eb.Error.Message
	}
	return se
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
