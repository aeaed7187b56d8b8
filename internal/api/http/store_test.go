package http

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/transport/httptransport"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		path    string
		want    route
		wantErr bool
	}{
		{path: "/v4/spreadsheets", want: route{op: transport.OpCreateStore, method: http.MethodPost}},
		{path: "/v4/spreadsheets/s1", want: route{op: transport.OpMetadata, method: http.MethodGet, store: "s1"}},
		{path: "/v4/spreadsheets/s1:batchUpdate", want: route{op: transport.OpStructure, method: http.MethodPost, store: "s1"}},
		{path: "/v4/spreadsheets/s1/values:batchGet", want: route{op: transport.OpBatchRead, method: http.MethodGet, store: "s1"}},
		{path: "/v4/spreadsheets/s1/values:batchClear", want: route{op: transport.OpBatchClear, method: http.MethodPost, store: "s1"}},
		{path: "/v4/spreadsheets/s1/values:batchUpdate", want: route{op: transport.OpBatchWrite, method: http.MethodPost, store: "s1"}},
		{path: "/v4/spreadsheets/s1/values/Orders!A1:B", want: route{store: "s1", rng: "Orders!A1:B"}},
		{path: "/v4/spreadsheets/s1/values/%27Line%20Items%27!A1:C:append", want: route{op: transport.OpAppend, method: http.MethodPost, store: "s1", rng: "'Line Items'!A1:C"}},
		{path: "/v4/spreadsheets/s1/values/Orders!A2:Z:clear", want: route{op: transport.OpClear, method: http.MethodPost, store: "s1", rng: "Orders!A2:Z"}},
		{path: "/v3/spreadsheets/s1", wantErr: true},
		{path: "/v4/spreadsheets/s1/values/", wantErr: true},
		{path: "/v4/spreadsheets/s1/other", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := parseRoute(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRoute: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseRoute = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}, APIKeys: []string{"key"}})
	srv := httptest.NewServer(DefaultMiddleware(false)(NewStoreHandler(engine)))
	t.Cleanup(srv.Close)
	return srv
}

func decodeError(t *testing.T, resp *http.Response) httptransport.ErrorBody {
	t.Helper()
	defer resp.Body.Close()
	var body httptransport.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestStoreHandler_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{"unknown path", http.MethodGet, "/elsewhere", "", "Bearer tok", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/v4/spreadsheets/s1/values/A!A1", "", "Bearer tok", http.StatusMethodNotAllowed},
		{"wrong method on fixed route", http.MethodGet, "/v4/spreadsheets/s1:batchUpdate", "", "Bearer tok", http.StatusMethodNotAllowed},
		{"bad body", http.MethodPut, "/v4/spreadsheets/s1/values/A!A1", "{", "Bearer tok", http.StatusBadRequest},
		{"missing store", http.MethodGet, "/v4/spreadsheets/nope", "", "Bearer tok", http.StatusNotFound},
		{"bad token", http.MethodGet, "/v4/spreadsheets/nope", "", "Bearer wrong", http.StatusUnauthorized},
		{"no credential", http.MethodGet, "/v4/spreadsheets/nope", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			req.Header.Set(headerRequestID, "req-1")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body := decodeError(t, resp)
			if body.Error.Code != tt.want || body.Error.Message == "" {
				t.Errorf("error body = %+v", body)
			}
			if body.RequestID != "req-1" {
				t.Errorf("request id = %q, want req-1", body.RequestID)
			}
		})
	}
}

func TestStoreHandler_ReadOnlyKeyCannotWrite(t *testing.T) {
	srv := newTestServer(t)

	create, err := http.NewRequest(http.MethodPost, srv.URL+APIPrefix,
		strings.NewReader(`{"properties":{"title":"t"},"sheets":[{"properties":{"title":"A"}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	create.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(create)
	if err != nil {
		t.Fatal(err)
	}
	var sheet httptransport.Spreadsheet
	json.NewDecoder(resp.Body).Decode(&sheet)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || sheet.SpreadsheetID == "" {
		t.Fatalf("create: status %d, body %+v", resp.StatusCode, sheet)
	}

	read, err := http.Get(srv.URL + APIPrefix + "/" + sheet.SpreadsheetID + "/values/A!A1:B?key=key")
	if err != nil {
		t.Fatal(err)
	}
	read.Body.Close()
	if read.StatusCode != http.StatusOK {
		t.Errorf("read with api key: status %d", read.StatusCode)
	}

	write, err := http.NewRequest(http.MethodPut, srv.URL+APIPrefix+"/"+sheet.SpreadsheetID+"/values/A!A1?key=key",
		strings.NewReader(`{"values":[["x"]]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(write)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("write with api key: status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRequestMetadataMiddleware(t *testing.T) {
	var gotRequest, gotCorrelation string
	h := RequestMetadataMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = GetRequestID(r.Context())
		gotCorrelation = GetCorrelationID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if gotRequest == "" || gotCorrelation != gotRequest {
			t.Errorf("request=%q correlation=%q", gotRequest, gotCorrelation)
		}
		if rec.Header().Get(headerRequestID) != gotRequest {
			t.Errorf("response header %q, want %q", rec.Header().Get(headerRequestID), gotRequest)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, "r1")
		req.Header.Set(headerCorrelationID, "c1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if gotRequest != "r1" || gotCorrelation != "c1" {
			t.Errorf("request=%q correlation=%q", gotRequest, gotCorrelation)
		}
		if rec.Header().Get(headerCorrelationID) != "c1" {
			t.Errorf("correlation header = %q", rec.Header().Get(headerCorrelationID))
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	panics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	tests := []struct {
		name    string
		handler http.Handler
	}{
		{"default chain", DefaultMiddleware(true)(panics)},
		{"recovery outside metadata", ChainMiddleware(RecoveryMiddleware, RequestMetadataMiddleware)(panics)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(headerRequestID, "req-7")
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var body httptransport.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Status != httptransport.StatusText(http.StatusInternalServerError) {
				t.Errorf("status text = %q", body.Error.Status)
			}
			if body.RequestID != "req-7" {
				t.Errorf("request id = %q, want req-7", body.RequestID)
			}
		})
	}
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := ChainMiddleware(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,c,handler" {
		t.Errorf("order = %v", order)
	}
}
