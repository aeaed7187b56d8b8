package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/transport/httptransport"
)

// APIPrefix is the path prefix of every store route.
const APIPrefix = "/v4/spreadsheets"

const maxBodyBytes = 32 << 20

// StoreHandler serves the REST API on top of a transport, normally the
// in-memory backend engine:
//
//	POST /v4/spreadsheets                          create store
//	GET  /v4/spreadsheets/{id}                     metadata
//	POST /v4/spreadsheets/{id}:batchUpdate         structural changes
//	GET  /v4/spreadsheets/{id}/values/{range}      read
//	PUT  /v4/spreadsheets/{id}/values/{range}      write
//	POST /v4/spreadsheets/{id}/values/{range}:append
//	POST /v4/spreadsheets/{id}/values/{range}:clear
//	GET  /v4/spreadsheets/{id}/values:batchGet?ranges=...
//	POST /v4/spreadsheets/{id}/values:batchClear
//	POST /v4/spreadsheets/{id}/values:batchUpdate
type StoreHandler struct {
	backend transport.Transport
}

// NewStoreHandler creates a handler that forwards calls to backend.
func NewStoreHandler(backend transport.Transport) *StoreHandler {
	return &StoreHandler{backend: backend}
}

// route is a parsed request path.
type route struct {
	op     transport.Op
	method string
	store  string
	rng    string
}

// ServeHTTP handles one store API request.
func (h *StoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	rt, err := parseRoute(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), requestID)
		return
	}
	if rt.method == "" {
		// GET reads and PUT writes share a path.
		switch r.Method {
		case http.MethodGet:
			rt.op = transport.OpRead
		case http.MethodPut:
			rt.op = transport.OpWrite
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
			return
		}
	} else if r.Method != rt.method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	call := &transport.Call{
		Op:     rt.op,
		Store:  rt.store,
		Range:  rt.rng,
		Token:  bearerToken(r),
		APIKey: r.URL.Query().Get("key"),
	}
	if err := decodeCall(w, r, call); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	res, err := h.backend.Do(r.Context(), call)
	if err != nil {
		writeCallError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, encodeResult(call, res))
}

func parseRoute(escaped string) (route, error) {
	rest, ok := strings.CutPrefix(escaped, APIPrefix)
	if !ok {
		return route{}, fmt.Errorf("unknown path %s", escaped)
	}
	if rest == "" || rest == "/" {
		return route{op: transport.OpCreateStore, method: http.MethodPost}, nil
	}
	rest = strings.TrimPrefix(rest, "/")

	storePart, tail, hasTail := strings.Cut(rest, "/")
	if !hasTail {
		if id, ok := strings.CutSuffix(storePart, ":batchUpdate"); ok {
			return newRoute(transport.OpStructure, http.MethodPost, id, "")
		}
		return newRoute(transport.OpMetadata, http.MethodGet, storePart, "")
	}

	switch tail {
	case "values:batchGet":
		return newRoute(transport.OpBatchRead, http.MethodGet, storePart, "")
	case "values:batchClear":
		return newRoute(transport.OpBatchClear, http.MethodPost, storePart, "")
	case "values:batchUpdate":
		return newRoute(transport.OpBatchWrite, http.MethodPost, storePart, "")
	}

	rng, ok := strings.CutPrefix(tail, "values/")
	if !ok || rng == "" {
		return route{}, fmt.Errorf("unknown path %s", escaped)
	}
	if base, ok := strings.CutSuffix(rng, ":append"); ok {
		return newRoute(transport.OpAppend, http.MethodPost, storePart, base)
	}
	if base, ok := strings.CutSuffix(rng, ":clear"); ok {
		return newRoute(transport.OpClear, http.MethodPost, storePart, base)
	}
	return newRoute("", "", storePart, rng)
}

func newRoute(op transport.Op, method, store, rng string) (route, error) {
	id, err := url.PathUnescape(store)
	if err != nil || id == "" {
		return route{}, fmt.Errorf("invalid store id %q", store)
	}
	rt := route{op: op, method: method, store: id}
	if rng != "" {
		if rt.rng, err = url.PathUnescape(rng); err != nil {
			return route{}, fmt.Errorf("invalid range %q", rng)
		}
	}
	return rt, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// decodeCall fills the call from the request body and query.
func decodeCall(w http.ResponseWriter, r *http.Request, call *transport.Call) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)

	switch call.Op {
	case transport.OpWrite, transport.OpAppend:
		var vr httptransport.ValueRange
		if err := dec.Decode(&vr); err != nil {
			return err
		}
		call.Values = vr.Values
	case transport.OpBatchRead:
		call.Ranges = r.URL.Query()["ranges"]
	case transport.OpBatchClear:
		var req httptransport.BatchClearRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		call.Ranges = req.Ranges
	case transport.OpBatchWrite:
		var req httptransport.BatchUpdateValuesRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		for _, vr := range req.Data {
			call.Data = append(call.Data, transport.ValueRange{Range: vr.Range, Values: vr.Values})
		}
	case transport.OpStructure:
		var req httptransport.BatchUpdateRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		call.Requests = req.Requests
	case transport.OpCreateStore:
		var req httptransport.Spreadsheet
		if err := dec.Decode(&req); err != nil {
			return err
		}
		call.Title = req.Properties.Title
		for _, s := range req.Sheets {
			call.Tabs = append(call.Tabs, s.Properties.Title)
		}
	}
	return nil
}

func encodeResult(call *transport.Call, res *transport.Result) any {
	switch call.Op {
	case transport.OpRead:
		return httptransport.ValueRange{Range: call.Range, MajorDimension: "ROWS", Values: res.Values}
	case transport.OpBatchRead:
		resp := httptransport.BatchGetResponse{SpreadsheetID: call.Store, ValueRanges: make([]httptransport.ValueRange, len(res.ValueRanges))}
		for i, vr := range res.ValueRanges {
			resp.ValueRanges[i] = httptransport.ValueRange{Range: vr.Range, MajorDimension: "ROWS", Values: vr.Values}
		}
		return resp
	case transport.OpWrite:
		return httptransport.UpdateResponse{SpreadsheetID: call.Store, UpdatedRange: res.UpdatedRange}
	case transport.OpAppend:
		return httptransport.AppendResponse{
			SpreadsheetID: call.Store,
			Updates:       httptransport.UpdateResponse{SpreadsheetID: call.Store, UpdatedRange: res.UpdatedRange},
		}
	case transport.OpStructure, transport.OpMetadata, transport.OpCreateStore:
		id := res.StoreID
		if id == "" {
			id = call.Store
		}
		return httptransport.Spreadsheet{SpreadsheetID: id, Sheets: httptransport.SheetsFromTabs(res.Tabs)}
	}
	return struct {
		SpreadsheetID string `json:"spreadsheetId"`
	}{call.Store}
}

func writeCallError(w http.ResponseWriter, err error, requestID string) {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, err.Error(), requestID)
		return
	}
	if se.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(se.RetryAfter.Seconds()+0.5)))
	}
	writeError(w, se.Code, se.Body, requestID)
}
