package httptransport

import "github.com/sheetbase/sheetbase/pkg/transport"

// JSON bodies of the REST API. Field names follow the Sheets v4 values and
// spreadsheets resources so the client can also talk to compatible
// services.

// ValueRange is a block of values anchored at a range.
type ValueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values,omitempty"`
}

// BatchGetResponse answers values:batchGet.
type BatchGetResponse struct {
	SpreadsheetID string       `json:"spreadsheetId"`
	ValueRanges   []ValueRange `json:"valueRanges"`
}

// UpdateResponse answers a values update.
type UpdateResponse struct {
	SpreadsheetID string `json:"spreadsheetId"`
	UpdatedRange  string `json:"updatedRange,omitempty"`
}

// AppendResponse answers values:append.
type AppendResponse struct {
	SpreadsheetID string         `json:"spreadsheetId"`
	Updates       UpdateResponse `json:"updates"`
}

// BatchClearRequest is the body of values:batchClear.
type BatchClearRequest struct {
	Ranges []string `json:"ranges"`
}

// BatchUpdateValuesRequest is the body of values:batchUpdate.
type BatchUpdateValuesRequest struct {
	ValueInputOption string       `json:"valueInputOption"`
	Data             []ValueRange `json:"data"`
}

// BatchUpdateRequest is the body of a structural batchUpdate.
type BatchUpdateRequest struct {
	Requests []transport.StructuralRequest `json:"requests"`
}

// Spreadsheet is a store with its tabs.
type Spreadsheet struct {
	SpreadsheetID string                `json:"spreadsheetId,omitempty"`
	Properties    SpreadsheetProperties `json:"properties"`
	Sheets        []Sheet               `json:"sheets,omitempty"`
}

// SpreadsheetProperties holds store-level properties.
type SpreadsheetProperties struct {
	Title string `json:"title,omitempty"`
}

// Sheet wraps tab properties.
type Sheet struct {
	Properties SheetProperties `json:"properties"`
}

// SheetProperties describes one tab.
type SheetProperties struct {
	SheetID        int64          `json:"sheetId"`
	Title          string         `json:"title"`
	Index          int            `json:"index"`
	GridProperties GridProperties `json:"gridProperties"`
}

// GridProperties is the size of a tab.
type GridProperties struct {
	RowCount    int `json:"rowCount"`
	ColumnCount int `json:"columnCount"`
}

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail carries the status and message of a failed call.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// SheetsFromTabs converts tab properties to their JSON form.
func SheetsFromTabs(tabs []transport.TabProperties) []Sheet {
	sheets := make([]Sheet, len(tabs))
	for i, t := range tabs {
		sheets[i] = Sheet{Properties: SheetProperties{
			SheetID: t.TabID,
			Title:   t.Title,
			Index:   t.Index,
			GridProperties: GridProperties{
				RowCount:    t.Rows,
				ColumnCount: t.Columns,
			},
		}}
	}
	return sheets
}

// TabsFromSheets converts JSON sheets back to tab properties.
func TabsFromSheets(sheets []Sheet) []transport.TabProperties {
	tabs := make([]transport.TabProperties, len(sheets))
	for i, s := range sheets {
		p := s.Properties
		tabs[i] = transport.TabProperties{
			TabID:   p.SheetID,
			Title:   p.Title,
			Index:   p.Index,
			Rows:    p.GridProperties.RowCount,
			Columns: p.GridProperties.ColumnCount,
		}
	}
	return tabs
}

// StatusText names an HTTP status the way Google APIs do.
func StatusText(code int) string {
	switch code {
	case 400:
		return "INVALID_ARGUMENT"
	case 401:
		return "UNAUTHENTICATED"
	case 403:
		return "PERMISSION_DENIED"
	case 404:
		return "NOT_FOUND"
	case 429:
		return "RESOURCE_EXHAUSTED"
	case 503:
		return "UNAVAILABLE"
	}
	if code >= 500 {
		return "INTERNAL"
	}
	return ""
}
