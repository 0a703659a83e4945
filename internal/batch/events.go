package batch

// Wire events mirror what browser clients consume over the SSE stream.
// Field names are part of the public contract and must not change.

// Event type discriminators.
const (
	EventInit     = "init"
	EventUpdate   = "update"
	EventComplete = "complete"
	EventError    = "error"
)

// InitEvent is sent once after column detection, before any row result.
type InitEvent struct {
	Type      string   `json:"type"`
	TotalRows int      `json:"total_rows"`
	URLColumn string   `json:"url_column"`
	Columns   []string `json:"columns"`
	RowsData  []Row    `json:"rows_data"`
}

// UpdateEvent is sent once per completed row, in completion order.
type UpdateEvent struct {
	Type        string `json:"type"`
	Row         int    `json:"row"`
	Total       int    `json:"total"`
	Data        Row    `json:"data"`
	Status      string `json:"status"`
	EmailsCount int    `json:"emails_count"`
	Error       string `json:"error,omitempty"`
}

// CompleteEvent carries the fully assembled output document and ends
// the stream.
type CompleteEvent struct {
	Type string `json:"type"`
	CSV  string `json:"csv"`
}

// ErrorEvent reports a whole-job failure and ends the stream.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newInitEvent(b Batch, urlColumn string) InitEvent {
	return InitEvent{
		Type:      EventInit,
		TotalRows: b.Size(),
		URLColumn: urlColumn,
		Columns:   b.Columns,
		RowsData:  b.Rows,
	}
}

func newUpdateEvent(total int, outcome RowOutcome) UpdateEvent {
	evt := UpdateEvent{
		Type:        EventUpdate,
		Row:         outcome.Ordinal,
		Total:       total,
		Data:        outcome.Row,
		Status:      string(outcome.Status),
		EmailsCount: len(outcome.Emails),
	}
	if outcome.Err != "" {
		evt.Error = outcome.Err
	}
	return evt
}
