package entity

// Kind classifies a Result so callers can pick a protocol status without
// reading the error text.
type Kind string

const (
	KindOK          Kind = "ok"
	KindNotFound    Kind = "not_found"
	KindInvalid     Kind = "invalid"
	KindUnavailable Kind = "unavailable"
	KindStorage     Kind = "storage"
)

// Result is the envelope every Store operation returns.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    Kind   `json:"-"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Success
}

func success(data any, message string) Result {
	return Result{Success: true, Data: data, Message: message, Kind: KindOK}
}

func failure(kind Kind, msg string) Result {
	return Result{Success: false, Error: msg, Kind: kind}
}

// Page is the data of a successful List.
type Page struct {
	Items  []Record `json:"items"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Stats is the data of a successful Stats call.
type Stats struct {
	TotalCount  int64 `json:"total_count"`
	ActiveCount int64 `json:"active_count"`
}
