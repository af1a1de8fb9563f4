package bridge

// Request lifecycle events carried by HttpRequested, in delivery order.
const (
	EventLoadStart        = "loadstart"
	EventProgress         = "progress"
	EventReadyStateChange = "readystatechange"
	EventLoad             = "load"
	EventError            = "error"
	EventTimeout          = "timeout"
	EventAbort            = "abort"
	EventLoadEnd          = "loadend"
)

// ResTypeBinary marks a response body sent as a base64 data URL.
const ResTypeBinary = "arraybuffer"

// Body is an encoded request body.
type Body struct {
	Data string `json:"data"`
	// Base64 is set when Data holds base64 encoded bytes.
	Base64      bool   `json:"base64,omitempty"`
	ContentType string `json:"type,omitempty"`
}

// HTTPRequest is the HttpRequest payload.
type HTTPRequest struct {
	ID               int64             `json:"id"`
	Anonymous        bool              `json:"anonymous,omitempty"`
	Method           string            `json:"method,omitempty"`
	URL              string            `json:"url"`
	User             string            `json:"user,omitempty"`
	Password         string            `json:"password,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Timeout          int64             `json:"timeout,omitempty"` // milliseconds
	OverrideMimeType string            `json:"overrideMimeType,omitempty"`
	ResponseType     string            `json:"responseType,omitempty"`
	Data             *Body             `json:"data,omitempty"`
}

// HTTPEvent is one HttpRequested message.
type HTTPEvent struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	// ResType is ResTypeBinary when Data.Response is a data URL.
	ResType string        `json:"resType,omitempty"`
	Data    HTTPEventData `json:"data"`
}

// HTTPEventData mirrors the XMLHttpRequest state at the time of an event.
type HTTPEventData struct {
	ReadyState       int    `json:"readyState"`
	Status           int    `json:"status"`
	StatusText       string `json:"statusText,omitempty"`
	ResponseHeaders  string `json:"responseHeaders,omitempty"`
	FinalURL         string `json:"finalUrl,omitempty"`
	Response         string `json:"response,omitempty"`
	LengthComputable bool   `json:"lengthComputable,omitempty"`
	Loaded           int64  `json:"loaded,omitempty"`
	Total            int64  `json:"total,omitempty"`
	Error            string `json:"error,omitempty"`
}
