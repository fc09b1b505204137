package protocol

const (
	// HeaderAPIKey carries the caller identity on both transports.
	HeaderAPIKey = "X-API-Key"

	// CloseSessionError is the WebSocket close code used for a missing
	// credential and for a session discarded after a timeout.
	CloseSessionError = 4000

	ReasonMissingKey = "API Key is required"
	ReasonTimedOut   = "Execution timed out"

	TypeExecute = "execute"
	TypeRelease = "release"

	ResultReleased = "released"
	ResultUnknown  = "Unknown request type"
)

// Status is the outcome flag of a WebSocket response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Request is one of Execute or Release.
type Request interface {
	Type() string
}

// Execute asks for code to run in the caller's session.
type Execute struct {
	Code  string
	Files []string
	// Timeout in seconds; zero means the server default.
	Timeout int
}

func (Execute) Type() string { return TypeExecute }

// Release asks the server to discard the caller's session.
type Release struct{}

func (Release) Type() string { return TypeRelease }

// Response is the reply to every WebSocket request.
type Response struct {
	Result string `json:"result"`
	Status Status `json:"status"`
}

// OK reports whether the response carries a success status.
func (r Response) OK() bool { return r.Status == StatusSuccess }

// ExecuteBody is the JSON body of POST /execute.
type ExecuteBody struct {
	Code    *string  `json:"code"`
	Files   []string `json:"files,omitempty"`
	Timeout *int     `json:"timeout,omitempty"`
}

// ExecuteReply is the success body of POST /execute.
type ExecuteReply struct {
	Result string `json:"result"`
}

// ErrorReply is the error body of every HTTP endpoint.
type ErrorReply struct {
	Detail string `json:"detail"`
}

// HealthReply is the body of GET /health.
type HealthReply struct {
	Status string `json:"status"`
}

// envelope is the wire shape of every WebSocket request.
type envelope struct {
	Type    *string  `json:"type"`
	Code    *string  `json:"code,omitempty"`
	Files   []string `json:"files,omitempty"`
	Timeout *int     `json:"timeout,omitempty"`
}
