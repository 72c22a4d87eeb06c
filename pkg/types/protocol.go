package types

import (
	"errors"
	"fmt"
	"strings"
)

// RequestType names a host -> controller message.
type RequestType string

const (
	RequestSetConfig RequestType = "setConfig"
	RequestLoad      RequestType = "load"
	RequestGenerate  RequestType = "generate"
	RequestInterrupt RequestType = "interrupt"
	RequestReset     RequestType = "reset"
)

// Request is a host -> controller message. Only the fields relevant to Type are read.
type Request struct {
	Type RequestType `json:"type" example:"generate"`
	// setConfig
	ModelID  string `json:"model_id,omitempty" example:"qwen3-0_6b"`
	DataType string `json:"data_type,omitempty" example:"q4f16"`
	Device   string `json:"device,omitempty" example:"webgpu"`
	// generate
	Data *GenerateRequest `json:"data,omitempty"`
}

// GenerateRequest is the payload of a generate message. It is built fresh per
// user submission and never retained by the controller.
type GenerateRequest struct {
	Messages            []ChatMessage `json:"messages"`
	ReasonEnabled       bool          `json:"reasonEnabled"`
	SystemPromptEnabled bool          `json:"systemPromptEnabled,omitempty"`
	SystemPromptText    string        `json:"systemPromptText,omitempty"`
}

// ErrInvalidRequest is wrapped by every Validate failure.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate checks the structural shape of a request. It does not consult the
// model table; unknown model ids are handled by the controller.
func (r Request) Validate() error {
	switch r.Type {
	case RequestSetConfig:
		if strings.TrimSpace(r.ModelID) == "" {
			return invalid("setConfig requires model_id")
		}
	case RequestLoad, RequestInterrupt, RequestReset:
	case RequestGenerate:
		if r.Data == nil {
			return invalid("generate requires data")
		}
		return r.Data.Validate()
	case "":
		return invalid("missing type")
	default:
		return invalid("unknown type %q", r.Type)
	}
	return nil
}

// Validate checks roles and that the conversation is not empty.
func (g GenerateRequest) Validate() error {
	if len(g.Messages) == 0 {
		return invalid("messages must not be empty")
	}
	for i, m := range g.Messages {
		if !m.Role.Valid() {
			return invalid("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// Status names a controller -> host event.
type Status string

const (
	StatusInit     Status = "init"
	StatusLoading  Status = "loading"
	StatusInitiate Status = "initiate"
	StatusProgress Status = "progress"
	StatusDone     Status = "done"
	StatusLoaded   Status = "loaded"
	StatusWarm     Status = "warm"
	StatusReady    Status = "ready"
	StatusStart    Status = "start"
	StatusUpdate   Status = "update"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusReset    Status = "reset"
)

// FileScoped reports whether events with this status are keyed by file rather
// than by model id, and may therefore arrive without a model id.
func (s Status) FileScoped() bool {
	return s == StatusInitiate || s == StatusProgress || s == StatusDone
}

// Generation states reported on update/complete events.
const (
	StateThinking  = "thinking"
	StateAnswering = "answering"
)

// Event is a controller -> host message. Optional numeric fields are pointers
// so that zero values survive the round trip while absent values stay absent.
type Event struct {
	Status  Status `json:"status"`
	ModelID string `json:"model_id,omitempty"`
	// Informational text (loading / warm messages).
	Data string `json:"data,omitempty"`

	// File download progress.
	Name     string   `json:"name,omitempty"`
	File     string   `json:"file,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Loaded   int64    `json:"loaded,omitempty"`
	Total    int64    `json:"total,omitempty"`

	// Warm-up duration in milliseconds.
	CompilationTime *float64 `json:"compilationTime,omitempty"`

	// Generation.
	Output       string   `json:"output,omitempty"`
	TextDelta    string   `json:"textDelta,omitempty"`
	TPS          *float64 `json:"tps,omitempty"`
	NumTokens    int      `json:"numTokens,omitempty"`
	TTFT         *float64 `json:"ttft,omitempty"`
	State        string   `json:"state,omitempty"`
	MessageIndex *int     `json:"messageIndex,omitempty"`
	Channel      string   `json:"channel,omitempty"`

	RemoteHost string `json:"remoteHost,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Float returns a pointer to v, for optional event fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional event fields.
func Int(v int) *int { return &v }
