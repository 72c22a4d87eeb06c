package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Selectable models.
	Models []ModelDescriptor `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// AcceptedResponse acknowledges a request queued for the controller.
type AcceptedResponse struct {
	// example: generate
	Type RequestType `json:"type" example:"generate"`
	// example: true
	Accepted bool `json:"accepted" example:"true"`
}

// ProgressStatus mirrors one in-flight file download.
type ProgressStatus struct {
	// example: model.gguf
	File string `json:"file,omitempty" example:"model.gguf"`
	// Display label.
	// example: model.gguf (50.00% of 1.0 GiB)
	Text string `json:"text" example:"model.gguf (50.00% of 1.0 GiB)"`
	// Fraction in [0,1].
	// example: 0.5
	Progress float64 `json:"progress" example:"0.5"`
	// example: 1073741824
	Total int64 `json:"total,omitempty" example:"1073741824"`
	Done  bool  `json:"done,omitempty"`
}

// ModelStatus is the load state of one model id.
type ModelStatus struct {
	// example: qwen3-0_6b
	ModelID string `json:"model_id" example:"qwen3-0_6b"`
	// One of not_loaded, loading, loaded, warm, ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Last warm-up duration in milliseconds.
	// example: 812.5
	CompilationTime *float64 `json:"compilation_time_ms,omitempty" example:"812.5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Configured model id.
	// example: qwen3-0_6b
	ModelID string `json:"model_id,omitempty" example:"qwen3-0_6b"`
	// example: q4f16
	DataType string `json:"data_type,omitempty" example:"q4f16"`
	// example: webgpu
	Device string `json:"device,omitempty" example:"webgpu"`
	// Whether model handles are currently held.
	Loaded bool `json:"loaded"`
	// Whether a load or generate is in flight.
	Busy bool `json:"busy"`
	// Length of the retained key-value cache (0 = empty).
	CacheLen int `json:"cache_len"`
	// Content-delivery host selected at startup.
	// example: huggingface.co
	RemoteHost string `json:"remote_host,omitempty" example:"huggingface.co"`
	// Per-model load states.
	Models []ModelStatus `json:"models"`
	// In-flight downloads.
	Progress []ProgressStatus `json:"progress"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Last error observed by the controller (if any).
	LastError string `json:"last_error,omitempty"`
}
