package types

import "time"

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ResponseFormat describes how a model family lays out its generated text.
type ResponseFormat string

const (
	// FormatPlain is free text, optionally with <think> segments.
	FormatPlain ResponseFormat = "plain"
	// FormatHarmony is the multi-channel structured format parsed by internal/harmony.
	FormatHarmony ResponseFormat = "harmony"
)

// Sampling holds default generation parameters for a model.
type Sampling struct {
	// Whether to sample (false = greedy decoding).
	DoSample bool `json:"do_sample" yaml:"do_sample" toml:"do_sample"`
	// Top-K candidates considered when sampling; 0 leaves the engine default.
	// example: 20
	TopK int `json:"top_k,omitempty" yaml:"top_k" toml:"top_k" example:"20"`
	// Sampling temperature; 0 leaves the engine default.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature" toml:"temperature" example:"0.7"`
	// Maximum number of new tokens per turn.
	// example: 1024
	MaxNewTokens int `json:"max_new_tokens,omitempty" yaml:"max_new_tokens" toml:"max_new_tokens" example:"1024"`
}

// ModelDescriptor is an immutable entry of the model table.
type ModelDescriptor struct {
	// Stable identifier used by the protocol.
	// example: qwen3-0_6b
	ID string `json:"id" yaml:"id" toml:"id" example:"qwen3-0_6b"`
	// Human-friendly name.
	// example: Qwen3 0.6B
	Name string `json:"name" yaml:"name" toml:"name" example:"Qwen3 0.6B"`
	// Short description shown next to the name.
	Description string `json:"desc,omitempty" yaml:"desc" toml:"desc"`
	// Repository identifier understood by the model engine.
	// example: Qwen/Qwen3-0.6B-GGUF
	Model string `json:"model" yaml:"model" toml:"model" example:"Qwen/Qwen3-0.6B-GGUF"`
	// Weight file inside the repository (GGUF engines only).
	// example: Qwen3-0.6B-Q8_0.gguf
	File string `json:"file,omitempty" yaml:"file" toml:"file" example:"Qwen3-0.6B-Q8_0.gguf"`
	// Quantization / data type.
	// example: q4f16
	DataType string `json:"data_type" yaml:"data_type" toml:"data_type" example:"q4f16"`
	// Chat template family used to render conversations.
	// example: chatml
	ChatTemplate string `json:"chat_template" yaml:"chat_template" toml:"chat_template" example:"chatml"`
	// Layout of generated text.
	ResponseFormat ResponseFormat `json:"response_format,omitempty" yaml:"response_format" toml:"response_format"`

	SupportsThinkingTag    bool `json:"thinking_tag_support" yaml:"thinking_tag_support" toml:"thinking_tag_support"`
	UsesKVCache            bool `json:"uses_kv_cache" yaml:"uses_kv_cache" toml:"uses_kv_cache"`
	UsesExternalDataFormat bool `json:"use_external_data_format" yaml:"use_external_data_format" toml:"use_external_data_format"`

	Sampling     Sampling `json:"sampling" yaml:"sampling" toml:"sampling"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt" toml:"system_prompt"`
}

// Structured reports whether generated text must go through the response parser.
func (d ModelDescriptor) Structured() bool { return d.ResponseFormat == FormatHarmony }

// ChatMessage is one turn of a conversation as held by the host UI.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Performance annotations filled in for assistant turns.
	TPS       *float64 `json:"tps,omitempty"`
	NumTokens *int     `json:"numTokens,omitempty"`
	TTFT      *float64 `json:"ttft,omitempty"`
	State     string   `json:"state,omitempty"`
}
