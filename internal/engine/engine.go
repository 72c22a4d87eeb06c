// Package engine defines the contract between the generation controller and
// a model runtime: acquiring tokenizer/model handles with download progress,
// rendering chat templates, and streaming tokens with cooperative
// cancellation and an optional key-value cache.
package engine

import (
	"context"
	"errors"

	"chatd/pkg/types"
)

// ErrInterrupted is returned by Model.Generate when the cancel token stopped
// generation. It is a notification, not a failure.
var ErrInterrupted = errors.New("generation interrupted")

// Progress statuses reported by Acquire.
const (
	ProgressInitiate = "initiate"
	ProgressDownload = "progress"
	ProgressDone     = "done"
)

// Progress is one file-download callback from the runtime.
type Progress struct {
	Status string
	// Repository the file belongs to.
	Name string
	File string
	// Percentage in [0,100].
	Percent float64
	Loaded  int64
	Total   int64
}

// AcquireOptions selects the variant of a model to load.
type AcquireOptions struct {
	DataType     string
	Device       string
	ExternalData bool
	// Chat template family used by the returned tokenizer.
	Template string
	// OnProgress receives file-download callbacks verbatim. May be nil.
	OnProgress func(Progress)
}

// Ref identifies the weights to acquire.
type Ref struct {
	Model string
	File  string
}

// Handles are the tokenizer/model pair produced by Acquire.
type Handles struct {
	Tokenizer Tokenizer
	Model     Model
}

// Close releases the model.
func (h *Handles) Close() error {
	if h == nil || h.Model == nil {
		return nil
	}
	return h.Model.Close()
}

// Runtime acquires model handles.
type Runtime interface {
	Acquire(ctx context.Context, ref Ref, opts AcquireOptions) (*Handles, error)
}

// TemplateOptions are render-time flags for ApplyChatTemplate.
type TemplateOptions struct {
	AddGenerationPrompt bool
	EnableThinking      bool
}

// Inputs are model-ready inputs produced by a tokenizer.
type Inputs struct {
	Prompt string
	IDs    []int32
}

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	ApplyChatTemplate(msgs []types.ChatMessage, opts TemplateOptions) (Inputs, error)
	Encode(text string, addSpecial bool) ([]int32, error)
	Decode(ids []int32, skipSpecial bool) (string, error)
}

// KVCache is an opaque attention cache returned by one generation and fed
// into the next. Implementations are immutable once returned.
type KVCache interface {
	// Len is the number of cached positions.
	Len() int
}

// CacheLen returns c.Len(), treating nil as empty.
func CacheLen(c KVCache) int {
	if c == nil {
		return 0
	}
	return c.Len()
}

// GenerateOptions carries sampling parameters and per-call state.
type GenerateOptions struct {
	DoSample     bool
	TopK         int
	Temperature  float64
	MaxNewTokens int
	// Cache is the input key-value cache; nil starts from an empty cache.
	Cache KVCache
	// ReturnCache asks the runtime to return the updated cache.
	ReturnCache bool
	// Cancel is checked at every token boundary. May be nil.
	Cancel *CancelToken
}

// TokenEvent is one step of a generation stream.
type TokenEvent struct {
	// IDs of the token(s) produced in this step.
	IDs []int32
	// Piece is the raw text including special tokens.
	Piece string
	// Text is the decoded text with special tokens skipped; it may be empty
	// while a multi-token character is still incomplete.
	Text string
}

// Result summarizes a finished generation.
type Result struct {
	// Sequence holds the generated token ids.
	Sequence []int32
	Cache    KVCache
}

// Model runs generation. onToken is invoked synchronously for every step;
// returning an error stops generation with that error.
type Model interface {
	Generate(ctx context.Context, in Inputs, opts GenerateOptions, onToken func(TokenEvent) error) (Result, error)
	Close() error
}
