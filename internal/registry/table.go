package registry

import "chatd/pkg/types"

const defaultSystemPrompt = "You are a helpful assistant."

// builtin is the model table compiled into the binary. Entries are never
// mutated after start-up; callers receive copies.
var builtin = []types.ModelDescriptor{
	{
		ID:           "phi-3_5-mini",
		Name:         "Phi-3.5 Mini",
		Description:  "Small language model",
		Model:        "bartowski/Phi-3.5-mini-instruct-GGUF",
		File:         "Phi-3.5-mini-instruct-Q4_K_M.gguf",
		DataType:     "q4f16",
		ChatTemplate: "phi3",
		Sampling:     types.Sampling{MaxNewTokens: 1024},
		SystemPrompt: defaultSystemPrompt,
	},
	{
		ID:                     "phi-4-mini-instruct",
		Name:                   "Phi-4 Mini",
		Description:            "Small language model",
		Model:                  "unsloth/Phi-4-mini-instruct-GGUF",
		File:                   "Phi-4-mini-instruct-Q4_K_M.gguf",
		DataType:               "q4f16",
		ChatTemplate:           "phi3",
		UsesExternalDataFormat: true,
		Sampling:               types.Sampling{MaxNewTokens: 1024},
		SystemPrompt:           defaultSystemPrompt,
	},
	{
		ID:           "llama_3-2_1b",
		Name:         "Llama 3.2 1B",
		Description:  "Compact instruction-tuned model",
		Model:        "bartowski/Llama-3.2-1B-Instruct-GGUF",
		File:         "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		DataType:     "q4f16",
		ChatTemplate: "llama3",
		Sampling:     types.Sampling{MaxNewTokens: 1024},
		SystemPrompt: defaultSystemPrompt,
	},
	{
		ID:           "gemma_3_1b_it_gqa",
		Name:         "Gemma 3 1B",
		Description:  "Lightweight instruction-tuned model",
		Model:        "ggml-org/gemma-3-1b-it-GGUF",
		File:         "gemma-3-1b-it-Q4_K_M.gguf",
		DataType:     "q4f16",
		ChatTemplate: "gemma",
		Sampling:     types.Sampling{MaxNewTokens: 1024},
	},
	{
		ID:                  "qwen3-0_6b",
		Name:                "Qwen3 0.6B",
		Description:         "Reasoning model with multi-turn cache",
		Model:               "Qwen/Qwen3-0.6B-GGUF",
		File:                "Qwen3-0.6B-Q8_0.gguf",
		DataType:            "q4f16",
		ChatTemplate:        "qwen3",
		SupportsThinkingTag: true,
		UsesKVCache:         true,
		Sampling:            types.Sampling{DoSample: true, TopK: 20, Temperature: 0.7, MaxNewTokens: 2048},
		SystemPrompt:        defaultSystemPrompt,
	},
	{
		ID:                  "qwen3-4b",
		Name:                "Qwen3 4B",
		Description:         "Reasoning model",
		Model:               "Qwen/Qwen3-4B-GGUF",
		File:                "Qwen3-4B-Q4_K_M.gguf",
		DataType:            "q4f16",
		ChatTemplate:        "qwen3",
		SupportsThinkingTag: true,
		Sampling:            types.Sampling{DoSample: true, TopK: 20, Temperature: 0.7, MaxNewTokens: 2048},
		SystemPrompt:        defaultSystemPrompt,
	},
	{
		ID:           "deepseek-r1-distill-qwen-1_5b",
		Name:         "DeepSeek-R1-Distill-Qwen 1.5B",
		Description:  "Distilled reasoning model",
		Model:        "bartowski/DeepSeek-R1-Distill-Qwen-1.5B-GGUF",
		File:         "DeepSeek-R1-Distill-Qwen-1.5B-Q4_K_M.gguf",
		DataType:     "q4f16",
		ChatTemplate: "chatml",
		Sampling:     types.Sampling{DoSample: true, Temperature: 0.6, MaxNewTokens: 2048},
	},
	{
		ID:           "lfm2_1_2b",
		Name:         "LFM2 1.2B",
		Description:  "Hybrid on-device model",
		Model:        "LiquidAI/LFM2-1.2B-GGUF",
		File:         "LFM2-1.2B-Q4_K_M.gguf",
		DataType:     "q4",
		ChatTemplate: "chatml",
		Sampling:     types.Sampling{MaxNewTokens: 1024},
		SystemPrompt: defaultSystemPrompt,
	},
	{
		ID:                  "smollm3-3b",
		Name:                "SmolLM3 3B",
		Description:         "Small reasoning model",
		Model:               "ggml-org/SmolLM3-3B-GGUF",
		File:                "SmolLM3-Q4_K_M.gguf",
		DataType:            "q4f16",
		ChatTemplate:        "chatml",
		SupportsThinkingTag: true,
		Sampling:            types.Sampling{DoSample: true, Temperature: 0.6, MaxNewTokens: 2048},
	},
	{
		ID:             "gpt-oss-20b",
		Name:           "gpt-oss 20B",
		Description:    "Open-weight model with channelled responses",
		Model:          "ggml-org/gpt-oss-20b-GGUF",
		File:           "gpt-oss-20b-mxfp4.gguf",
		DataType:       "q4f16",
		ChatTemplate:   "harmony",
		ResponseFormat: types.FormatHarmony,
		Sampling:       types.Sampling{MaxNewTokens: 2048},
		SystemPrompt:   defaultSystemPrompt,
	},
}

// Table is a read-only lookup over model descriptors.
type Table struct {
	models []types.ModelDescriptor
	byID   map[string]int
}

// New builds a table from descriptors. Later entries with a duplicate id
// replace earlier ones in place, so an overlay can redefine a builtin model.
func New(models []types.ModelDescriptor) *Table {
	t := &Table{byID: make(map[string]int, len(models))}
	for _, m := range models {
		if m.ResponseFormat == "" {
			m.ResponseFormat = types.FormatPlain
		}
		if i, ok := t.byID[m.ID]; ok {
			t.models[i] = m
			continue
		}
		t.byID[m.ID] = len(t.models)
		t.models = append(t.models, m)
	}
	return t
}

// Default returns the builtin table.
func Default() *Table { return New(builtin) }

// Lookup returns the descriptor for id.
func (t *Table) Lookup(id string) (types.ModelDescriptor, bool) {
	i, ok := t.byID[id]
	if !ok {
		return types.ModelDescriptor{}, false
	}
	return t.models[i], true
}

// List returns a copy of all descriptors in table order.
func (t *Table) List() []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, len(t.models))
	copy(out, t.models)
	return out
}
