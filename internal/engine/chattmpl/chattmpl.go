// Package chattmpl renders conversations into the prompt layouts expected by
// the supported model families.
package chattmpl

import (
	"fmt"
	"strings"

	"chatd/internal/engine"
	"chatd/pkg/types"
)

// Families understood by Render.
const (
	ChatML  = "chatml"
	Qwen3   = "qwen3"
	Phi3    = "phi3"
	Llama3  = "llama3"
	Gemma   = "gemma"
	Harmony = "harmony"
)

// ErrUnknownFamily is returned for an unsupported template name.
type ErrUnknownFamily string

func (e ErrUnknownFamily) Error() string { return "unknown chat template: " + string(e) }

var specials = map[string][]string{
	ChatML:  {"<|im_start|>", "<|im_end|>"},
	Qwen3:   {"<|im_start|>", "<|im_end|>"},
	Phi3:    {"<|system|>", "<|user|>", "<|assistant|>", "<|end|>"},
	Llama3:  {"<|begin_of_text|>", "<|start_header_id|>", "<|end_header_id|>", "<|eot_id|>"},
	Gemma:   {"<bos>", "<start_of_turn>", "<end_of_turn>"},
	Harmony: {"<|start|>", "<|end|>", "<|message|>", "<|channel|>", "<|constrain|>", "<|return|>", "<|call|>"},
}

// Specials returns the special tokens of a family.
func Specials(family string) []string {
	return append([]string(nil), specials[family]...)
}

// Known reports whether family can be rendered.
func Known(family string) bool {
	_, ok := specials[family]
	return ok
}

// Render lays out msgs for family.
func Render(family string, msgs []types.ChatMessage, opts engine.TemplateOptions) (string, error) {
	var b strings.Builder
	switch family {
	case ChatML, Qwen3:
		for _, m := range msgs {
			fmt.Fprintf(&b, "<|im_start|>%s\n%s<|im_end|>\n", m.Role, m.Content)
		}
		if opts.AddGenerationPrompt {
			b.WriteString("<|im_start|>assistant\n")
			if family == Qwen3 && !opts.EnableThinking {
				b.WriteString("<think>\n\n</think>\n\n")
			}
		}
	case Phi3:
		for _, m := range msgs {
			fmt.Fprintf(&b, "<|%s|>\n%s<|end|>\n", m.Role, m.Content)
		}
		if opts.AddGenerationPrompt {
			b.WriteString("<|assistant|>\n")
		}
	case Llama3:
		b.WriteString("<|begin_of_text|>")
		for _, m := range msgs {
			fmt.Fprintf(&b, "<|start_header_id|>%s<|end_header_id|>\n\n%s<|eot_id|>", m.Role, strings.TrimSpace(m.Content))
		}
		if opts.AddGenerationPrompt {
			b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
		}
	case Gemma:
		b.WriteString("<bos>")
		var system string
		for _, m := range msgs {
			switch m.Role {
			case types.RoleSystem:
				system = m.Content
				continue
			case types.RoleAssistant:
				fmt.Fprintf(&b, "<start_of_turn>model\n%s<end_of_turn>\n", strings.TrimSpace(m.Content))
			default:
				content := m.Content
				if system != "" {
					content = system + "\n\n" + content
					system = ""
				}
				fmt.Fprintf(&b, "<start_of_turn>user\n%s<end_of_turn>\n", strings.TrimSpace(content))
			}
		}
		if opts.AddGenerationPrompt {
			b.WriteString("<start_of_turn>model\n")
		}
	case Harmony:
		for _, m := range msgs {
			if m.Role == types.RoleAssistant {
				fmt.Fprintf(&b, "<|start|>assistant<|channel|>final<|message|>%s<|end|>", m.Content)
				continue
			}
			fmt.Fprintf(&b, "<|start|>%s<|message|>%s<|end|>", m.Role, m.Content)
		}
		if opts.AddGenerationPrompt {
			b.WriteString("<|start|>assistant")
		}
	default:
		return "", ErrUnknownFamily(family)
	}
	return b.String(), nil
}
