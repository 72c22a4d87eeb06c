package controller

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"chatd/pkg/types"
)

// Thinking markers appended to the system prompt of models that follow the
// /think convention.
const (
	ThinkMarker   = "/think"
	NoThinkMarker = "/no_think"
)

// PatchOptions are the per-request toggles that influence the system prompt.
type PatchOptions struct {
	Reason          bool
	OverrideEnabled bool
	OverrideText    string
}

// PatchConversation returns a copy of msgs with the effective system prompt
// applied for d. The input slice is never modified.
//
// An enabled, non-empty override wins over the descriptor's default prompt
// and replaces the content of an existing system message. Models with
// thinking-tag support always get a system message ending in exactly one
// marker; other models only get one injected when the effective prompt is
// non-empty and the conversation has none.
func PatchConversation(msgs []types.ChatMessage, d types.ModelDescriptor, o PatchOptions) []types.ChatMessage {
	out := append([]types.ChatMessage(nil), msgs...)
	override := o.OverrideEnabled && strings.TrimSpace(o.OverrideText) != ""
	effective := d.SystemPrompt
	if override {
		effective = o.OverrideText
	}

	sys := -1
	for i, m := range out {
		if m.Role == types.RoleSystem {
			sys = i
			break
		}
	}
	if override && sys >= 0 {
		out[sys].Content = o.OverrideText
	}

	if d.SupportsThinkingTag {
		marker := NoThinkMarker
		if o.Reason {
			marker = ThinkMarker
		}
		if sys >= 0 {
			out[sys].Content = withMarker(out[sys].Content, marker)
			return out
		}
		return prependSystem(out, withMarker(effective, marker))
	}
	if sys < 0 && strings.TrimSpace(effective) != "" {
		return prependSystem(out, effective)
	}
	return out
}

func prependSystem(msgs []types.ChatMessage, content string) []types.ChatMessage {
	sys := types.ChatMessage{ID: uuid.NewString(), Role: types.RoleSystem, Content: content}
	return append([]types.ChatMessage{sys}, msgs...)
}

// withMarker strips any trailing thinking markers from content and appends
// marker, separated by one space.
func withMarker(content, marker string) string {
	c := strings.TrimRightFunc(content, unicode.IsSpace)
	for {
		switch {
		case strings.HasSuffix(c, NoThinkMarker):
			c = strings.TrimSuffix(c, NoThinkMarker)
		case strings.HasSuffix(c, ThinkMarker):
			c = strings.TrimSuffix(c, ThinkMarker)
		default:
			if c == "" {
				return marker
			}
			return c + " " + marker
		}
		c = strings.TrimRightFunc(c, unicode.IsSpace)
	}
}
