package chattmpl

import (
	"strings"
	"testing"

	"chatd/internal/engine"
	"chatd/pkg/types"
)

var convo = []types.ChatMessage{
	{Role: types.RoleSystem, Content: "sys /think"},
	{Role: types.RoleUser, Content: "hi"},
}

func TestRenderChatML(t *testing.T) {
	got, err := Render(ChatML, convo, engine.TemplateOptions{AddGenerationPrompt: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "<|im_start|>system\nsys /think<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderQwen3ThinkingFlag(t *testing.T) {
	off, _ := Render(Qwen3, convo, engine.TemplateOptions{AddGenerationPrompt: true})
	if !strings.HasSuffix(off, "<think>\n\n</think>\n\n") {
		t.Fatalf("thinking disabled should prefill empty think block: %q", off)
	}
	on, _ := Render(Qwen3, convo, engine.TemplateOptions{AddGenerationPrompt: true, EnableThinking: true})
	if strings.Contains(on, "<think>") {
		t.Fatalf("thinking enabled must not prefill: %q", on)
	}
}

func TestRenderGemmaFoldsSystem(t *testing.T) {
	got, err := Render(Gemma, convo, engine.TemplateOptions{AddGenerationPrompt: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "<bos><start_of_turn>user\nsys /think\n\nhi<end_of_turn>\n<start_of_turn>model\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderFamilies(t *testing.T) {
	for _, fam := range []string{Phi3, Llama3, Harmony} {
		got, err := Render(fam, convo, engine.TemplateOptions{AddGenerationPrompt: true})
		if err != nil {
			t.Fatalf("%s: %v", fam, err)
		}
		if !strings.Contains(got, "hi") || !strings.Contains(got, "sys /think") {
			t.Fatalf("%s: content missing: %q", fam, got)
		}
		for _, sp := range Specials(fam)[:1] {
			if !strings.Contains(got, sp) {
				t.Fatalf("%s: expected special %q in %q", fam, sp, got)
			}
		}
	}
	if _, err := Render("nope", convo, engine.TemplateOptions{}); err == nil {
		t.Fatalf("expected unknown family error")
	}
	if Known("nope") || !Known(ChatML) {
		t.Fatalf("Known mismatch")
	}
}
