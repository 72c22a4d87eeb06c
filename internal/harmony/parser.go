package harmony

import (
	"regexp"
	"strings"
	"unicode"
)

// Boundary tokens of the harmony format.
const (
	TokenStart     = "<|start|>"
	TokenEnd       = "<|end|>"
	TokenMessage   = "<|message|>"
	TokenChannel   = "<|channel|>"
	TokenConstrain = "<|constrain|>"
	TokenReturn    = "<|return|>"
	TokenCall      = "<|call|>"
)

// Well-known channels.
const (
	ChannelAnalysis   = "analysis"
	ChannelCommentary = "commentary"
	ChannelFinal      = "final"
)

// IsBoundary reports whether tok is one of the boundary tokens.
func IsBoundary(tok string) bool {
	switch tok {
	case TokenStart, TokenEnd, TokenMessage, TokenChannel, TokenConstrain, TokenReturn, TokenCall:
		return true
	}
	return false
}

// EndReason records why a message was closed.
type EndReason string

const (
	EndPending EndReason = "pending"
	EndEnd     EndReason = "end"
	EndReturn  EndReason = "return"
	EndCall    EndReason = "call"
)

// Message is one parsed harmony message. Content only grows until the
// message is closed.
type Message struct {
	Role        string    `json:"role"`
	Channel     string    `json:"channel"`
	Content     string    `json:"content"`
	Recipient   string    `json:"recipient,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	EndReason   EndReason `json:"endReason"`
}

// Closed reports whether the message has a termination reason.
func (m Message) Closed() bool { return m.EndReason != EndPending }

// DeltaKind classifies a Delta.
type DeltaKind string

const (
	DeltaNewMessage DeltaKind = "new_message"
	DeltaContent    DeltaKind = "content"
	DeltaDone       DeltaKind = "done"
)

// Delta is an incremental change produced by Push.
type Delta struct {
	Kind         DeltaKind `json:"type"`
	MessageIndex int       `json:"messageIndex"`
	// Snapshot of the new message (DeltaNewMessage).
	Message *Message `json:"message,omitempty"`
	// Appended text (DeltaContent).
	TextDelta string `json:"textDelta,omitempty"`
	// DeltaDone fields.
	EndReason EndReason `json:"endReason,omitempty"`
	IsDone    bool      `json:"isDone,omitempty"`
}

type state int

const (
	stateIdle state = iota
	stateHeaderRole
	stateHeaderChannel
	stateHeaderConstrain
	stateContent
)

var recipientRe = regexp.MustCompile(`\bto=(\S+)`)

// Parser is the streaming state machine. The zero value is ready to use.
// A Parser is not safe for concurrent use.
type Parser struct {
	messages []*Message
	state    state
	buf      strings.Builder
	done     bool
}

// New returns an empty parser.
func New() *Parser { return &Parser{} }

func (p *Parser) current() *Message {
	if len(p.messages) == 0 {
		return nil
	}
	return p.messages[len(p.messages)-1]
}

// openOrNew appends a fresh message unless the current one is still open.
func (p *Parser) openOrNew(role string) *Delta {
	if cur := p.current(); cur != nil && !cur.Closed() {
		return nil
	}
	m := &Message{Role: role, EndReason: EndPending}
	p.messages = append(p.messages, m)
	snap := *m
	return &Delta{Kind: DeltaNewMessage, MessageIndex: len(p.messages) - 1, Message: &snap}
}

func (p *Parser) close(reason EndReason) *Delta {
	if cur := p.current(); cur != nil {
		cur.Content = strings.TrimRightFunc(cur.Content, unicode.IsSpace)
		cur.EndReason = reason
	}
	p.state = stateIdle
	p.buf.Reset()
	return &Delta{
		Kind:         DeltaDone,
		MessageIndex: len(p.messages) - 1,
		EndReason:    reason,
		IsDone:       reason == EndReturn,
	}
}

// extractRecipient pulls a to=<recipient> clause out of header text.
func (p *Parser) extractRecipient(text string) string {
	loc := recipientRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	if cur := p.current(); cur != nil {
		cur.Recipient = text[loc[2]:loc[3]]
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}

// Push feeds one token and returns the resulting delta, or nil when the token
// only changed header state. After a return token every call is a no-op.
func (p *Parser) Push(tok string) *Delta {
	if p.done {
		return nil
	}
	switch tok {
	case TokenStart:
		p.buf.Reset()
		p.state = stateHeaderRole
		return p.openOrNew("")
	case TokenChannel:
		p.buf.Reset()
		p.state = stateHeaderChannel
		return p.openOrNew("assistant")
	case TokenConstrain:
		p.buf.Reset()
		p.state = stateHeaderConstrain
		return nil
	case TokenMessage:
		p.buf.Reset()
		p.state = stateContent
		return nil
	case TokenEnd:
		return p.close(EndEnd)
	case TokenReturn:
		p.done = true
		return p.close(EndReturn)
	case TokenCall:
		return p.close(EndCall)
	}

	cur := p.current()
	switch p.state {
	case stateHeaderRole:
		p.buf.WriteString(tok)
		role := p.extractRecipient(p.buf.String())
		if cur != nil {
			cur.Role = role
		}
	case stateHeaderChannel:
		p.buf.WriteString(tok)
		ch := p.extractRecipient(p.buf.String())
		if cur != nil {
			cur.Channel = ch
		}
	case stateHeaderConstrain:
		p.buf.WriteString(tok)
		if cur != nil {
			cur.ContentType = strings.TrimSpace(p.buf.String())
		}
	case stateContent:
		if cur == nil || cur.Closed() {
			return nil
		}
		cur.Content += tok
		return &Delta{Kind: DeltaContent, MessageIndex: len(p.messages) - 1, TextDelta: tok}
	}
	return nil
}

// PushMany folds Push over toks and returns the non-nil deltas in order.
func (p *Parser) PushMany(toks []string) []Delta {
	var out []Delta
	for _, t := range toks {
		if d := p.Push(t); d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// Result is a snapshot of the parsed messages.
type Result struct {
	Messages []Message `json:"messages"`
	Done     bool      `json:"done"`
}

// Result returns copies of all messages parsed so far.
func (p *Parser) Result() Result {
	out := make([]Message, len(p.messages))
	for i, m := range p.messages {
		out[i] = *m
	}
	return Result{Messages: out, Done: p.done}
}

// Message returns a copy of message i.
func (p *Parser) Message(i int) (Message, bool) {
	if i < 0 || i >= len(p.messages) {
		return Message{}, false
	}
	return *p.messages[i], true
}

// Done reports whether a return token has been seen.
func (p *Parser) Done() bool { return p.done }

// Reset clears all messages and returns the parser to its initial state.
func (p *Parser) Reset() {
	p.messages = nil
	p.state = stateIdle
	p.buf.Reset()
	p.done = false
}
