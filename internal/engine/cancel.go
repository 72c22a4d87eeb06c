package engine

import "sync/atomic"

// CancelToken is a cooperative cancellation flag. A fresh token is created
// for every generation so an interrupt can never leak into the next request.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken { return &CancelToken{} }

// Interrupt sets the flag. The running generation stops at its next check.
func (t *CancelToken) Interrupt() {
	if t != nil {
		t.flag.Store(true)
	}
}

// Reset clears the flag.
func (t *CancelToken) Reset() {
	if t != nil {
		t.flag.Store(false)
	}
}

// Interrupted reports whether the flag is set. A nil token is never set.
func (t *CancelToken) Interrupted() bool {
	return t != nil && t.flag.Load()
}
