package controller

import "chatd/internal/engine"

// admit reserves the single load/generate slot without waiting. The returned
// release closes handles retired while the slot was held.
func (c *Controller) admit(op string) (func(), error) {
	select {
	case c.slot <- struct{}{}:
	default:
		return func() {}, ErrBusy(op)
	}
	return func() {
		c.mu.Lock()
		<-c.slot
		retired := c.retired
		c.retired = nil
		c.mu.Unlock()
		for _, h := range retired {
			c.closeHandles(h)
		}
	}, nil
}

// retireLocked closes h now, or after the in-flight request releases the
// slot when one may still be using it. Caller holds c.mu.
func (c *Controller) retireLocked(h *engine.Handles) {
	if h == nil {
		return
	}
	if len(c.slot) > 0 {
		c.retired = append(c.retired, h)
		return
	}
	c.closeHandles(h)
}

func (c *Controller) closeHandles(h *engine.Handles) {
	if err := h.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close model handles")
	}
}

// Busy reports whether a load or generation holds the slot.
func (c *Controller) Busy() bool { return len(c.slot) > 0 }
