package controller

import (
	"chatd/internal/engine"
	"chatd/internal/progress"
	"chatd/pkg/types"
)

// Status reports the session and, when an aggregator is attached, the per-model
// load states and download progress.
func (c *Controller) Status() types.StatusResponse {
	c.mu.Lock()
	s := types.StatusResponse{
		ModelID:       c.session.modelID,
		DataType:      c.session.dataType,
		Device:        c.session.device,
		Loaded:        c.session.handles != nil,
		CacheLen:      engine.CacheLen(c.session.cache),
		RemoteHost:    c.remoteHost,
		UptimeSeconds: int64(c.now().Sub(c.started).Seconds()),
		LastError:     c.lastErr,
	}
	c.mu.Unlock()
	s.Busy = c.Busy()
	if c.agg != nil {
		s.Models, s.Progress = c.agg.Snapshot()
	}
	return s
}

// Ready reports whether the configured model is ready to generate.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	id, loaded := c.session.modelID, c.session.handles != nil
	c.mu.Unlock()
	if !loaded {
		return false
	}
	if c.agg != nil {
		return c.agg.State(id) == progress.Ready
	}
	return true
}

// ListModels returns the descriptor table.
func (c *Controller) ListModels() []types.ModelDescriptor {
	return c.reg.List()
}
