package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/engine"
	"chatd/internal/progress"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

// Controller runs model lifecycle and generation for one session. Load and
// Generate never overlap; a second one is rejected with a busy error event.
type Controller struct {
	mu      sync.Mutex
	reg     *registry.Table
	rt      engine.Runtime
	pub     EventPublisher
	agg     *progress.Aggregator
	log     zerolog.Logger
	now     func() time.Time
	device  string
	session session
	retired []*engine.Handles

	slot  chan struct{}
	inbox chan types.Request
	wg    sync.WaitGroup

	started    time.Time
	remoteHost string
	lastErr    string
}

// hostSetter is implemented by runtimes that download from a hub.
type hostSetter interface {
	SetHost(string)
}

// Configure replaces the active model id, data type and device and discards
// the tokenizer/model handles and the KV cache. An unknown id is still
// recorded; the returned error is only informational and the next Load
// reports it as an error event.
func (c *Controller) Configure(modelID, dataType, device string) error {
	c.mu.Lock()
	prev := c.session.modelID
	old := c.session.handles
	desc, ok := c.reg.Lookup(modelID)
	if dataType == "" && ok {
		dataType = desc.DataType
	}
	if device == "" {
		device = c.device
	}
	c.session.modelID = modelID
	c.session.dataType = dataType
	c.session.device = device
	c.session.desc = desc
	c.session.known = ok
	c.session.handles = nil
	c.session.cache = nil
	c.session.epoch++
	c.retireLocked(old)
	c.mu.Unlock()

	c.log.Debug().Str("model_id", modelID).Str("data_type", dataType).Str("device", device).Bool("known", ok).Msg("configure")
	if old != nil && prev != "" {
		c.emit(types.Event{Status: types.StatusReset, ModelID: prev})
	}
	if !ok {
		return ErrModelNotFound(modelID)
	}
	return nil
}

// Interrupt sets the cancellation flag of the in-flight generation. It has
// no effect on a generation started afterwards.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	c.session.cancel.Interrupt()
	c.mu.Unlock()
	c.log.Debug().Msg("interrupt requested")
}

// Reset clears the cancellation flag and discards the KV cache. Model
// handles are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.session.cancel.Reset()
	c.session.cache = nil
	c.session.epoch++
	c.mu.Unlock()
	c.log.Debug().Msg("session reset")
}

// Announce publishes the reachable content-delivery host and forwards it to
// the runtime when it downloads from a hub.
func (c *Controller) Announce(host string) {
	c.mu.Lock()
	c.remoteHost = host
	c.mu.Unlock()
	if hs, ok := c.rt.(hostSetter); ok {
		hs.SetHost(host)
	}
	c.log.Info().Str("remote_host", host).Msg("remote host selected")
	c.emit(types.Event{Status: types.StatusInit, RemoteHost: host})
}

func (c *Controller) emit(ev types.Event) {
	c.pub.Publish(ev)
}

// fail converts err into one error event.
func (c *Controller) fail(modelID string, err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.log.Error().Err(err).Str("model_id", modelID).Msg("request failed")
	c.emit(types.Event{Status: types.StatusError, ModelID: modelID, Error: err.Error(), Data: err.Error()})
}

// panicError converts a value recovered from a load or generation.
func panicError(r any) error {
	return fmt.Errorf("panic: %v", r)
}
