package controller

import (
	"context"
	"time"

	"chatd/internal/engine"
	"chatd/pkg/types"
)

const (
	loadingMessage = "Loading model..."
	warmingMessage = "Compiling shaders and warming up model..."
)

// warmupInputs is the dummy input of the one-token warm-up run.
var warmupInputs = engine.Inputs{IDs: []int32{0, 0}}

// Load acquires handles for the configured model, warms it up and reports
// readiness. Errors are also published as an error event.
func (c *Controller) Load(ctx context.Context) error {
	run, err := c.prepareLoad()
	if err != nil {
		return err
	}
	return run(ctx)
}

// prepareLoad admits the load and captures the session so that messages
// handled after it cannot change what is being loaded.
func (c *Controller) prepareLoad() (func(context.Context) error, error) {
	release, err := c.admit("load")
	c.mu.Lock()
	snap := c.session.snapshot()
	c.mu.Unlock()
	if err != nil {
		loadsTotal.WithLabelValues(outcomeBusy).Inc()
		c.fail(snap.modelID, err)
		return nil, err
	}
	// The terminal event is published after the slot is released so that
	// a host reacting to it is never rejected as busy.
	return func(ctx context.Context) (err error) {
		var final *types.Event
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
			release()
			if err != nil {
				loadsTotal.WithLabelValues(outcomeError).Inc()
				c.fail(snap.modelID, err)
				return
			}
			loadsTotal.WithLabelValues(outcomeReady).Inc()
			c.emit(*final)
		}()
		final, err = c.load(ctx, snap)
		return err
	}, nil
}

func (c *Controller) load(ctx context.Context, snap snapshot) (*types.Event, error) {
	if !snap.known {
		return nil, ErrModelNotFound(snap.modelID)
	}
	id := snap.modelID
	c.emit(types.Event{Status: types.StatusLoading, ModelID: id, Data: loadingMessage})
	c.log.Info().Str("model_id", id).Str("device", snap.device).Str("data_type", snap.dataType).Msg("load started")

	h := snap.handles
	if h == nil {
		var err error
		h, err = c.rt.Acquire(ctx, engine.Ref{Model: snap.desc.Model, File: snap.desc.File}, engine.AcquireOptions{
			DataType:     snap.dataType,
			Device:       snap.device,
			ExternalData: snap.desc.UsesExternalDataFormat,
			Template:     snap.desc.ChatTemplate,
			OnProgress:   func(p engine.Progress) { c.emit(progressEvent(id, p)) },
		})
		if err != nil {
			return nil, acquisitionError{id: id, err: err}
		}
		c.mu.Lock()
		if c.session.epoch != snap.epoch {
			c.mu.Unlock()
			c.closeHandles(h)
			return nil, acquisitionError{id: id, err: errConfigChanged}
		}
		c.session.handles = h
		c.mu.Unlock()
	}
	c.emit(types.Event{Status: types.StatusLoaded, ModelID: id})

	c.emit(types.Event{Status: types.StatusWarm, ModelID: id, Data: warmingMessage})
	start := c.now()
	if _, err := h.Model.Generate(ctx, warmupInputs, engine.GenerateOptions{MaxNewTokens: 1}, nil); err != nil {
		return nil, acquisitionError{id: id, err: err}
	}
	elapsed := c.now().Sub(start)
	warmupSeconds.Observe(elapsed.Seconds())
	c.emit(types.Event{Status: types.StatusWarm, ModelID: id, CompilationTime: types.Float(millis(elapsed))})
	c.log.Info().Str("model_id", id).Dur("compilation_time", elapsed).Msg("model ready")
	return &types.Event{Status: types.StatusReady, ModelID: id}, nil
}

// progressEvent republishes a runtime download callback.
func progressEvent(modelID string, p engine.Progress) types.Event {
	ev := types.Event{
		ModelID: modelID,
		Name:    p.Name,
		File:    p.File,
		Loaded:  p.Loaded,
		Total:   p.Total,
	}
	switch p.Status {
	case engine.ProgressInitiate:
		ev.Status = types.StatusInitiate
	case engine.ProgressDone:
		ev.Status = types.StatusDone
	default:
		ev.Status = types.StatusProgress
		ev.Progress = types.Float(p.Percent)
	}
	return ev
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
