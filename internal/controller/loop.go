package controller

import (
	"context"

	"chatd/pkg/types"
)

// Send validates req and queues it for Run without blocking. A full inbox is
// reported as busy.
func (c *Controller) Send(req types.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	select {
	case c.inbox <- req:
		return nil
	default:
		return ErrBusy(string(req.Type))
	}
}

// Run drains the inbox until ctx is done. setConfig, interrupt and reset are
// handled inline; load and generate are admitted inline and then run on their
// own goroutine so that an interrupt is never stuck behind them. On return
// the in-flight request has observed cancellation.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().Int("inbox", cap(c.inbox)).Msg("controller loop started")
	defer c.log.Info().Msg("controller loop stopped")
	for {
		select {
		case <-ctx.Done():
			c.Interrupt()
			c.wg.Wait()
			return nil
		case req := <-c.inbox:
			c.dispatch(ctx, req)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, req types.Request) {
	switch req.Type {
	case types.RequestSetConfig:
		if err := c.Configure(req.ModelID, req.DataType, req.Device); err != nil {
			c.log.Warn().Err(err).Str("model_id", req.ModelID).Msg("setConfig")
		}
	case types.RequestInterrupt:
		c.Interrupt()
	case types.RequestReset:
		c.Reset()
	case types.RequestLoad:
		run, err := c.prepareLoad()
		if err != nil {
			return
		}
		c.spawn(ctx, run)
	case types.RequestGenerate:
		if req.Data == nil {
			return
		}
		run, err := c.prepareGenerate(*req.Data)
		if err != nil {
			return
		}
		c.spawn(ctx, run)
	default:
		c.log.Warn().Str("type", string(req.Type)).Msg("unknown request type")
	}
}

func (c *Controller) spawn(ctx context.Context, run func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = run(ctx)
	}()
}

// Wait blocks until spawned loads and generations have finished.
func (c *Controller) Wait() { c.wg.Wait() }
