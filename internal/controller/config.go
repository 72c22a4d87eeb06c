package controller

import (
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/engine"
	"chatd/internal/progress"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultInboxSize = 16
	defaultDevice    = "cpu"
)

// Config encapsulates all tunables for Controller construction.
type Config struct {
	// Registry defaults to the built-in descriptor table.
	Registry *registry.Table
	Engine   engine.Runtime
	// Publisher receives every event after the progress aggregator.
	Publisher EventPublisher
	// Progress, when set, is subscribed to events and backs Status/Ready.
	Progress *progress.Aggregator
	Logger   zerolog.Logger
	// InboxSize bounds messages queued by Send.
	InboxSize int
	// DefaultDevice is used by setConfig messages without a device.
	DefaultDevice string
	// Now is the clock used for stats; tests override it.
	Now func() time.Time
}

// New constructs a Controller from Config.
func New(cfg Config) *Controller {
	c := &Controller{
		reg:     cfg.Registry,
		rt:      cfg.Engine,
		agg:     cfg.Progress,
		log:     cfg.Logger.With().Str("component", "controller").Logger(),
		now:     cfg.Now,
		device:  cfg.DefaultDevice,
		slot:    make(chan struct{}, 1),
		session: newSession(),
	}
	if c.reg == nil {
		c.reg = registry.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.device == "" {
		c.device = defaultDevice
	}
	n := cfg.InboxSize
	if n <= 0 {
		n = defaultInboxSize
	}
	c.inbox = make(chan types.Request, n)
	var pub EventPublisher = noopPublisher{}
	if cfg.Publisher != nil {
		pub = cfg.Publisher
	}
	if c.agg != nil {
		pub = Multi{c.agg, pub}
	}
	c.pub = pub
	c.started = c.now()
	return c
}
