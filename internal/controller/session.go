package controller

import (
	"chatd/internal/engine"
	"chatd/pkg/types"
)

// session is the per-controller generation state. It is only touched with
// Controller.mu held.
type session struct {
	modelID  string
	dataType string
	device   string
	desc     types.ModelDescriptor
	known    bool

	handles *engine.Handles
	cache   engine.KVCache
	cancel  *engine.CancelToken
	// epoch is bumped by setConfig and reset; a generation only stores its
	// returned cache when the epoch it started under is still current.
	epoch uint64
}

func newSession() session {
	return session{cancel: engine.NewCancelToken()}
}

// snapshot is what a load or generation captures at admission.
type snapshot struct {
	modelID  string
	dataType string
	device   string
	desc     types.ModelDescriptor
	known    bool
	handles  *engine.Handles
	cache    engine.KVCache
	epoch    uint64
}

func (s *session) snapshot() snapshot {
	return snapshot{
		modelID:  s.modelID,
		dataType: s.dataType,
		device:   s.device,
		desc:     s.desc,
		known:    s.known,
		handles:  s.handles,
		cache:    s.cache,
		epoch:    s.epoch,
	}
}
