// Package progress folds controller lifecycle events into per-model load
// states and a list of file-download progress items.
package progress

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"chatd/pkg/types"
)

// LoadState is the lifecycle of one model id as seen by the host.
type LoadState string

const (
	NotLoaded LoadState = "not_loaded"
	Loading   LoadState = "loading"
	Loaded    LoadState = "loaded"
	Warm      LoadState = "warm"
	Ready     LoadState = "ready"
)

// Item tracks one file download. Completed items stay in the list until the
// caller clears it or the model becomes ready.
type Item struct {
	File string
	// Text is an informational label for items not tied to a file.
	Text     string
	Progress float64
	Total    int64
	Done     bool
}

// Label renders the item the way the sidebar shows it,
// e.g. "model.gguf (50.00% of 1.0 GiB)".
func (i Item) Label() string {
	name := i.File
	if name == "" {
		name = i.Text
	}
	s := fmt.Sprintf("%s (%.2f%%", name, i.Progress*100)
	if i.Total > 0 {
		s += " of " + humanize.IBytes(uint64(i.Total))
	}
	return s + ")"
}

// Aggregator is safe for concurrent use. It implements the controller's
// event publisher interface so it can be subscribed directly.
type Aggregator struct {
	mu         sync.RWMutex
	states     map[string]LoadState
	compile    map[string]float64
	items      []Item
	remoteHost string
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		states:  make(map[string]LoadState),
		compile: make(map[string]float64),
	}
}

// Publish applies one event.
func (a *Aggregator) Publish(ev types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Status == types.StatusInit {
		if ev.RemoteHost != "" {
			a.remoteHost = ev.RemoteHost
		}
		return
	}
	if ev.ModelID == "" && !ev.Status.FileScoped() {
		return
	}
	switch ev.Status {
	case types.StatusLoading:
		a.states[ev.ModelID] = Loading
		a.items = nil
		if ev.Data != "" {
			a.items = []Item{{Text: ev.Data}}
		}
	case types.StatusInitiate:
		a.items = append(a.items, Item{File: ev.File, Text: ev.File, Total: ev.Total})
	case types.StatusProgress:
		for i := range a.items {
			if a.items[i].File != ev.File {
				continue
			}
			frac := 0.0
			if ev.Progress != nil {
				frac = clamp(*ev.Progress / 100)
			}
			a.items[i].Progress = frac
			if ev.Total > 0 {
				a.items[i].Total = ev.Total
			}
		}
	case types.StatusDone:
		for i := range a.items {
			if a.items[i].File == ev.File {
				a.items[i].Progress = 1
				a.items[i].Done = true
			}
		}
	case types.StatusLoaded:
		a.states[ev.ModelID] = Loaded
	case types.StatusWarm:
		a.states[ev.ModelID] = Warm
		if ev.CompilationTime != nil {
			a.compile[ev.ModelID] = *ev.CompilationTime
		}
	case types.StatusReady:
		a.states[ev.ModelID] = Ready
		a.items = nil
	case types.StatusReset:
		a.states[ev.ModelID] = NotLoaded
		a.items = nil
	}
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// State returns the load state of id; unknown ids are not loaded.
func (a *Aggregator) State(id string) LoadState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.states[id]; ok {
		return s
	}
	return NotLoaded
}

// CompilationTime returns the last warm-up duration (ms) reported for id.
func (a *Aggregator) CompilationTime(id string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.compile[id]
	return v, ok
}

// Items returns a copy of the progress list.
func (a *Aggregator) Items() []Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Item(nil), a.items...)
}

// Clear empties the progress list.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.items = nil
	a.mu.Unlock()
}

// RemoteHost returns the host announced by the last init event.
func (a *Aggregator) RemoteHost() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.remoteHost
}

// AnyReady reports whether at least one model is ready.
func (a *Aggregator) AnyReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.states {
		if s == Ready {
			return true
		}
	}
	return false
}

// Snapshot projects the aggregator into API DTOs, models sorted by id.
func (a *Aggregator) Snapshot() ([]types.ModelStatus, []types.ProgressStatus) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	models := make([]types.ModelStatus, 0, len(a.states))
	for id, s := range a.states {
		ms := types.ModelStatus{ModelID: id, State: string(s)}
		if c, ok := a.compile[id]; ok {
			ms.CompilationTime = types.Float(c)
		}
		models = append(models, ms)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
	items := make([]types.ProgressStatus, 0, len(a.items))
	for _, it := range a.items {
		items = append(items, types.ProgressStatus{
			File: it.File, Text: it.Label(), Progress: it.Progress, Total: it.Total, Done: it.Done,
		})
	}
	return models, items
}
