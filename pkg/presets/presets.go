// Package presets resolves a (channel, mode) pair into the firmware
// pattern indices the controller should display, from a persisted
// channel map.
package presets

import (
	"fmt"
	"sync"
)

// DefaultMode is the mode every channel must define.
const DefaultMode = "default"

// ChannelMap maps channel name -> mode name -> firmware pattern indices.
type ChannelMap map[string]map[string][]int

// Validate checks that the map satisfies the invariants the driver
// requires: every channel defines DefaultMode, and every mode's value is
// a non-nil slice of non-negative indices.
func (cm ChannelMap) Validate() error {
	for channel, modes := range cm {
		if _, ok := modes[DefaultMode]; !ok {
			return fmt.Errorf("presets: channel %q has no %q mode", channel, DefaultMode)
		}
		for mode, indices := range modes {
			if indices == nil {
				return fmt.Errorf("presets: channel %q mode %q has no indices", channel, mode)
			}
			for _, idx := range indices {
				if idx < 0 {
					return fmt.Errorf("presets: channel %q mode %q contains negative index %d", channel, mode, idx)
				}
			}
		}
	}
	return nil
}

// Resolver looks up firmware pattern indices for a channel and mode
// against a validated channel map, mutex-guarded so it can be shared
// across a driver's HTTP/CLI surfaces.
type Resolver struct {
	mu sync.RWMutex
	cm ChannelMap
}

// NewResolver wraps a channel map after validating it.
func NewResolver(cm ChannelMap) (*Resolver, error) {
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{cm: cm}, nil
}

// Replace atomically swaps in a newly (re)loaded, validated channel map.
func (r *Resolver) Replace(cm ChannelMap) error {
	if err := cm.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cm = cm
	return nil
}

// Resolve returns the firmware pattern indices for channel/mode. If mode
// is empty, DefaultMode is used.
func (r *Resolver) Resolve(channel, mode string) ([]int, error) {
	if mode == "" {
		mode = DefaultMode
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	modes, ok := r.cm[channel]
	if !ok {
		return nil, fmt.Errorf("presets: unknown channel %q", channel)
	}
	indices, ok := modes[mode]
	if !ok {
		return nil, fmt.Errorf("presets: channel %q has no mode %q", channel, mode)
	}

	out := make([]int, len(indices))
	copy(out, indices)
	return out, nil
}

// ResolveMany resolves indices for several channels under the same mode,
// concatenated in channel order, flattening several channels into one
// firmware index list.
func (r *Resolver) ResolveMany(channels []string, mode string) ([]int, error) {
	var out []int
	for _, ch := range channels {
		indices, err := r.Resolve(ch, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, indices...)
	}
	return out, nil
}

// Channels returns the known channel names in unspecified order; callers
// needing a stable listing should sort the result themselves.
func (r *Resolver) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.cm))
	for ch := range r.cm {
		out = append(out, ch)
	}
	return out
}
