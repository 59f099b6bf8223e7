package motion

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meridianav/fusiontrack/internal/config"
)

// Constructor builds a Tracker from the tuning config.
type Constructor func(cfg *config.TuningConfig) (Tracker, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a tracker constructor under the given tag. Re-registering
// a tag replaces the previous constructor.
func Register(tag string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = ctor
}

// List returns the registered tags, sorted for deterministic output.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NewFromConfig builds the tracker the config selects. Unknown tags are a
// configuration error and name the known tags.
func NewFromConfig(cfg *config.TuningConfig) (Tracker, error) {
	tag := cfg.GetTracker()
	registryMu.RLock()
	ctor, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tracker %q (known: %s)", tag, strings.Join(List(), ", "))
	}
	t, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("tracker %q: %w", tag, err)
	}
	return t, nil
}

func init() {
	Register("kalman_cv", NewKalmanCV)
}
