package match

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meridianav/fusiontrack/internal/config"
)

// Constructor builds a Matcher from the tuning config.
type Constructor func(cfg *config.TuningConfig) (Matcher, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a matcher constructor under the given tag. Re-registering
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

// NewFromConfig builds the matcher the config selects. Unknown tags are a
// configuration error and name the known tags.
func NewFromConfig(cfg *config.TuningConfig) (Matcher, error) {
	tag := cfg.GetMatcher()
	registryMu.RLock()
	ctor, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown matcher %q (known: %s)", tag, strings.Join(List(), ", "))
	}
	m, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("matcher %q: %w", tag, err)
	}
	return m, nil
}

func init() {
	Register("hungarian", NewHungarianMatcher)
	Register("nearest", NewNearestMatcher)
}
