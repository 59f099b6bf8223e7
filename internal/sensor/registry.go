// Package sensor tracks the set of sensors feeding an engine and which of
// them are authoritative (main) sensors. Main sensors drive output cadence
// and prediction; other sensors only contribute observations.
package sensor

import (
	"fmt"
	"sort"
	"sync"
)

// Info describes a registered sensor.
type Info struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "lidar", "radar", "camera"
	// Description is free-form operator text ("roof front-left VLP-32").
	Description string `json:"description,omitempty"`
}

// Registry holds the known sensors and the designated main-sensor set.
// It may be shared by multiple engine instances, so access is locked.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]Info
	main    map[string]bool
}

// NewRegistry creates a registry with the given main-sensor names.
// The main set is fixed for the registry's lifetime; a sensor does not
// need to be registered for IsMainSensor to answer.
func NewRegistry(mainSensors []string) *Registry {
	main := make(map[string]bool, len(mainSensors))
	for _, name := range mainSensors {
		main[name] = true
	}
	return &Registry{
		sensors: make(map[string]Info),
		main:    main,
	}
}

// Register adds a sensor description. Registering the same name twice is
// an error so calibration mix-ups surface at startup rather than as
// silently shadowed entries.
func (r *Registry) Register(info Info) error {
	if info.Name == "" {
		return fmt.Errorf("sensor name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sensors[info.Name]; exists {
		return fmt.Errorf("sensor %q already registered", info.Name)
	}
	r.sensors[info.Name] = info
	return nil
}

// Get retrieves a sensor description by name.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sensors[name]
	return info, ok
}

// IsMainSensor reports whether the named sensor is authoritative.
func (r *Registry) IsMainSensor(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.main[name]
}

// MainSensors returns the main-sensor names, sorted.
func (r *Registry) MainSensors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.main))
	for name := range r.main {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered sensors sorted by name for deterministic output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.sensors))
	for _, info := range r.sensors {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
