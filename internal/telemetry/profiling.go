package telemetry

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig contains configuration for Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool

	// ServiceName is the Pyroscope application name; empty means DefaultServiceName
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g., "http://localhost:4040")
	Endpoint string

	// ProfileTypes lists the profiles to collect, by the names in profileTypesByName
	ProfileTypes []string

	// Tags are attached to every profile. "version" is set from
	// ServiceVersion unless configured explicitly.
	Tags map[string]string
}

// profileTypesByName maps configuration names onto Pyroscope profile types.
var profileTypesByName = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

var profilingEnabled bool

// InitProfiling starts Pyroscope continuous profiling.
// Returns a shutdown function that stops the profiler.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	if !cfg.Enabled {
		profilingEnabled = false
		return func() error { return nil }, nil
	}

	types, err := cfg.profileTypes()
	if err != nil {
		return nil, err
	}

	// Mutex and block profiles are empty unless the runtime samples them.
	for _, pt := range types {
		switch pt {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(5)
		}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: serviceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            cfg.tags(),
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profilingEnabled = true

	return p.Stop, nil
}

// IsProfilingEnabled returns whether profiling is enabled
func IsProfilingEnabled() bool {
	return profilingEnabled
}

// profileTypes resolves the configured names, rejecting unknown ones before
// anything is started. Duplicates are collapsed.
func (c ProfilingConfig) profileTypes() ([]pyroscope.ProfileType, error) {
	types := make([]pyroscope.ProfileType, 0, len(c.ProfileTypes))
	for _, name := range c.ProfileTypes {
		pt, ok := profileTypesByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("invalid profile type %q (valid: %s)", name,
				strings.Join(slices.Sorted(maps.Keys(profileTypesByName)), ", "))
		}
		if !slices.Contains(types, pt) {
			types = append(types, pt)
		}
	}
	return types, nil
}

func (c ProfilingConfig) tags() map[string]string {
	tags := make(map[string]string, len(c.Tags)+1)
	if c.ServiceVersion != "" {
		tags["version"] = c.ServiceVersion
	}
	maps.Copy(tags, c.Tags)
	return tags
}
