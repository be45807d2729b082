package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-skinning/engine/core"
)

type ApplicationConfig struct {
	// The application name, used as the log prefix of the run summary.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Path of the scene description. Relative paths are resolved against the
	// directory of the config file.
	Scene string `toml:"scene"`
	// Watch the scene file and reload it between frames when it changes.
	Watch           bool   `toml:"watch"`
	WatchDebounceMS uint32 `toml:"watch_debounce_ms"`
	// Animation frames per second. Playback advances 1/FrameRate seconds per frame.
	FrameRate float64 `toml:"frame_rate"`
	// Frames to draw before stopping, 0 runs until shut down.
	Frames uint64 `toml:"frames"`
	// Sleep out the remainder of every frame instead of running flat out.
	Realtime bool `toml:"realtime"`
	// The animation stack to play, the first one when empty.
	Animation string `toml:"animation"`
	// Workers deforming meshes in parallel.
	Workers      int    `toml:"workers"`
	MaxMeshCount uint32 `toml:"max_mesh_count"`
	// Zero means unlimited.
	MaxBoneCount uint32 `toml:"max_bone_count"`
	// Frames between two metrics log lines, 0 disables them.
	MetricsInterval uint64 `toml:"metrics_interval"`
}

// DefaultApplicationConfig returns the configuration used for keys missing from the file.
func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:            "Anima Skinning",
		LogLevel:        "info",
		WatchDebounceMS: 100,
		FrameRate:       60,
		Realtime:        true,
		Workers:         1,
		MaxMeshCount:    1024,
		MetricsInterval: 60,
	}
}

/**
 * @brief Reads a TOML application config on top of the defaults. Unknown
 * keys are rejected.
 *
 * @param path The config file.
 * @return The validated config, or an error wrapping core.ErrInvalidConfig.
 */
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err.Error())
	}
	defer f.Close()

	config := DefaultApplicationConfig()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: config '%s': %s", core.ErrInvalidConfig, path, strict.String())
		}
		return nil, fmt.Errorf("%w: config '%s': %s", core.ErrInvalidConfig, path, err.Error())
	}
	if config.Scene != "" && !filepath.IsAbs(config.Scene) {
		config.Scene = filepath.Join(filepath.Dir(path), config.Scene)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config '%s': %w", path, err)
	}
	return config, nil
}

// Validate checks the config for values the engine cannot run with.
func (ac *ApplicationConfig) Validate() error {
	if ac.Scene == "" {
		return fmt.Errorf("%w: no scene given", core.ErrInvalidConfig)
	}
	if ac.FrameRate <= 0 {
		return fmt.Errorf("%w: frame_rate must be > 0, got %f", core.ErrInvalidConfig, ac.FrameRate)
	}
	if ac.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", core.ErrInvalidConfig, ac.Workers)
	}
	if ac.MaxMeshCount == 0 {
		return fmt.Errorf("%w: max_mesh_count must be > 0", core.ErrInvalidConfig)
	}
	if _, err := core.ParseLogLevel(ac.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level, info if it does not parse.
func (ac *ApplicationConfig) Level() core.LogLevel {
	level, err := core.ParseLogLevel(ac.LogLevel)
	if err != nil {
		return core.InfoLevel
	}
	return level
}
