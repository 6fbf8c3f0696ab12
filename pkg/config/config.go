// Package config handles configuration loading and management.
package config

// Config holds all settings for the CLI and the HTTP service.
type Config struct {
	Raycast RaycastConfig `yaml:"raycast"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// RaycastConfig holds query engine settings.
type RaycastConfig struct {
	MaxBatchSize int `yaml:"max_batch_size"` // Rays or points per provider call
	Workers      int `yaml:"workers"`        // 0 uses every CPU
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Port         int   `yaml:"port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	MaxScenes    int   `yaml:"max_scenes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Raycast: RaycastConfig{
			MaxBatchSize: 1 << 20,
			Workers:      0,
		},
		Server: ServerConfig{
			Port:         8080,
			MaxBodyBytes: 64 << 20,
			MaxScenes:    64,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
