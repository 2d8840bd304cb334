package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Server struct {
		ListenAddress string        `yaml:"listenAddress"`
		ListenPort    int           `yaml:"listenPort"`
		ReadTimeout   time.Duration `yaml:"readTimeout"`
		WriteTimeout  time.Duration `yaml:"writeTimeout"`
	} `yaml:"server"`
	Devices struct {
		CatalogPath string `yaml:"catalogPath"`
		Default     string `yaml:"default"`
	} `yaml:"devices"`
	DeviceState occupancy.DeviceState `yaml:"deviceState"`
	KernelsPath string                `yaml:"kernelsPath"`

	// dir is the directory relative paths in the file are resolved against.
	dir string
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var config Config
	config.Logger.Verbosity = "info"
	config.Server.ListenAddress = "127.0.0.1"
	config.Server.ListenPort = 8090
	config.Server.ReadTimeout = 10 * time.Second
	config.Server.WriteTimeout = 10 * time.Second
	config.Devices.Default = "a2000"
	config.DeviceState = occupancy.DefaultDeviceState()
	return &config
}

// LoadConfig reads the YAML file at path over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}
	config.dir = filepath.Dir(path)

	return config, nil
}

// ResolvePath makes a path from the config file absolute relative to the file's
// directory. Empty paths stay empty.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// GetDefaultConfigHome returns ~/.occ.
func GetDefaultConfigHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".occ"), nil
}
