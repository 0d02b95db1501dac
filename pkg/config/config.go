package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/xhad/annotscan/pkg/pdfdoc"
)

type Config struct {
	Input struct {
		Folder string `yaml:"folder"`
	} `yaml:"input"`

	Search struct {
		Term string `yaml:"term"`
	} `yaml:"search"`

	Output struct {
		BaseDir string `yaml:"base_dir"`
	} `yaml:"output"`

	Highlight struct {
		Color   []float64 `yaml:"color"`
		Opacity float64   `yaml:"opacity"`
	} `yaml:"highlight"`

	UI struct {
		Progress bool `yaml:"progress"`
		Color    bool `yaml:"color"`
		Verbose  bool `yaml:"verbose"`
	} `yaml:"ui"`

	Server struct {
		Addr      string  `yaml:"addr"`
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"annotscan.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/annotscan/config.yaml"),
			"/etc/annotscan/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(config)

	// Apply defaults for unset values
	applyDefaults(config)

	return config, nil
}

// newConfig returns a Config with the boolean switches on, so a file that
// leaves them out keeps them enabled.
func newConfig() *Config {
	config := &Config{}
	config.UI.Progress = true
	config.UI.Color = true
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Input.Folder == "" {
		config.Input.Folder = "Input"
	}
	if config.Search.Term == "" {
		config.Search.Term = "rue felix wodon"
	}
	if config.Output.BaseDir == "" {
		config.Output.BaseDir = "Output"
	}

	if len(config.Highlight.Color) == 0 {
		c := pdfdoc.DefaultHighlightStyle.Color
		config.Highlight.Color = []float64{c[0], c[1], c[2]}
	}
	if config.Highlight.Opacity == 0 {
		config.Highlight.Opacity = pdfdoc.DefaultHighlightStyle.Opacity
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 1.0
	}
	if config.Server.Burst == 0 {
		config.Server.Burst = 1
	}
}

func mergeWithEnv(config *Config) {
	if input := os.Getenv("ANNOTSCAN_INPUT"); input != "" {
		config.Input.Folder = input
	}
	if output := os.Getenv("ANNOTSCAN_OUTPUT"); output != "" {
		config.Output.BaseDir = output
	}
	if term := os.Getenv("ANNOTSCAN_TERM"); term != "" {
		config.Search.Term = term
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			config.Server.Addr = ":" + port
		}
	}
}

// HighlightStyle converts the highlight section for pdfdoc. Validate should
// have been called first.
func (c *Config) HighlightStyle() pdfdoc.HighlightStyle {
	style := pdfdoc.HighlightStyle{Opacity: c.Highlight.Opacity}
	copy(style.Color[:], c.Highlight.Color)
	return style
}
