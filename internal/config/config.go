package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// ScannerConfig holds the preview and decode settings
type ScannerConfig struct {
	UseFrontCamera      bool     `json:"use_front_camera"`
	ContinuousAutoFocus bool     `json:"continuous_autofocus"`
	AutoFocusIntervalMS int      `json:"autofocus_interval_ms"`
	FullBleed           bool     `json:"full_bleed"`
	RecordingHint       string   `json:"recording_hint"`
	LockOrientation     bool     `json:"lock_orientation"`
	Formats             []string `json:"formats"`
	TryHarder           bool     `json:"try_harder"`
	// Guide is the viewfinder rectangle as [x0, y0, x1, y1] in viewport
	// pixels. Empty scans the whole frame.
	Guide    []int  `json:"guide,omitempty"`
	Viewport string `json:"viewport"`
}

type CameraConfig struct {
	MaxProbe         int      `json:"max_probe"`
	MountOrientation int      `json:"mount_orientation"`
	PreviewSizes     []string `json:"preview_sizes"`
}

type LogConfig struct {
	File  string `json:"file"`
	Level string `json:"level"`
}

type AppConfig struct {
	ServerPort string `json:"server_port"`
	// ServerIP is the interface the web server binds. Empty binds all.
	ServerIP     string        `json:"server_ip"`
	CameraConfig CameraConfig  `json:"camera"`
	Scanner      ScannerConfig `json:"scanner"`
	Log          LogConfig     `json:"log"`
}

// Default config
func defaultConfig() *AppConfig {
	return &AppConfig{
		CameraConfig: CameraConfig{
			MaxProbe:     10,
			PreviewSizes: []string{"640x480", "1280x720", "1920x1080"},
		},
		Scanner: ScannerConfig{
			ContinuousAutoFocus: true,
			AutoFocusIntervalMS: 1000,
			RecordingHint:       "any",
			Viewport:            "640x480",
		},
		Log: LogConfig{
			File:  "featherscan.log",
			Level: "info",
		},
		ServerIP:   "localhost",
		ServerPort: "8080",
	}
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return defaultConfig()
}

// getConfigPath ensures the config directory and file follow the Linux XDG convention
func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "featherscan")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads ~/.config/featherscan/config.json, falling back to defaults
func Load() (*AppConfig, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("error getting config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom reads the config at path. Missing fields keep their defaults and
// a missing file yields the defaults.
func LoadFrom(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}

	configFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer configFile.Close()

	data, err := io.ReadAll(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Save writes the config to ~/.config/featherscan
func Save(config *AppConfig) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("error getting config path: %w", err)
	}
	return SaveTo(configPath, config)
}

func SaveTo(path string, config *AppConfig) error {
	configBytes, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}
	if err := os.WriteFile(path, configBytes, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks every field that is parsed later.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.Scanner.Hint(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scanner.DecodeFormats(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scanner.GuideRect(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scanner.ViewportSize(); err != nil {
		errs = append(errs, fmt.Errorf("viewport: %w", err))
	}
	if c.Scanner.AutoFocusIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("autofocus interval must not be negative, got %d", c.Scanner.AutoFocusIntervalMS))
	}
	if _, err := c.CameraConfig.Sizes(); err != nil {
		errs = append(errs, err)
	}
	switch c.CameraConfig.MountOrientation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("mount orientation must be 0, 90, 180 or 270, got %d", c.CameraConfig.MountOrientation))
	}
	return errors.Join(errs...)
}

func (s ScannerConfig) Hint() (camera.RecordingHint, error) {
	return camera.ParseRecordingHint(s.RecordingHint)
}

func (s ScannerConfig) DecodeFormats() ([]decode.Format, error) {
	return decode.ParseFormats(s.Formats)
}

func (s ScannerConfig) GuideRect() (image.Rectangle, error) {
	switch len(s.Guide) {
	case 0:
		return image.Rectangle{}, nil
	case 4:
		r := image.Rect(s.Guide[0], s.Guide[1], s.Guide[2], s.Guide[3])
		if r.Empty() {
			return image.Rectangle{}, fmt.Errorf("guide rectangle %v is empty", r)
		}
		return r, nil
	default:
		return image.Rectangle{}, fmt.Errorf("guide needs 4 values, got %d", len(s.Guide))
	}
}

func (s ScannerConfig) ViewportSize() (geometry.Size, error) {
	if s.Viewport == "" {
		return geometry.Size{}, nil
	}
	return geometry.ParseSize(s.Viewport)
}

func (s ScannerConfig) AutoFocusInterval() time.Duration {
	return time.Duration(s.AutoFocusIntervalMS) * time.Millisecond
}

func (c CameraConfig) Sizes() ([]geometry.Size, error) {
	sizes := make([]geometry.Size, 0, len(c.PreviewSizes))
	for _, raw := range c.PreviewSizes {
		size, err := geometry.ParseSize(raw)
		if err != nil {
			return nil, fmt.Errorf("preview size: %w", err)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}
