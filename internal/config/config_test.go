package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.ServerPort != "8080" || cfg.Scanner.AutoFocusInterval() != time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFrom_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server_port": "9090", "scanner": {"formats": ["qr_code", "ean_13"], "guide": [10, 20, 110, 70]}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("server port = %q, want 9090", cfg.ServerPort)
	}
	if cfg.ServerIP != "localhost" {
		t.Errorf("server ip = %q, want the default", cfg.ServerIP)
	}
	if !cfg.Scanner.ContinuousAutoFocus {
		t.Error("continuous autofocus default lost")
	}
	formats, err := cfg.Scanner.DecodeFormats()
	if err != nil || len(formats) != 2 || formats[0] != decode.FormatQRCode {
		t.Errorf("formats = %v, %v", formats, err)
	}
	guide, err := cfg.Scanner.GuideRect()
	if err != nil || guide != image.Rect(10, 20, 110, 70) {
		t.Errorf("guide = %v, %v", guide, err)
	}
}

func TestLoadFrom_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"server_port": `},
		{"unknown format", `{"scanner": {"formats": ["PDF_417"]}}`},
		{"bad hint", `{"scanner": {"recording_hint": "slow_motion"}}`},
		{"short guide", `{"scanner": {"guide": [1, 2, 3]}}`},
		{"empty guide", `{"scanner": {"guide": [5, 5, 5, 50]}}`},
		{"bad viewport", `{"scanner": {"viewport": "wide"}}`},
		{"bad preview size", `{"camera": {"preview_sizes": ["640x0"]}}`},
		{"bad mount", `{"camera": {"mount_orientation": 45}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("LoadFrom accepted an invalid config")
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Scanner.RecordingHint = "still_only"
	cfg.CameraConfig.MountOrientation = 90

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	hint, err := got.Scanner.Hint()
	if err != nil || hint != camera.HintStillOnly {
		t.Errorf("hint = %v, %v", hint, err)
	}
	if got.CameraConfig.MountOrientation != 90 {
		t.Errorf("mount orientation = %d, want 90", got.CameraConfig.MountOrientation)
	}
}

func TestCameraConfig_Sizes(t *testing.T) {
	sizes, err := Default().CameraConfig.Sizes()
	if err != nil {
		t.Fatalf("Sizes: %v", err)
	}
	want := []geometry.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}, {Width: 1920, Height: 1080}}
	if len(sizes) != len(want) {
		t.Fatalf("sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("sizes[%d] = %v, want %v", i, sizes[i], want[i])
		}
	}
}
