// pkg/camera/camera.go
package camera

import (
	"fmt"
	"strings"

	"github.com/AlverezYari/featherscan/pkg/geometry"
)

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// Info describes a camera before it is opened.
type Info struct {
	Facing Facing
	// Orientation is the sensor mount angle in degrees, clockwise.
	Orientation int
}

type RecordingHint int

const (
	HintAny RecordingHint = iota
	HintStillOnly
	HintVideoOnly
)

func (h RecordingHint) String() string {
	switch h {
	case HintStillOnly:
		return "still_only"
	case HintVideoOnly:
		return "video_only"
	default:
		return "any"
	}
}

// ParseRecordingHint accepts the config spellings; empty means any.
func ParseRecordingHint(s string) (RecordingHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "none":
		return HintAny, nil
	case "still_only", "still":
		return HintStillOnly, nil
	case "video_only", "video":
		return HintVideoOnly, nil
	default:
		return HintAny, fmt.Errorf("unknown recording hint %q", s)
	}
}

// Device is a camera found by a scan.
type Device struct {
	ID          int
	Name        string
	IsAvailable bool
	Info        Info
}

// Parameters is a snapshot of the tunable camera state. Handles return
// copies; changes take effect through SetParameters.
type Parameters struct {
	PreviewSize           geometry.Size
	SupportedPreviewSizes []geometry.Size
	// PreferredVideoSize is the device hint for video previews, zero when
	// the device gives none.
	PreferredVideoSize geometry.Size
	RecordingHint      bool
	// Rotation is the picture rotation hint in degrees.
	Rotation int
}

// Clone returns a copy that shares no slices with p.
func (p Parameters) Clone() Parameters {
	c := p
	c.SupportedPreviewSizes = append([]geometry.Size(nil), p.SupportedPreviewSizes...)
	return c
}

// PreviewCallback receives one raw preview buffer. The data is a luminance
// plane of width*height bytes followed by whatever chroma the device sends.
type PreviewCallback func(data []byte, width, height int)

type AutoFocusCallback func(success bool)

// Provider enumerates and opens cameras.
type Provider interface {
	NumberOfCameras() int
	CameraInfo(id int) (Info, error)
	Open(id int) (Handle, error)
}

// Handle is an open camera. Only one Handle per camera may exist at a time.
type Handle interface {
	Release() error

	Parameters() Parameters
	SetParameters(p Parameters) error
	SetDisplayOrientation(degrees int) error

	StartPreview() error
	StopPreview() error

	// AutoFocus starts one asynchronous focus pass; cb runs on completion.
	AutoFocus(cb AutoFocusCallback) error
	CancelAutoFocus() error

	// SetOneShotPreviewCallback asks for exactly one preview buffer. A nil
	// callback cancels an outstanding request.
	SetOneShotPreviewCallback(cb PreviewCallback)
}
