package preview

import (
	"context"
	"image"

	"github.com/google/uuid"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// Session is one open camera. It is owned by the Controller and only touched
// with the controller lock held; every asynchronous callback carries the
// session it was issued for and is dropped if that session is no longer
// current.
type Session struct {
	ID       uuid.UUID
	cameraID int
	info     camera.Info
	handle   camera.Handle

	// ctx is cancelled when the session is torn down.
	ctx    context.Context
	cancel context.CancelFunc

	viewport           geometry.Size
	previewSize        geometry.Size
	displayOrientation int
	outputRotation     int
	inPreview          bool
	userPaused         bool
	listening          bool

	focusing   bool
	focusGen   int
	focusTimer timer

	request *frameRequest
}

// frameRequest is one requested frame, from the one-shot request until the
// frame handler reports completion.
type frameRequest struct {
	session   *Session
	delivered bool
}

func (s *Session) front() bool {
	return s.info.Facing == camera.FacingFront
}

// Snapshot is a read-only view of the controller for status displays.
type Snapshot struct {
	State              string          `json:"state"`
	SessionID          string          `json:"session_id,omitempty"`
	CameraID           int             `json:"camera_id"`
	Facing             string          `json:"facing,omitempty"`
	PreviewSize        geometry.Size   `json:"preview_size"`
	Viewport           geometry.Size   `json:"viewport"`
	Layout             image.Rectangle `json:"layout"`
	DisplayOrientation int             `json:"display_orientation"`
	OutputRotation     int             `json:"output_rotation"`
	InPreview          bool            `json:"in_preview"`
	OrientationLocked  bool            `json:"orientation_locked"`
	ContinuousFocus    bool            `json:"continuous_focus"`
	FramePending       bool            `json:"frame_pending"`
	FrameRequests      int64           `json:"frame_requests"`
}
