// pkg/preview/host.go
package preview

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type FailureReason int

const (
	NoCamerasReported FailureReason = iota + 1
	Unknown
)

func (r FailureReason) String() string {
	switch r {
	case NoCamerasReported:
		return "no_cameras_reported"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("failure_reason(%d)", int(r))
	}
}

var (
	ErrNoCameras      = errors.New("no cameras reported")
	ErrNotPreviewing  = errors.New("camera is not previewing")
	ErrParameterApply = errors.New("camera rejected parameters")
)

// OpenError is returned by Start when the camera could not be acquired.
type OpenError struct {
	Reason FailureReason
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera open failed (%s)", e.Reason)
	}
	return fmt.Sprintf("camera open failed (%s): %v", e.Reason, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Host is notified of lifecycle events. Calls are made without any
// controller lock held, so a Host may call back into the Controller.
type Host interface {
	OnCameraOpenFailed(reason FailureReason)
	OnAutoFocusAvailable()
	OnAutoFocusUnavailable()
	OnPipelineException(err error)
}

// LogHost only logs. Embed it to override a subset of the callbacks.
type LogHost struct {
	Logger *zap.Logger
}

func (h LogHost) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h LogHost) OnCameraOpenFailed(reason FailureReason) {
	h.logger().Error("camera access failed", zap.Stringer("reason", reason))
}

func (h LogHost) OnAutoFocusAvailable() {
	h.logger().Debug("autofocus available")
}

func (h LogHost) OnAutoFocusUnavailable() {
	h.logger().Debug("autofocus unavailable")
}

func (h LogHost) OnPipelineException(err error) {
	h.logger().Warn("preview pipeline exception", zap.Error(err))
}
