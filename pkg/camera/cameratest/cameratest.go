// Package cameratest provides an in-memory camera for tests. Frames and
// autofocus completions are delivered only when the test asks for them.
package cameratest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// Provider is a scriptable camera.Provider.
type Provider struct {
	mu      sync.Mutex
	cameras []camera.Info
	params  camera.Parameters
	openErr error
	opens   int
	handles []*Handle
}

// NewProvider returns a provider with the given cameras. Every opened handle
// starts with params.
func NewProvider(params camera.Parameters, cameras ...camera.Info) *Provider {
	return &Provider{cameras: cameras, params: params.Clone()}
}

// FailOpen makes every following Open return err.
func (p *Provider) FailOpen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErr = err
}

func (p *Provider) NumberOfCameras() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cameras)
}

func (p *Provider) CameraInfo(id int) (camera.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.cameras) {
		return camera.Info{}, fmt.Errorf("camera %d not found", id)
	}
	return p.cameras[id], nil
}

func (p *Provider) Open(id int) (camera.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	if p.openErr != nil {
		return nil, p.openErr
	}
	if id < 0 || id >= len(p.cameras) {
		return nil, fmt.Errorf("camera %d not found", id)
	}
	for _, h := range p.handles {
		if h.ID == id && !h.IsReleased() {
			return nil, fmt.Errorf("camera %d is in use", id)
		}
	}
	h := &Handle{ID: id, params: p.params.Clone(), displayOrientation: -1}
	p.handles = append(p.handles, h)
	return h, nil
}

// Opens counts Open calls, failed ones included.
func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Last returns the most recently opened handle, or nil.
func (p *Provider) Last() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	return p.handles[len(p.handles)-1]
}

var ErrReleased = errors.New("cameratest: handle released")

// Handle records every call made on it.
type Handle struct {
	ID int

	mu                 sync.Mutex
	params             camera.Parameters
	paramErr           error
	displayOrientation int
	previewing         bool
	released           bool
	starts             int
	stops              int
	paramSets          int
	frameRequests      int
	oneShot            camera.PreviewCallback
	focusCalls         int
	focusCancels       int
	focusCallbacks     []camera.AutoFocusCallback
}

// FailParameters makes SetParameters return err until called with nil.
func (h *Handle) FailParameters(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paramErr = err
}

func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.released = true
	h.previewing = false
	h.oneShot = nil
	return nil
}

func (h *Handle) Parameters() camera.Parameters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params.Clone()
}

func (h *Handle) SetParameters(p camera.Parameters) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if h.paramErr != nil {
		return h.paramErr
	}
	sizes := h.params.SupportedPreviewSizes
	h.params = p.Clone()
	h.params.SupportedPreviewSizes = sizes
	h.paramSets++
	return nil
}

func (h *Handle) SetDisplayOrientation(degrees int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.displayOrientation = degrees
	return nil
}

func (h *Handle) StartPreview() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.previewing = true
	h.starts++
	return nil
}

func (h *Handle) StopPreview() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.previewing = false
	h.oneShot = nil
	h.stops++
	return nil
}

func (h *Handle) AutoFocus(cb camera.AutoFocusCallback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.focusCalls++
	h.focusCallbacks = append(h.focusCallbacks, cb)
	return nil
}

func (h *Handle) CancelAutoFocus() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focusCancels++
	h.focusCallbacks = nil
	return nil
}

func (h *Handle) SetOneShotPreviewCallback(cb camera.PreviewCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.oneShot = cb
	if cb != nil {
		h.frameRequests++
	}
}

// Deliver hands one frame to the pending one-shot callback and clears it, as
// the hardware would. It returns false when nothing was requested.
func (h *Handle) Deliver(data []byte, width, height int) bool {
	h.mu.Lock()
	cb := h.oneShot
	ok := cb != nil && h.previewing
	if ok {
		h.oneShot = nil
	}
	h.mu.Unlock()

	if ok {
		cb(data, width, height)
	}
	return ok
}

// DeliverBlank delivers a zeroed frame of the current preview size.
func (h *Handle) DeliverBlank() bool {
	size := h.Parameters().PreviewSize
	return h.Deliver(make([]byte, size.Area()), size.Width, size.Height)
}

// CompleteAutoFocus runs the oldest pending focus callback.
func (h *Handle) CompleteAutoFocus(success bool) bool {
	h.mu.Lock()
	if len(h.focusCallbacks) == 0 {
		h.mu.Unlock()
		return false
	}
	cb := h.focusCallbacks[0]
	h.focusCallbacks = h.focusCallbacks[1:]
	h.mu.Unlock()

	if cb != nil {
		cb(success)
	}
	return true
}

// Stats is a copy of the handle's counters.
type Stats struct {
	DisplayOrientation int
	Previewing         bool
	Released           bool
	Starts             int
	Stops              int
	ParamSets          int
	FrameRequests      int
	FramePending       bool
	FocusCalls         int
	FocusCancels       int
	PreviewSize        geometry.Size
	Rotation           int
	RecordingHint      bool
}

func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		DisplayOrientation: h.displayOrientation,
		Previewing:         h.previewing,
		Released:           h.released,
		Starts:             h.starts,
		Stops:              h.stops,
		ParamSets:          h.paramSets,
		FrameRequests:      h.frameRequests,
		FramePending:       h.oneShot != nil,
		FocusCalls:         h.focusCalls,
		FocusCancels:       h.focusCancels,
		PreviewSize:        h.params.PreviewSize,
		Rotation:           h.params.Rotation,
		RecordingHint:      h.params.RecordingHint,
	}
}

func (h *Handle) IsReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
