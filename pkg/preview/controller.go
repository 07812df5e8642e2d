// pkg/preview/controller.go
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

const (
	StateClosed        = "closed"
	StateOpening       = "opening"
	StatePreviewing    = "previewing"
	StatePaused        = "paused"
	StateReconfiguring = "reconfiguring"
)

const (
	eventOpen        = "open"
	eventOpenFailed  = "open_failed"
	eventPreview     = "preview"
	eventPause       = "pause"
	eventReconfigure = "reconfigure"
	eventClose       = "close"
)

const (
	DefaultAutoFocusInterval = time.Second

	// Video size hints smaller than this are ignored.
	minVideoHintArea = 256 * 256
)

// ErrClosed is returned by operations that need an open camera.
var ErrClosed = errors.New("camera is not open")

type timer interface {
	Stop() bool
}

type scheduleFunc func(d time.Duration, f func()) timer

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Controller owns the camera for one preview surface. All camera calls are
// made with mu held, which makes mu the camera-owning thread; host
// notifications are queued while it is held and delivered after release.
type Controller struct {
	mu      sync.Mutex
	machine *fsm.FSM

	provider    camera.Provider
	surface     Surface
	orientation OrientationSource
	frames      decode.FrameHandler
	host        Host
	logger      *zap.Logger
	schedule    scheduleFunc

	useFront        bool
	continuousFocus bool
	fullBleed       bool
	hint            camera.RecordingHint
	lockOrientation bool
	focusInterval   time.Duration

	session       *Session
	pending       []func()
	frameRequests int64
}

type Option func(*Controller)

func WithFrontCamera(front bool) Option {
	return func(c *Controller) { c.useFront = front }
}

func WithContinuousAutoFocus(enabled bool) Option {
	return func(c *Controller) { c.continuousFocus = enabled }
}

// WithFullBleed fills the viewport and crops the overflow instead of
// letterboxing.
func WithFullBleed(enabled bool) Option {
	return func(c *Controller) { c.fullBleed = enabled }
}

func WithRecordingHint(h camera.RecordingHint) Option {
	return func(c *Controller) { c.hint = h }
}

// WithOrientationLock keeps the display fixed and follows the device
// orientation through the picture rotation hint instead.
func WithOrientationLock(enabled bool) Option {
	return func(c *Controller) { c.lockOrientation = enabled }
}

func WithAutoFocusInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.focusInterval = d
		}
	}
}

func WithFrameHandler(h decode.FrameHandler) Option {
	return func(c *Controller) { c.frames = h }
}

func WithHost(h Host) Option {
	return func(c *Controller) {
		if h != nil {
			c.host = h
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func withScheduler(s scheduleFunc) Option {
	return func(c *Controller) { c.schedule = s }
}

// New creates a closed controller. A nil surface is treated as one that is
// never laid out; a nil orientation source as a device that never rotates.
func New(provider camera.Provider, surface Surface, orientation OrientationSource, opts ...Option) *Controller {
	c := &Controller{
		provider:      provider,
		surface:       surface,
		orientation:   orientation,
		logger:        zap.NewNop(),
		schedule:      afterFunc,
		focusInterval: DefaultAutoFocusInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.surface == nil {
		c.surface = NewFixedSurface(geometry.Size{})
	}
	if c.orientation == nil {
		c.orientation = NewManualOrientation(0)
	}
	if c.host == nil {
		c.host = LogHost{Logger: c.logger}
	}

	c.machine = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateClosed}, Dst: StateOpening},
			{Name: eventOpenFailed, Src: []string{StateOpening}, Dst: StateClosed},
			{Name: eventPreview, Src: []string{StateOpening, StatePaused, StateReconfiguring}, Dst: StatePreviewing},
			{Name: eventPause, Src: []string{StateOpening, StatePreviewing, StateReconfiguring}, Dst: StatePaused},
			{Name: eventReconfigure, Src: []string{StatePreviewing}, Dst: StateReconfiguring},
			{Name: eventClose, Src: []string{StateOpening, StatePreviewing, StatePaused, StateReconfiguring}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debug("preview state changed",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
	return c
}

// unlock releases mu and then runs the host notifications queued under it.
func (c *Controller) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

func (c *Controller) notify(fn func()) {
	c.pending = append(c.pending, fn)
}

func (c *Controller) reportLocked(err error) {
	c.logger.Warn("preview error", zap.Error(err))
	c.notify(func() { c.host.OnPipelineException(err) })
}

func (c *Controller) transition(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.logger.Error("invalid preview transition",
			zap.String("event", event),
			zap.String("state", c.machine.Current()),
			zap.Error(err))
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Start acquires a camera and begins previewing once the surface has a size.
// It does nothing when a session is already open.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()

	if c.session != nil {
		return nil
	}
	c.transition(eventOpen)

	id, info, ok := c.selectCamera()
	if !ok {
		c.transition(eventOpenFailed)
		c.logger.Error("no cameras reported")
		c.notify(func() { c.host.OnCameraOpenFailed(NoCamerasReported) })
		return &OpenError{Reason: NoCamerasReported, Err: ErrNoCameras}
	}

	handle, err := c.provider.Open(id)
	if err != nil {
		c.transition(eventOpenFailed)
		c.logger.Error("camera open failed", zap.Int("camera_id", id), zap.Error(err))
		c.notify(func() { c.host.OnCameraOpenFailed(Unknown) })
		return &OpenError{Reason: Unknown, Err: err}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:                 uuid.New(),
		cameraID:           id,
		info:               info,
		handle:             handle,
		ctx:                sctx,
		cancel:             cancel,
		displayOrientation: -1,
		outputRotation:     -1,
	}
	c.session = s
	c.logger.Info("camera opened",
		zap.Stringer("session", s.ID),
		zap.Int("camera_id", id),
		zap.Stringer("facing", info.Facing),
		zap.Int("mount_orientation", info.Orientation))

	if err := c.openLocked(s); err != nil {
		c.logger.Error("camera setup failed", zap.Stringer("session", s.ID), zap.Error(err))
		if rerr := c.teardownLocked(s); rerr != nil {
			c.logger.Warn("release after failed setup", zap.Error(rerr))
		}
		c.notify(func() { c.host.OnCameraOpenFailed(Unknown) })
		return &OpenError{Reason: Unknown, Err: err}
	}
	return nil
}

func (c *Controller) openLocked(s *Session) error {
	d := geometry.DisplayOrientation(s.info.Orientation, s.front(), c.orientation.DisplayRotation())
	if err := c.setDisplayOrientationLocked(s, d); err != nil {
		return err
	}
	if err := c.surface.Attach(s.handle); err != nil {
		return fmt.Errorf("attach surface: %w", err)
	}
	if c.lockOrientation {
		c.orientation.Enable()
		s.listening = true
	}
	go c.watch(s)

	s.viewport = c.surface.Size()
	if s.viewport.IsZero() {
		c.transition(eventPause)
		return nil
	}
	return c.startPreviewLocked(s)
}

func (c *Controller) selectCamera() (int, camera.Info, bool) {
	n := c.provider.NumberOfCameras()
	if n <= 0 {
		return -1, camera.Info{}, false
	}
	want := camera.FacingBack
	if c.useFront {
		want = camera.FacingFront
	}
	for id := 0; id < n; id++ {
		info, err := c.provider.CameraInfo(id)
		if err != nil {
			c.logger.Debug("camera info unavailable", zap.Int("camera_id", id), zap.Error(err))
			continue
		}
		if info.Facing == want {
			return id, info, true
		}
	}
	info, _ := c.provider.CameraInfo(0)
	return 0, info, true
}

// watch forwards surface and orientation changes until the session ends.
// Events are applied to whatever session is current when they arrive.
func (c *Controller) watch(s *Session) {
	sizes := c.surface.SizeChanges()
	rotations := c.orientation.Events()
	for {
		select {
		case <-s.ctx.Done():
			c.release(s)
			return
		case size, ok := <-sizes:
			if !ok {
				sizes = nil
				continue
			}
			c.Resize(size)
		case deg, ok := <-rotations:
			if !ok {
				rotations = nil
				continue
			}
			c.onOrientation(deg)
		}
	}
}

// release closes s if it is still current, for contexts cancelled by the
// caller of Start.
func (c *Controller) release(s *Session) {
	c.mu.Lock()
	defer c.unlock()
	if c.session != s {
		return
	}
	if err := c.teardownLocked(s); err != nil {
		c.logger.Warn("release camera", zap.Error(err))
	}
}

// Stop releases the camera. It is safe to call in any state.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.unlock()
	if c.session == nil {
		return nil
	}
	return c.teardownLocked(c.session)
}

func (c *Controller) teardownLocked(s *Session) error {
	c.session = nil
	s.cancel()
	if s.listening {
		c.orientation.Disable()
		s.listening = false
	}
	s.handle.SetOneShotPreviewCallback(nil)
	s.request = nil
	if s.inPreview {
		c.stopPreviewLocked(s)
	} else {
		c.cancelFocusLocked(s)
	}
	err := s.handle.Release()
	s.previewSize = geometry.Size{}
	s.displayOrientation = -1
	s.outputRotation = -1
	c.transition(eventClose)
	c.logger.Info("camera released", zap.Stringer("session", s.ID), zap.Int("camera_id", s.cameraID))
	if err != nil {
		return fmt.Errorf("release camera %d: %w", s.cameraID, err)
	}
	return nil
}

// ChoosePreviewSize picks the preview size for a viewport. A usable video
// size hint wins unless the camera is restricted to stills; otherwise the
// best aspect match among the supported sizes; otherwise the current size.
func ChoosePreviewSize(params camera.Parameters, hint camera.RecordingHint, viewport geometry.Size, displayOrientation int) geometry.Size {
	if hint != camera.HintStillOnly && params.PreferredVideoSize.Area() >= minVideoHintArea {
		return params.PreferredVideoSize
	}
	if best, ok := geometry.BestPreviewSize(params.SupportedPreviewSizes, viewport.Width, viewport.Height, displayOrientation); ok {
		return best
	}
	return params.PreviewSize
}

func (c *Controller) startPreviewLocked(s *Session) error {
	params := s.handle.Parameters()
	size := ChoosePreviewSize(params, c.hint, s.viewport, s.displayOrientation)
	params.PreviewSize = size
	params.RecordingHint = c.hint != camera.HintStillOnly
	if err := s.handle.SetParameters(params); err != nil {
		c.reportLocked(fmt.Errorf("%w: preview size %s: %w", ErrParameterApply, size, err))
	}
	s.previewSize = s.handle.Parameters().PreviewSize

	if err := s.handle.StartPreview(); err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	s.inPreview = true
	c.transition(eventPreview)
	c.logger.Debug("preview started",
		zap.Stringer("session", s.ID),
		zap.Stringer("preview_size", s.previewSize),
		zap.Stringer("viewport", s.viewport),
		zap.Int("display_orientation", s.displayOrientation))

	c.notify(c.host.OnAutoFocusAvailable)
	if c.continuousFocus {
		c.autoFocusLocked(s)
	}
	c.armLocked(s)
	return nil
}

func (c *Controller) stopPreviewLocked(s *Session) {
	s.handle.SetOneShotPreviewCallback(nil)
	if s.request != nil && !s.request.delivered {
		s.request = nil
	}
	c.cancelFocusLocked(s)
	if err := s.handle.StopPreview(); err != nil {
		c.logger.Warn("stop preview", zap.Stringer("session", s.ID), zap.Error(err))
	}
	s.inPreview = false
	c.notify(c.host.OnAutoFocusUnavailable)
}

// Resize is the single entry point for viewport changes. A change that
// leaves the negotiated preview size alone only updates the layout; a zero
// size pauses the preview.
func (c *Controller) Resize(size geometry.Size) {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil {
		return
	}
	s.viewport = size

	if size.IsZero() {
		if s.inPreview {
			c.stopPreviewLocked(s)
			c.transition(eventPause)
		}
		return
	}
	if !s.inPreview {
		if s.userPaused {
			return
		}
		if err := c.startPreviewLocked(s); err != nil {
			c.reportLocked(err)
		}
		return
	}

	next := ChoosePreviewSize(s.handle.Parameters(), c.hint, size, s.displayOrientation)
	if next == s.previewSize {
		return
	}
	c.logger.Debug("reconfiguring preview",
		zap.Stringer("session", s.ID),
		zap.Stringer("from", s.previewSize),
		zap.Stringer("to", next))
	c.restartLocked(s, nil)
}

// restartLocked stops the preview, applies change and starts it again. A
// failed restart leaves the session paused.
func (c *Controller) restartLocked(s *Session, change func() error) {
	c.transition(eventReconfigure)
	c.stopPreviewLocked(s)
	if change != nil {
		if err := change(); err != nil {
			c.reportLocked(err)
		}
	}
	if err := c.startPreviewLocked(s); err != nil {
		c.transition(eventPause)
		c.reportLocked(err)
	}
}

// Pause stops the preview but keeps the camera. Surface changes do not
// restart it until Resume.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil {
		return ErrClosed
	}
	s.userPaused = true
	if s.inPreview {
		c.stopPreviewLocked(s)
		c.transition(eventPause)
	}
	return nil
}

// Resume restarts a paused preview. It does nothing while the surface has
// no size.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil {
		return ErrClosed
	}
	s.userPaused = false
	if s.inPreview || s.viewport.IsZero() {
		return nil
	}
	if err := c.startPreviewLocked(s); err != nil {
		c.reportLocked(err)
		return err
	}
	return nil
}

// UpdateDisplayOrientation recomputes the display orientation after the
// display rotated. The preview is restarted only if the value changed.
func (c *Controller) UpdateDisplayOrientation() error {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil {
		return ErrClosed
	}
	d := geometry.DisplayOrientation(s.info.Orientation, s.front(), c.orientation.DisplayRotation())
	if d == s.displayOrientation {
		return nil
	}
	if !s.inPreview {
		return c.setDisplayOrientationLocked(s, d)
	}
	c.restartLocked(s, func() error { return c.setDisplayOrientationLocked(s, d) })
	return nil
}

func (c *Controller) setDisplayOrientationLocked(s *Session, degrees int) error {
	if err := s.handle.SetDisplayOrientation(degrees); err != nil {
		return fmt.Errorf("%w: display orientation %d: %w", ErrParameterApply, degrees, err)
	}
	s.displayOrientation = degrees
	return nil
}

// SetOrientationLock turns device orientation tracking on or off.
func (c *Controller) SetOrientationLock(enabled bool) {
	c.mu.Lock()
	defer c.unlock()
	c.lockOrientation = enabled
	s := c.session
	if s == nil || s.listening == enabled {
		return
	}
	if enabled {
		c.orientation.Enable()
	} else {
		c.orientation.Disable()
	}
	s.listening = enabled
}

func (c *Controller) onOrientation(raw int) {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil || !s.listening || raw < 0 {
		return
	}
	rotation := geometry.PictureRotation(s.info.Orientation, s.front(), raw)
	if rotation == s.outputRotation {
		return
	}
	params := s.handle.Parameters()
	params.Rotation = rotation
	if err := s.handle.SetParameters(params); err != nil {
		c.reportLocked(fmt.Errorf("%w: rotation %d: %w", ErrParameterApply, rotation, err))
		return
	}
	s.outputRotation = rotation
	c.logger.Debug("picture rotation changed", zap.Stringer("session", s.ID), zap.Int("rotation", rotation))
}

// AutoFocus starts one focus pass. A pass already in flight is left alone.
func (c *Controller) AutoFocus() error {
	c.mu.Lock()
	defer c.unlock()
	s := c.session
	if s == nil || !s.inPreview {
		return ErrNotPreviewing
	}
	if s.focusing {
		return nil
	}
	return c.autoFocusLocked(s)
}

// SetContinuousAutoFocus turns the refocus loop on or off.
func (c *Controller) SetContinuousAutoFocus(enabled bool) {
	c.mu.Lock()
	defer c.unlock()
	c.continuousFocus = enabled
	s := c.session
	if s == nil || !s.inPreview {
		return
	}
	if enabled {
		if !s.focusing && s.focusTimer == nil {
			c.autoFocusLocked(s)
		}
		return
	}
	if s.focusTimer != nil {
		s.focusTimer.Stop()
		s.focusTimer = nil
	}
}

func (c *Controller) autoFocusLocked(s *Session) error {
	gen := s.focusGen
	s.focusing = true
	err := s.handle.AutoFocus(func(success bool) { c.onAutoFocus(s, gen, success) })
	if err != nil {
		s.focusing = false
		err = fmt.Errorf("autofocus: %w", err)
		c.reportLocked(err)
	}
	return err
}

func (c *Controller) onAutoFocus(s *Session, gen int, success bool) {
	c.mu.Lock()
	defer c.unlock()
	if c.session != s || s.focusGen != gen {
		c.logger.Debug("dropping stale autofocus completion")
		return
	}
	s.focusing = false
	c.logger.Debug("autofocus finished", zap.Stringer("session", s.ID), zap.Bool("success", success))
	if !c.continuousFocus || !s.inPreview {
		return
	}
	s.focusTimer = c.schedule(c.focusInterval, func() { c.refocus(s, gen) })
}

func (c *Controller) refocus(s *Session, gen int) {
	c.mu.Lock()
	defer c.unlock()
	if c.session != s || s.focusGen != gen || s.ctx.Err() != nil {
		return
	}
	s.focusTimer = nil
	if !s.inPreview || !c.continuousFocus || s.focusing {
		return
	}
	c.autoFocusLocked(s)
}

// cancelFocusLocked abandons the focus pass and any scheduled refocus.
// Completions issued before the call are ignored.
func (c *Controller) cancelFocusLocked(s *Session) {
	if s.focusTimer != nil {
		s.focusTimer.Stop()
		s.focusTimer = nil
	}
	s.focusGen++
	if s.focusing {
		if err := s.handle.CancelAutoFocus(); err != nil {
			c.logger.Debug("cancel autofocus", zap.Error(err))
		}
		s.focusing = false
	}
}

// armLocked requests the next preview frame. There is never more than one
// request per session.
func (c *Controller) armLocked(s *Session) bool {
	if c.frames == nil || !s.inPreview || s.request != nil {
		return false
	}
	req := &frameRequest{session: s}
	s.request = req
	c.frameRequests++
	s.handle.SetOneShotPreviewCallback(func(data []byte, width, height int) {
		c.deliver(req, data, width, height)
	})
	return true
}

func (c *Controller) deliver(req *frameRequest, data []byte, width, height int) {
	c.mu.Lock()
	s := req.session
	if c.session != s || s.request != req || req.delivered || !s.inPreview {
		c.logger.Debug("dropping stale preview frame")
		c.unlock()
		return
	}
	if !s.previewSize.IsZero() && (width != s.previewSize.Width || height != s.previewSize.Height) {
		c.logger.Debug("dropping frame of a previous preview size",
			zap.Int("width", width), zap.Int("height", height),
			zap.Stringer("preview_size", s.previewSize))
		s.request = nil
		c.armLocked(s)
		c.unlock()
		return
	}
	req.delivered = true
	frame := decode.Frame{
		Data:               data,
		Width:              width,
		Height:             height,
		DisplayOrientation: s.displayOrientation,
		Viewport:           s.viewport,
	}
	frames := c.frames
	c.unlock()

	frames.HandleFrame(frame, func() { c.rearm(req) })
}

// rearm requests the frame after req. It is a no-op unless req is still the
// session's outstanding request, so repeated or stale calls cannot stack up
// requests.
func (c *Controller) rearm(req *frameRequest) {
	c.mu.Lock()
	defer c.unlock()
	s := req.session
	if c.session != s || s.request != req {
		return
	}
	s.request = nil
	c.armLocked(s)
}

// Snapshot reports the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:              c.machine.Current(),
		CameraID:           -1,
		DisplayOrientation: -1,
		OutputRotation:     -1,
		OrientationLocked:  c.lockOrientation,
		ContinuousFocus:    c.continuousFocus,
		FrameRequests:      c.frameRequests,
	}
	s := c.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID.String()
	snap.CameraID = s.cameraID
	snap.Facing = s.info.Facing.String()
	snap.PreviewSize = s.previewSize
	snap.Viewport = s.viewport
	snap.DisplayOrientation = s.displayOrientation
	snap.OutputRotation = s.outputRotation
	snap.InPreview = s.inPreview
	snap.FramePending = s.request != nil
	if s.inPreview {
		snap.Layout = geometry.Layout(s.viewport, s.previewSize, s.displayOrientation, c.fullBleed)
	}
	return snap
}
