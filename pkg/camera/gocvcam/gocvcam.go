// pkg/camera/gocvcam/gocvcam.go
package gocvcam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

const (
	// DefaultMaxProbe is how many capture indexes a scan tries.
	DefaultMaxProbe = 5

	readRetryDelay = 50 * time.Millisecond
)

var DefaultPreviewSizes = []geometry.Size{
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

// Provider exposes OpenCV capture devices as cameras. OpenCV cannot list the
// sizes a device supports, so the candidate list comes from configuration.
//
// Camera ids are positions in the last scan. While any camera is open a scan
// leaves that list alone and only refreshes availability, so ids stay valid
// for the open session.
type Provider struct {
	mu       sync.Mutex
	maxProbe int
	mount    int
	sizes    []geometry.Size
	logger   *zap.Logger
	devices  []camera.Device
	scanned  bool
	inUse    map[int]bool
	probe    func(index int) bool
}

type Option func(*Provider)

func WithMaxProbe(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxProbe = n
		}
	}
}

// WithMountOrientation sets the sensor mount angle reported for every device.
func WithMountOrientation(degrees int) Option {
	return func(p *Provider) { p.mount = degrees }
}

func WithPreviewSizes(sizes []geometry.Size) Option {
	return func(p *Provider) {
		if len(sizes) > 0 {
			p.sizes = append([]geometry.Size(nil), sizes...)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// withProbe replaces the check that a capture index can be opened.
func withProbe(fn func(index int) bool) Option {
	return func(p *Provider) { p.probe = fn }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		maxProbe: DefaultMaxProbe,
		sizes:    DefaultPreviewSizes,
		logger:   zap.NewNop(),
		inUse:    make(map[int]bool),
		probe:    probeCapture,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func probeCapture(index int) bool {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return false
	}
	defer capture.Close()
	return capture.IsOpened()
}

// ScanDevices opens capture indexes in order and keeps the ones that work.
// An index held by an open camera is never probed; it is reported in use.
func (p *Provider) ScanDevices() ([]camera.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scanned && len(p.inUse) > 0 {
		devices := make([]camera.Device, len(p.devices))
		for i, d := range p.devices {
			d.IsAvailable = !p.inUse[d.ID] && p.probe(d.ID)
			devices[i] = d
		}
		p.logger.Debug("refreshed capture devices while a camera is open",
			zap.Int("devices", len(devices)), zap.Int("in_use", len(p.inUse)))
		return devices, nil
	}

	var devices []camera.Device
	for i := 0; i < p.maxProbe; i++ {
		if !p.probe(i) {
			continue
		}
		name := fmt.Sprintf("Camera %d", i)
		if i == 0 {
			name = "Built-in Camera"
		}
		devices = append(devices, camera.Device{
			ID:          i,
			Name:        name,
			IsAvailable: true,
			Info:        camera.Info{Facing: camera.FacingBack, Orientation: p.mount},
		})
	}
	p.logger.Debug("scanned capture devices", zap.Int("found", len(devices)))

	p.devices = devices
	p.scanned = true
	return append([]camera.Device(nil), devices...), nil
}

func (p *Provider) acquire(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[index] = true
}

func (p *Provider) release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, index)
}

func (p *Provider) NumberOfCameras() int {
	p.mu.Lock()
	scanned, n := p.scanned, len(p.devices)
	p.mu.Unlock()
	if scanned {
		return n
	}
	devices, _ := p.ScanDevices()
	return len(devices)
}

func (p *Provider) CameraInfo(id int) (camera.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.devices) {
		return camera.Info{}, fmt.Errorf("camera %d not found", id)
	}
	return p.devices[id].Info, nil
}

func (p *Provider) Open(id int) (camera.Handle, error) {
	p.mu.Lock()
	if id < 0 || id >= len(p.devices) {
		p.mu.Unlock()
		return nil, fmt.Errorf("camera %d not found", id)
	}
	index := p.devices[id].ID
	sizes := append([]geometry.Size(nil), p.sizes...)
	p.mu.Unlock()

	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("error opening camera %d: %w", index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d is not open", index)
	}

	p.acquire(index)
	h := &handle{
		index:     index,
		capture:   capture,
		logger:    p.logger.With(zap.Int("capture_index", index)),
		oneShot:   make(chan camera.PreviewCallback, 1),
		onRelease: func() { p.release(index) },
	}
	h.params = camera.Parameters{
		PreviewSize:           h.currentSizeLocked(),
		SupportedPreviewSizes: sizes,
	}
	return h, nil
}

type handle struct {
	mu                 sync.Mutex
	index              int
	capture            *gocv.VideoCapture
	params             camera.Parameters
	displayOrientation int
	released           bool

	oneShot   chan camera.PreviewCallback
	stop      chan struct{}
	onRelease func()

	logger *zap.Logger
}

var errReleased = errors.New("camera already released")

func (h *handle) currentSizeLocked() geometry.Size {
	return geometry.Size{
		Width:  int(h.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(h.capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}

func (h *handle) Parameters() camera.Parameters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params.Clone()
}

// SetParameters applies the preview size. The driver may pick a nearby mode,
// so the size actually in effect is read back.
func (h *handle) SetParameters(p camera.Parameters) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return errReleased
	}
	if p.Rotation%90 != 0 {
		return fmt.Errorf("rotation %d is not a multiple of 90", p.Rotation)
	}
	if !p.PreviewSize.IsZero() && p.PreviewSize != h.params.PreviewSize {
		h.capture.Set(gocv.VideoCaptureFrameWidth, float64(p.PreviewSize.Width))
		h.capture.Set(gocv.VideoCaptureFrameHeight, float64(p.PreviewSize.Height))
	}
	sizes := h.params.SupportedPreviewSizes
	h.params = p.Clone()
	h.params.SupportedPreviewSizes = sizes
	h.params.PreviewSize = h.currentSizeLocked()
	return nil
}

func (h *handle) SetDisplayOrientation(degrees int) error {
	if degrees%90 != 0 {
		return fmt.Errorf("display orientation %d is not a multiple of 90", degrees)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.displayOrientation = degrees
	return nil
}

func (h *handle) StartPreview() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return errReleased
	}
	if h.stop != nil {
		return nil
	}
	h.stop = make(chan struct{})
	go h.previewLoop(h.stop)
	return nil
}

// StopPreview does not wait for the preview goroutine: it may be inside a
// callback that is itself waiting on the caller.
func (h *handle) StopPreview() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	return nil
}

// previewLoop serves one-shot requests. A request whose read fails stays
// pending and is retried until it succeeds or the preview stops.
func (h *handle) previewLoop(stop chan struct{}) {
	img := gocv.NewMat()
	defer img.Close()
	gray := gocv.NewMat()
	defer gray.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		var cb camera.PreviewCallback
		select {
		case <-stop:
			return
		case cb = <-h.oneShot:
		}

		for {
			data, w, height, err := h.grab(&img, &gray)
			if err == nil {
				cb(data, w, height)
				break
			}
			h.logger.Debug("frame read failed", zap.Error(err))
			select {
			case <-stop:
				return
			case <-time.After(readRetryDelay):
			}
		}
	}
}

func (h *handle) grab(img, gray *gocv.Mat) ([]byte, int, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, 0, 0, errReleased
	}
	if ok := h.capture.Read(img); !ok || img.Empty() {
		return nil, 0, 0, fmt.Errorf("failed to read frame from camera %d", h.index)
	}
	if img.Channels() == 1 {
		img.CopyTo(gray)
	} else {
		gocv.CvtColor(*img, gray, gocv.ColorBGRToGray)
	}
	return gray.ToBytes(), gray.Cols(), gray.Rows(), nil
}

func (h *handle) AutoFocus(cb camera.AutoFocusCallback) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return errReleased
	}
	h.capture.Set(gocv.VideoCaptureAutoFocus, 1)
	h.mu.Unlock()

	if cb != nil {
		go cb(true)
	}
	return nil
}

func (h *handle) CancelAutoFocus() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return errReleased
	}
	h.capture.Set(gocv.VideoCaptureAutoFocus, 0)
	return nil
}

func (h *handle) SetOneShotPreviewCallback(cb camera.PreviewCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.oneShot:
	default:
	}
	if cb != nil {
		h.oneShot <- cb
	}
}

func (h *handle) Release() error {
	h.StopPreview()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if h.onRelease != nil {
		h.onRelease()
	}
	if err := h.capture.Close(); err != nil {
		return fmt.Errorf("error closing camera %d: %w", h.index, err)
	}
	return nil
}
