// pkg/decode/pipeline.go
package decode

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// Pipeline runs one decode attempt per delivered frame. It never holds more
// than one frame: a frame handed over while another is being decoded is
// refused and reported, and its done still runs.
type Pipeline struct {
	decoder Decoder
	sink    Sink
	guide   image.Rectangle
	logger  *zap.Logger

	busy atomic.Bool

	frames    atomic.Int64
	found     atomic.Int64
	notFound  atomic.Int64
	transient atomic.Int64
}

type Option func(*Pipeline)

// WithGuide sets the viewfinder guide rectangle in viewport coordinates.
func WithGuide(r image.Rectangle) Option {
	return func(p *Pipeline) { p.guide = r.Canon() }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func NewPipeline(decoder Decoder, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder: decoder,
		sink:    sink,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleFrame decodes f and then calls done. A found symbol reaches the sink
// before done runs, so a sink that stops the camera sees no further request.
// A refused frame also calls done so its session keeps requesting frames.
func (p *Pipeline) HandleFrame(f Frame, done func()) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Warn("dropping overlapping frame", zap.Int("width", f.Width), zap.Int("height", f.Height))
		if p.sink != nil {
			p.sink.OnPipelineException(ErrFrameOverlap)
		}
		if done != nil {
			done()
		}
		return
	}

	out := p.Process(f)
	if out.Kind == Found && p.sink != nil {
		p.sink.OnDecodeResult(out.Result)
	}
	p.busy.Store(false)

	if done != nil {
		done()
	}
}

// Process runs the orientation, crop and decode steps for one frame.
func (p *Pipeline) Process(f Frame) Outcome {
	p.frames.Add(1)
	out := p.process(f)

	switch out.Kind {
	case Found:
		p.found.Add(1)
		p.logger.Info("barcode decoded",
			zap.String("format", string(out.Result.Format)),
			zap.Int("length", len(out.Result.Text)))
	case NotFound:
		p.notFound.Add(1)
	case TransientError:
		p.transient.Add(1)
		p.logger.Debug("decode attempt failed", zap.Error(out.Err))
	}
	return out
}

func (p *Pipeline) process(f Frame) Outcome {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 || len(f.Data) < w*h {
		return Outcome{Kind: TransientError, Err: fmt.Errorf("%w: %d bytes for %dx%d", ErrShortFrame, len(f.Data), w, h)}
	}

	data := f.Data
	if geometry.IsPortrait(f.DisplayOrientation) {
		data = RotateLuminance(data, w, h)
		w, h = h, w
	}

	crop := CropWindow(geometry.Size{Width: w, Height: h}, f.Viewport, p.guide)
	if crop.Empty() {
		return Outcome{Kind: TransientError, Err: ErrDegenerateCrop}
	}

	res, err := p.decode(Luminance{Pix: data, Width: w, Height: h, Crop: crop})
	switch {
	case err == nil:
		return Outcome{Kind: Found, Result: res}
	case errors.Is(err, ErrNotFound):
		return Outcome{Kind: NotFound}
	default:
		return Outcome{Kind: TransientError, Err: err}
	}
}

// decode converts decoder panics on malformed input into errors.
func (p *Pipeline) decode(l Luminance) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDecoderFault, r)
		}
	}()
	return p.decoder.Decode(l)
}

type Stats struct {
	Frames    int64 `json:"frames"`
	Found     int64 `json:"found"`
	NotFound  int64 `json:"not_found"`
	Transient int64 `json:"transient"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:    p.frames.Load(),
		Found:     p.found.Load(),
		NotFound:  p.notFound.Load(),
		Transient: p.transient.Load(),
	}
}
