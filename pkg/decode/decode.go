// pkg/decode/decode.go
package decode

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// Format names a barcode symbology.
type Format string

const (
	FormatUPCA       Format = "UPC_A"
	FormatUPCE       Format = "UPC_E"
	FormatEAN13      Format = "EAN_13"
	FormatEAN8       Format = "EAN_8"
	FormatRSS14      Format = "RSS_14"
	FormatCode39     Format = "CODE_39"
	FormatCode93     Format = "CODE_93"
	FormatCode128    Format = "CODE_128"
	FormatITF        Format = "ITF"
	FormatCodabar    Format = "CODABAR"
	FormatQRCode     Format = "QR_CODE"
	FormatDataMatrix Format = "DATA_MATRIX"
)

// AllFormats is the default allow-list, in the order decoders try them.
var AllFormats = []Format{
	FormatUPCA,
	FormatUPCE,
	FormatEAN13,
	FormatEAN8,
	FormatRSS14,
	FormatCode39,
	FormatCode93,
	FormatCode128,
	FormatITF,
	FormatCodabar,
	FormatQRCode,
	FormatDataMatrix,
}

// ParseFormats maps config names onto formats. An empty list means all.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return append([]Format(nil), AllFormats...), nil
	}
	seen := make(map[Format]bool, len(names))
	formats := make([]Format, 0, len(names))
	for _, name := range names {
		f := Format(strings.ToUpper(strings.TrimSpace(name)))
		if !isKnown(f) {
			return nil, fmt.Errorf("unsupported barcode format %q", name)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return formats, nil
}

func isKnown(f Format) bool {
	for _, k := range AllFormats {
		if k == f {
			return true
		}
	}
	return false
}

// Frame is one raw preview buffer plus the geometry it was captured under.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	// DisplayOrientation is the preview rotation in effect at capture time.
	DisplayOrientation int
	// Viewport is the on-screen preview size the guide rectangle refers to.
	Viewport geometry.Size
}

// Luminance is a grayscale view of a frame: Width*Height bytes of Y, read
// only inside Crop.
type Luminance struct {
	Pix    []byte
	Width  int
	Height int
	Crop   image.Rectangle
}

// Result is a decoded symbol.
type Result struct {
	Text   string
	Format Format
}

var (
	// ErrNotFound is returned by decoders when a frame holds no readable symbol.
	ErrNotFound = errors.New("no barcode found")

	ErrFrameOverlap   = errors.New("frame delivered while another frame is decoding")
	ErrShortFrame     = errors.New("frame buffer smaller than its dimensions")
	ErrDegenerateCrop = errors.New("crop window is empty")
	ErrDecoderFault   = errors.New("decoder fault")
)

// Decoder turns a luminance view into a symbol. It returns ErrNotFound
// (possibly wrapped) when there is nothing to read.
type Decoder interface {
	Decode(l Luminance) (Result, error)
}

type DecoderFunc func(l Luminance) (Result, error)

func (f DecoderFunc) Decode(l Luminance) (Result, error) {
	return f(l)
}

// Sink receives what the pipeline reports to the host.
type Sink interface {
	OnDecodeResult(r Result)
	OnPipelineException(err error)
}

// FrameHandler consumes one frame and calls done when it is finished with
// it, whatever the outcome.
type FrameHandler interface {
	HandleFrame(f Frame, done func())
}

type OutcomeKind int

const (
	NotFound OutcomeKind = iota
	Found
	TransientError
)

func (k OutcomeKind) String() string {
	switch k {
	case Found:
		return "found"
	case TransientError:
		return "transient_error"
	default:
		return "not_found"
	}
}

// Outcome is the result of one decode attempt.
type Outcome struct {
	Kind   OutcomeKind
	Result Result
	Err    error
}
