package decode

import (
	"errors"
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// qrLuminance renders text as a QR code into a luminance plane.
func qrLuminance(t *testing.T, text string, size int) Luminance {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		t.Fatalf("encode QR code: %v", err)
	}
	w, h := matrix.GetWidth(), matrix.GetHeight()
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !matrix.Get(x, y) {
				pix[y*w+x] = 0xff
			}
		}
	}
	return Luminance{Pix: pix, Width: w, Height: h, Crop: image.Rect(0, 0, w, h)}
}

func TestZXingDecoder_QRCode(t *testing.T) {
	dec, err := NewZXingDecoder(nil, true)
	if err != nil {
		t.Fatalf("NewZXingDecoder: %v", err)
	}

	res, err := dec.Decode(qrLuminance(t, "featherscan", 240))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if res.Text != "featherscan" {
		t.Errorf("text = %q, want %q", res.Text, "featherscan")
	}
	if res.Format != FormatQRCode {
		t.Errorf("format = %q, want %q", res.Format, FormatQRCode)
	}
}

func TestZXingDecoder_AllowListExcludesFormat(t *testing.T) {
	dec, err := NewZXingDecoder([]Format{FormatCode128}, false)
	if err != nil {
		t.Fatalf("NewZXingDecoder: %v", err)
	}

	_, err = dec.Decode(qrLuminance(t, "featherscan", 240))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Decode error = %v, want ErrNotFound", err)
	}
}

func TestZXingDecoder_BlankFrame(t *testing.T) {
	dec, err := NewZXingDecoder(nil, false)
	if err != nil {
		t.Fatalf("NewZXingDecoder: %v", err)
	}
	l := Luminance{Pix: make([]byte, 320*240), Width: 320, Height: 240, Crop: image.Rect(0, 0, 320, 240)}

	if _, err := dec.Decode(l); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decode error = %v, want ErrNotFound", err)
	}
}

func TestZXingDecoder_InPipeline(t *testing.T) {
	dec, err := NewZXingDecoder([]Format{FormatQRCode}, false)
	if err != nil {
		t.Fatalf("NewZXingDecoder: %v", err)
	}
	l := qrLuminance(t, "pipeline", 240)
	p := NewPipeline(dec, nil)

	out := p.Process(Frame{Data: l.Pix, Width: l.Width, Height: l.Height})
	if out.Kind != Found || out.Result.Text != "pipeline" {
		t.Errorf("outcome = %+v, want found %q", out, "pipeline")
	}
}

func TestNewZXingDecoder_UnknownFormat(t *testing.T) {
	if _, err := NewZXingDecoder([]Format{"MAXICODE"}, false); err == nil {
		t.Error("NewZXingDecoder should reject unknown formats")
	}
}

func TestZXingDecoder_RSS14(t *testing.T) {
	formats, err := ParseFormats([]string{"rss_14"})
	if err != nil {
		t.Fatalf("ParseFormats: %v", err)
	}
	if len(formats) != 1 || formats[0] != FormatRSS14 {
		t.Fatalf("formats = %v, want [RSS_14]", formats)
	}

	dec, err := NewZXingDecoder(formats, false)
	if err != nil {
		t.Fatalf("NewZXingDecoder: %v", err)
	}
	if len(dec.readers) != 1 || dec.readers[0].format != FormatRSS14 {
		t.Fatalf("readers = %+v", dec.readers)
	}

	// A QR code is not a GS1 DataBar symbol.
	if _, err := dec.Decode(qrLuminance(t, "featherscan", 240)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decode error = %v, want ErrNotFound", err)
	}
	if got := formatOf(gozxing.BarcodeFormat_RSS_14, FormatQRCode); got != FormatRSS14 {
		t.Errorf("formatOf(RSS_14) = %q", got)
	}
}
