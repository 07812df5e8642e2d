package decode

import (
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/oned/rss"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var zxingFormats = map[Format]gozxing.BarcodeFormat{
	FormatUPCA:       gozxing.BarcodeFormat_UPC_A,
	FormatUPCE:       gozxing.BarcodeFormat_UPC_E,
	FormatEAN13:      gozxing.BarcodeFormat_EAN_13,
	FormatEAN8:       gozxing.BarcodeFormat_EAN_8,
	FormatRSS14:      gozxing.BarcodeFormat_RSS_14,
	FormatCode39:     gozxing.BarcodeFormat_CODE_39,
	FormatCode93:     gozxing.BarcodeFormat_CODE_93,
	FormatCode128:    gozxing.BarcodeFormat_CODE_128,
	FormatITF:        gozxing.BarcodeFormat_ITF,
	FormatCodabar:    gozxing.BarcodeFormat_CODABAR,
	FormatQRCode:     gozxing.BarcodeFormat_QR_CODE,
	FormatDataMatrix: gozxing.BarcodeFormat_DATA_MATRIX,
}

var zxingReaders = map[Format]func() gozxing.Reader{
	FormatUPCA:       func() gozxing.Reader { return oned.NewUPCAReader() },
	FormatUPCE:       func() gozxing.Reader { return oned.NewUPCEReader() },
	FormatEAN13:      func() gozxing.Reader { return oned.NewEAN13Reader() },
	FormatEAN8:       func() gozxing.Reader { return oned.NewEAN8Reader() },
	FormatRSS14:      func() gozxing.Reader { return rss.NewRSS14Reader() },
	FormatCode39:     func() gozxing.Reader { return oned.NewCode39Reader() },
	FormatCode93:     func() gozxing.Reader { return oned.NewCode93Reader() },
	FormatCode128:    func() gozxing.Reader { return oned.NewCode128Reader() },
	FormatITF:        func() gozxing.Reader { return oned.NewITFReader() },
	FormatCodabar:    func() gozxing.Reader { return oned.NewCodaBarReader() },
	FormatQRCode:     func() gozxing.Reader { return qrcode.NewQRCodeReader() },
	FormatDataMatrix: func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
}

type zxingReader struct {
	format Format
	reader gozxing.Reader
}

// ZXingDecoder tries one gozxing reader per allowed format, in allow-list
// order. It is not safe for concurrent use; the pipeline decodes one frame at
// a time.
type ZXingDecoder struct {
	readers []zxingReader
	hints   map[gozxing.DecodeHintType]interface{}
}

func NewZXingDecoder(formats []Format, tryHarder bool) (*ZXingDecoder, error) {
	if len(formats) == 0 {
		formats = AllFormats
	}
	d := &ZXingDecoder{hints: make(map[gozxing.DecodeHintType]interface{})}
	for _, f := range formats {
		newReader, ok := zxingReaders[f]
		if !ok {
			return nil, fmt.Errorf("unsupported barcode format %q", f)
		}
		d.readers = append(d.readers, zxingReader{format: f, reader: newReader()})
	}
	if tryHarder {
		d.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return d, nil
}

func (d *ZXingDecoder) Decode(l Luminance) (Result, error) {
	src, err := gozxing.NewPlanarYUVLuminanceSource(
		l.Pix, l.Width, l.Height,
		l.Crop.Min.X, l.Crop.Min.Y, l.Crop.Dx(), l.Crop.Dy(),
		false)
	if err != nil {
		return Result{}, fmt.Errorf("luminance source: %w", err)
	}
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return Result{}, fmt.Errorf("binary bitmap: %w", err)
	}

	for _, r := range d.readers {
		res, err := r.reader.Decode(bmp, d.hints)
		r.reader.Reset()
		if err != nil {
			// Readers only report misses: no symbol, bad checksum, bad encoding.
			continue
		}
		return Result{Text: res.GetText(), Format: formatOf(res.GetBarcodeFormat(), r.format)}, nil
	}
	return Result{}, ErrNotFound
}

func formatOf(bf gozxing.BarcodeFormat, fallback Format) Format {
	for f, z := range zxingFormats {
		if z == bf {
			return f
		}
	}
	return fallback
}
