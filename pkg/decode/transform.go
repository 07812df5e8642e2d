package decode

import (
	"image"

	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// RotateLuminance turns the width x height luminance plane of src a quarter
// turn clockwise. The result is height pixels wide and width pixels tall:
// dst[x*height + height-1-y] = src[x + y*width].
func RotateLuminance(src []byte, width, height int) []byte {
	dst := make([]byte, width*height)
	for y := 0; y < height; y++ {
		row := src[y*width : (y+1)*width]
		for x, v := range row {
			dst[x*height+height-y-1] = v
		}
	}
	return dst
}

// CropWindow maps the viewfinder guide rectangle, given in screen
// coordinates, into a frame of the given size and centres it on the frame.
// Without a guide, or without a screen size to scale from, the whole frame is
// used. The window is clipped to the frame and may come back empty.
func CropWindow(frame, screen geometry.Size, guide image.Rectangle) image.Rectangle {
	bounds := image.Rect(0, 0, frame.Width, frame.Height)
	if guide.Empty() || screen.IsZero() {
		return bounds
	}

	scaled := geometry.ScaleRect(guide, screen, frame)
	cx := (scaled.Min.X + scaled.Max.X) / 2
	cy := (scaled.Min.Y + scaled.Max.Y) / 2
	centred := scaled.Add(image.Pt(frame.Width/2-cx, frame.Height/2-cy))
	return centred.Intersect(bounds)
}
