// pkg/geometry/geometry.go
package geometry

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// Size is a width x height pair in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) Area() int {
	return s.Width * s.Height
}

func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Aspect returns width/height, or 0 for an empty size.
func (s Size) Aspect() float64 {
	if s.Height == 0 {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

// Swap returns the size with its axes exchanged.
func (s Size) Swap() Size {
	return Size{Width: s.Height, Height: s.Width}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize reads sizes written as "640x480".
func ParseSize(s string) (Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return Size{Width: w, Height: h}, nil
}

// normalize folds any angle into [0, 360).
func normalize(degrees int) int {
	return ((degrees % 360) + 360) % 360
}

// IsPortrait reports whether a display orientation turns the sensor's
// landscape frame on its side.
func IsPortrait(displayOrientation int) bool {
	o := normalize(displayOrientation)
	return o == 90 || o == 270
}

// DisplayOrientation is the rotation applied to the preview feed so that it
// appears upright, given the sensor mount angle and the device rotation.
// Front-facing previews are mirrored, which flips the direction.
func DisplayOrientation(mount int, front bool, deviceRotation int) int {
	mount = normalize(mount)
	rot := normalize(deviceRotation)
	if front {
		return (360 - (mount+rot)%360) % 360
	}
	return (mount - rot + 360) % 360
}

// SnapToRightAngle rounds a raw sensor reading to the nearest multiple of 90.
func SnapToRightAngle(degrees int) int {
	return normalize((normalize(degrees) + 45) / 90 * 90)
}

// PictureRotation is the rotation hint stored with captured frames. It is
// derived from the raw device orientation, independently of the display
// orientation.
func PictureRotation(mount int, front bool, rawDegrees int) int {
	mount = normalize(mount)
	snapped := SnapToRightAngle(rawDegrees)
	if front {
		return (mount - snapped + 360) % 360
	}
	return (mount + snapped) % 360
}

// aspectTolerance treats two aspect ratios as equal.
const aspectTolerance = 1e-3

// BestPreviewSize picks the candidate whose aspect ratio best matches the
// target viewport. The viewport is swapped for 90/270 orientations because
// it is then rotated relative to the sensor. Among equally good aspects the
// candidate with the area closest to the viewport wins, the smaller one on a
// tie. The result is always one of the candidates; ok is false only when
// there are no usable candidates.
func BestPreviewSize(candidates []Size, width, height, displayOrientation int) (best Size, ok bool) {
	target := Size{Width: width, Height: height}
	if IsPortrait(displayOrientation) {
		target = target.Swap()
	}
	targetAspect := target.Aspect()
	targetArea := target.Area()

	bestDiff := math.MaxFloat64
	bestDist := math.MaxInt
	for _, c := range candidates {
		if c.IsZero() {
			continue
		}
		diff := math.Abs(c.Aspect() - targetAspect)
		dist := abs(c.Area() - targetArea)
		switch {
		case !ok, diff < bestDiff-aspectTolerance:
		case diff <= bestDiff+aspectTolerance:
			if dist > bestDist || (dist == bestDist && c.Area() >= best.Area()) {
				continue
			}
		default:
			continue
		}
		best, bestDiff, bestDist, ok = c, diff, dist, true
	}
	return best, ok
}

// Layout places the preview inside the viewport. Letterbox mode keeps the
// whole preview visible; full-bleed fills the viewport and lets the preview
// overflow on one axis. The returned rectangle is in viewport coordinates and
// may extend past the viewport in full-bleed mode.
func Layout(viewport, preview Size, displayOrientation int, fullBleed bool) image.Rectangle {
	if viewport.IsZero() {
		return image.Rectangle{}
	}
	pw, ph := viewport.Width, viewport.Height
	if !preview.IsZero() {
		p := preview
		if IsPortrait(displayOrientation) {
			p = p.Swap()
		}
		pw, ph = p.Width, p.Height
	}

	w, h := viewport.Width, viewport.Height
	wider := w*ph > h*pw
	if wider != fullBleed {
		scaled := pw * h / ph
		return image.Rect((w-scaled)/2, 0, (w+scaled)/2, h)
	}
	scaled := ph * w / pw
	return image.Rect(0, (h-scaled)/2, w, (h+scaled)/2)
}

// ScaleRect maps r from a space of size from into a space of size to, one
// linear factor per axis.
func ScaleRect(r image.Rectangle, from, to Size) image.Rectangle {
	if from.IsZero() {
		return image.Rectangle{}
	}
	return image.Rect(
		r.Min.X*to.Width/from.Width,
		r.Min.Y*to.Height/from.Height,
		r.Max.X*to.Width/from.Width,
		r.Max.Y*to.Height/from.Height,
	)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
