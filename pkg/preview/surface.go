package preview

import (
	"sync"

	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/geometry"
)

// Surface is where the preview is rendered. The controller only needs to
// attach the camera and to know the surface's size as it changes; a zero
// size means the surface is gone.
type Surface interface {
	Attach(h camera.Handle) error
	Size() geometry.Size
	SizeChanges() <-chan geometry.Size
}

// FixedSurface is a headless surface whose size changes only through Resize.
type FixedSurface struct {
	mu       sync.Mutex
	size     geometry.Size
	attached camera.Handle
	changes  chan geometry.Size
}

func NewFixedSurface(size geometry.Size) *FixedSurface {
	return &FixedSurface{size: size, changes: make(chan geometry.Size, 1)}
}

func (s *FixedSurface) Attach(h camera.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = h
	return nil
}

func (s *FixedSurface) Size() geometry.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *FixedSurface) SizeChanges() <-chan geometry.Size {
	return s.changes
}

// Resize records the new size and publishes it. Only the latest pending size
// is kept.
func (s *FixedSurface) Resize(size geometry.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	select {
	case <-s.changes:
	default:
	}
	s.changes <- size
}
