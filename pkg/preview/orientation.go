package preview

import "sync"

// OrientationUnknown is reported when the device is flat or the sensor has
// no reading.
const OrientationUnknown = -1

// OrientationSource reports how the device is held. DisplayRotation is the
// current display rotation in 90 degree steps; Events carries raw sensor
// degrees while the source is enabled.
type OrientationSource interface {
	DisplayRotation() int
	Enable()
	Disable()
	Events() <-chan int
}

// ManualOrientation is an OrientationSource driven by calls to Rotate and
// SetDisplayRotation. Events sent while disabled are discarded.
type ManualOrientation struct {
	mu       sync.Mutex
	rotation int
	enabled  bool
	events   chan int
}

func NewManualOrientation(displayRotation int) *ManualOrientation {
	return &ManualOrientation{rotation: displayRotation, events: make(chan int, 16)}
}

func (m *ManualOrientation) DisplayRotation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation
}

func (m *ManualOrientation) SetDisplayRotation(degrees int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotation = degrees
}

func (m *ManualOrientation) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *ManualOrientation) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *ManualOrientation) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *ManualOrientation) Events() <-chan int {
	return m.events
}

// Rotate emits a raw sensor reading. It reports false when the source is
// disabled or the event buffer is full.
func (m *ManualOrientation) Rotate(degrees int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	select {
	case m.events <- degrees:
		return true
	default:
		return false
	}
}
