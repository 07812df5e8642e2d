package gocvcam

import (
	"sync"
	"testing"
)

// fakeBus stands in for the capture indexes OpenCV can open.
type fakeBus struct {
	mu      sync.Mutex
	present map[int]bool
	probed  []int
}

func (b *fakeBus) probe(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probed = append(b.probed, index)
	return b.present[index]
}

func (b *fakeBus) set(index int, present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.present[index] = present
	b.probed = nil
}

func (b *fakeBus) wasProbed(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, i := range b.probed {
		if i == index {
			return true
		}
	}
	return false
}

func TestScanDevices(t *testing.T) {
	bus := &fakeBus{present: map[int]bool{0: true, 2: true}}
	p := New(WithMaxProbe(4), WithMountOrientation(90), withProbe(bus.probe))

	devices, err := p.ScanDevices()
	if err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}
	if len(devices) != 2 || devices[0].ID != 0 || devices[1].ID != 2 {
		t.Fatalf("devices = %+v, want indexes 0 and 2", devices)
	}
	if devices[0].Name != "Built-in Camera" || devices[1].Name != "Camera 2" {
		t.Errorf("names = %q, %q", devices[0].Name, devices[1].Name)
	}
	if got := p.NumberOfCameras(); got != 2 {
		t.Errorf("NumberOfCameras() = %d, want 2", got)
	}
	info, err := p.CameraInfo(1)
	if err != nil || info.Orientation != 90 {
		t.Errorf("CameraInfo(1) = %+v, %v", info, err)
	}
}

func TestScanDevices_StableWhileCameraOpen(t *testing.T) {
	bus := &fakeBus{present: map[int]bool{1: true, 3: true}}
	p := New(WithMaxProbe(5), withProbe(bus.probe))
	if _, err := p.ScanDevices(); err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}

	// Camera id 1 is capture index 3. A new device appears on index 0
	// while it is open.
	p.acquire(3)
	bus.set(0, true)

	devices, err := p.ScanDevices()
	if err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}
	if len(devices) != 2 || devices[0].ID != 1 || devices[1].ID != 3 {
		t.Fatalf("devices = %+v, want the list from before the camera opened", devices)
	}
	if !devices[0].IsAvailable || devices[1].IsAvailable {
		t.Errorf("availability = %v, %v, want index 3 in use", devices[0].IsAvailable, devices[1].IsAvailable)
	}
	if bus.wasProbed(3) {
		t.Error("the open capture index was probed")
	}
	if p.devices[1].ID != 3 {
		t.Errorf("camera id 1 now maps to index %d", p.devices[1].ID)
	}

	p.release(3)
	devices, _ = p.ScanDevices()
	if len(devices) != 3 || devices[0].ID != 0 {
		t.Errorf("devices after release = %+v, want a full rescan", devices)
	}
	for _, d := range devices {
		if !d.IsAvailable {
			t.Errorf("device %d reported in use after release", d.ID)
		}
	}
}
