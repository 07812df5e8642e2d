package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/featherscan/internal/config"
	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/camera/cameratest"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/geometry"
	"github.com/AlverezYari/featherscan/pkg/preview"
)

type fakeScanner struct {
	state    string
	calls    []string
	lock     bool
	startErr error
}

func (s *fakeScanner) Start(context.Context) error {
	s.calls = append(s.calls, "start")
	if s.startErr != nil {
		return s.startErr
	}
	s.state = preview.StatePreviewing
	return nil
}

func (s *fakeScanner) Stop() error {
	s.calls = append(s.calls, "stop")
	s.state = preview.StateClosed
	return nil
}

func (s *fakeScanner) Pause() error {
	s.calls = append(s.calls, "pause")
	s.state = preview.StatePaused
	return nil
}

func (s *fakeScanner) Resume() error {
	s.calls = append(s.calls, "resume")
	s.state = preview.StatePreviewing
	return nil
}

func (s *fakeScanner) AutoFocus() error {
	s.calls = append(s.calls, "focus")
	return nil
}

func (s *fakeScanner) SetOrientationLock(enabled bool) {
	s.calls = append(s.calls, "lock")
	s.lock = enabled
}

func (s *fakeScanner) UpdateDisplayOrientation() error {
	s.calls = append(s.calls, "orient")
	return nil
}

func (s *fakeScanner) Snapshot() preview.Snapshot {
	return preview.Snapshot{State: s.state}
}

func key(k string) tea.KeyMsg {
	switch k {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func newTestModel(s *fakeScanner, deps Deps) Model {
	deps.Scanner = s
	return New(context.Background(), config.Default(), deps)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestScannerKeys(t *testing.T) {
	s := &fakeScanner{state: preview.StateClosed}
	m := newTestModel(s, Deps{})

	m = press(m, "s", "p", "p", "f", "l", "right", "s")

	want := []string{"start", "pause", "resume", "focus", "lock", "orient", "stop"}
	if strings.Join(s.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", s.calls, want)
	}
	if !s.lock {
		t.Error("orientation lock not enabled")
	}
	if got := m.orientation.DisplayRotation(); got != 90 {
		t.Errorf("display rotation = %d, want 90", got)
	}
}

func TestStartFailureShowsError(t *testing.T) {
	s := &fakeScanner{state: preview.StateClosed, startErr: errors.New("no cameras reported")}
	m := press(newTestModel(s, Deps{}), "s")

	if !strings.Contains(m.status, "no cameras reported") {
		t.Errorf("status = %q", m.status)
	}
}

func TestDeviceRotationNeedsLock(t *testing.T) {
	orient := preview.NewManualOrientation(0)
	m := press(newTestModel(&fakeScanner{}, Deps{Orientation: orient}), "r")
	if m.status != "Orientation lock is off" {
		t.Errorf("status = %q", m.status)
	}

	orient.Enable()
	m = press(m, "r")
	if got := <-orient.Events(); got != 180 {
		t.Errorf("device rotation event = %d, want 180", got)
	}
}

func TestResultMessage(t *testing.T) {
	m := newTestModel(&fakeScanner{}, Deps{})

	next, _ := m.Update(resultMsg(decode.Result{Text: "4006381333931", Format: decode.FormatEAN13}))
	m = next.(Model)

	if len(m.results) != 1 || m.results[0].result.Text != "4006381333931" {
		t.Fatalf("results = %+v", m.results)
	}
	m.activeTab = resultsTab
	if !strings.Contains(m.View(), "4006381333931") {
		t.Error("result missing from the results tab")
	}
}

func TestHostMessages(t *testing.T) {
	m := newTestModel(&fakeScanner{}, Deps{})
	b := NewBridge()

	// Nothing is attached yet; posting must not block.
	b.OnAutoFocusAvailable()

	available := true
	next, _ := m.Update(hostMsg{level: "DEBUG", text: "Autofocus available", focus: &available})
	m = next.(Model)
	if !m.focusAvailable {
		t.Error("focus availability not recorded")
	}

	next, _ = m.Update(hostMsg{level: "ERROR", text: "camera rejected parameters"})
	m = next.(Model)
	if m.status != "camera rejected parameters" {
		t.Errorf("status = %q", m.status)
	}
}

func TestWindowSizeResizesSurface(t *testing.T) {
	surface := NewTermSurface()
	m := newTestModel(&fakeScanner{}, Deps{Surface: surface})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	_ = next.(Model)

	want := geometry.Size{Width: 100 * cellWidth, Height: (40 - chromeRows) * cellHeight}
	if got := surface.Size(); got != want {
		t.Errorf("surface size = %v, want %v", got, want)
	}
	if got := <-surface.SizeChanges(); got != want {
		t.Errorf("published size = %v, want %v", got, want)
	}

	surface.ResizeCells(100, 0)
	if !surface.Size().IsZero() {
		t.Error("a terminal with no room should report a zero surface")
	}
}

type fakeDevices struct{}

func (fakeDevices) ScanDevices() ([]camera.Device, error) {
	return []camera.Device{{ID: 0, Name: "Camera 0", IsAvailable: true}}, nil
}

func TestScanDevices(t *testing.T) {
	m := newTestModel(&fakeScanner{}, Deps{Devices: fakeDevices{}})
	m.activeTab = cameraTab

	next, cmd := m.Update(key("c"))
	m = next.(Model)
	if cmd == nil || !m.scanning {
		t.Fatal("c did not start a scan")
	}

	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.scanning || len(m.availableCameras) != 1 {
		t.Errorf("scanning = %v cameras = %v", m.scanning, m.availableCameras)
	}
	if !strings.Contains(m.View(), "Camera 0") {
		t.Error("camera missing from the camera tab")
	}
}

func TestBridge_PostNeverBlocks(t *testing.T) {
	b := NewBridge()
	release := make(chan struct{})
	got := make(chan tea.Msg, 8)
	b.attach(func(msg tea.Msg) {
		<-release
		got <- msg
	})

	posted := make(chan struct{})
	go func() {
		defer close(posted)
		b.OnAutoFocusAvailable()
		b.Log("INFO", "server started")
		b.OnDecodeResult(decode.Result{Text: "4006381333931", Format: decode.FormatEAN13})
	}()
	select {
	case <-posted:
	case <-time.After(2 * time.Second):
		t.Fatal("posting waited for a busy program")
	}

	close(release)
	var msgs []tea.Msg
	for len(msgs) < 3 {
		select {
		case msg := <-got:
			msgs = append(msgs, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("forwarded %d of 3 messages", len(msgs))
		}
	}
	if m, ok := msgs[0].(hostMsg); !ok || m.focus == nil || !*m.focus {
		t.Errorf("first message = %#v, want autofocus available", msgs[0])
	}
	if m, ok := msgs[1].(logMsg); !ok || m.message != "server started" {
		t.Errorf("second message = %#v, want the log line", msgs[1])
	}
	if m, ok := msgs[2].(resultMsg); !ok || m.Text != "4006381333931" {
		t.Errorf("third message = %#v, want the decode result", msgs[2])
	}
}

func TestBridge_ControllerCallbacksDuringUpdate(t *testing.T) {
	bridge := NewBridge()
	surface := NewTermSurface()
	surface.ResizeCells(40, 30)
	size := geometry.Size{Width: 640, Height: 480}
	provider := cameratest.NewProvider(
		camera.Parameters{PreviewSize: size, SupportedPreviewSizes: []geometry.Size{size}},
		camera.Info{Facing: camera.FacingBack, Orientation: 90})
	ctrl := preview.New(provider, surface, nil, preview.WithHost(bridge))
	defer ctrl.Stop()

	m := New(context.Background(), config.Default(), Deps{Scanner: ctrl, Surface: surface})
	p := tea.NewProgram(m,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler())
	bridge.Attach(p)

	finished := make(chan tea.Model, 1)
	go func() {
		final, _ := p.Run()
		finished <- final
	}()

	// Start and Stop notify the host while Update is still running.
	go func() {
		p.Send(key("s"))
		p.Send(key("p"))
		p.Send(key("p"))
		p.Send(key("q"))
	}()

	select {
	case final := <-finished:
		if _, ok := final.(Model); !ok {
			t.Fatalf("final model = %T", final)
		}
	case <-time.After(5 * time.Second):
		p.Kill()
		t.Fatalf("program hung (preview state %s)", ctrl.Snapshot().State)
	}

	if got := ctrl.Snapshot().State; got != preview.StateClosed {
		t.Errorf("preview state = %s, want closed", got)
	}
	if got := provider.Opens(); got != 1 {
		t.Errorf("camera opens = %d, want 1", got)
	}
}
