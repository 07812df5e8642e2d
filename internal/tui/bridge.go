// internal/tui/bridge.go
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/geometry"
	"github.com/AlverezYari/featherscan/pkg/preview"
)

// Msg types delivered from the camera and decode goroutines
type resultMsg decode.Result

type hostMsg struct {
	level string
	text  string
	focus *bool
}

type logMsg struct {
	level   string
	message string
}

// Bridge turns controller and pipeline callbacks into tea messages. It drops
// messages until a program is attached. Posting never blocks: callbacks can
// run inside Update, where a direct Program.Send would wait on the event
// loop forever. One goroutine forwards queued messages in order.
type Bridge struct {
	mu    sync.Mutex
	send  func(tea.Msg)
	queue []tea.Msg
	wake  chan struct{}
}

// maxQueued bounds the backlog; the oldest message goes first.
const maxQueued = 256

func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.send == nil {
		go b.forward()
	}
	b.send = send
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	if b.send == nil {
		b.mu.Unlock()
		return
	}
	if len(b.queue) >= maxQueued {
		b.queue = b.queue[1:]
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) forward() {
	for range b.wake {
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			msg := b.queue[0]
			b.queue = b.queue[1:]
			send := b.send
			b.mu.Unlock()

			send(msg)
		}
	}
}

func (b *Bridge) OnCameraOpenFailed(reason preview.FailureReason) {
	b.post(hostMsg{level: "ERROR", text: "Camera open failed: " + reason.String()})
}

func (b *Bridge) OnAutoFocusAvailable() {
	available := true
	b.post(hostMsg{level: "DEBUG", text: "Autofocus available", focus: &available})
}

func (b *Bridge) OnAutoFocusUnavailable() {
	available := false
	b.post(hostMsg{level: "DEBUG", text: "Autofocus unavailable", focus: &available})
}

func (b *Bridge) OnPipelineException(err error) {
	b.post(hostMsg{level: "ERROR", text: err.Error()})
}

func (b *Bridge) OnDecodeResult(r decode.Result) {
	b.post(resultMsg(r))
}

// Log forwards a log line, matching the server's log callback.
func (b *Bridge) Log(level, message string) {
	b.post(logMsg{level: level, message: message})
}

// Terminal cells are roughly twice as tall as they are wide.
const (
	cellWidth  = 8
	cellHeight = 16
)

// TermSurface is a preview.Surface sized from the terminal window.
type TermSurface struct {
	*preview.FixedSurface
}

func NewTermSurface() *TermSurface {
	return &TermSurface{FixedSurface: preview.NewFixedSurface(geometry.Size{})}
}

// ResizeCells converts a terminal area to pixels and publishes it.
func (s *TermSurface) ResizeCells(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		s.Resize(geometry.Size{})
		return
	}
	s.Resize(geometry.Size{Width: cols * cellWidth, Height: rows * cellHeight})
}
