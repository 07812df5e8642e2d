// internal/tui/update.go
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/preview"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width
		m.surface.ResizeCells(msg.Width, msg.Height-chromeRows)

	case tickMsg:
		m.currentTime = time.Time(msg)
		return m, timeTickCmd()

	case resultMsg:
		m.addResult(decode.Result(msg))
		m.status = fmt.Sprintf("Decoded %s: %s", msg.Format, msg.Text)
		m.addLog("INFO", m.status)

	case hostMsg:
		if msg.focus != nil {
			m.focusAvailable = *msg.focus
		}
		if msg.level == "ERROR" {
			m.status = msg.text
		}
		m.addLog(msg.level, msg.text)

	case logMsg:
		m.addLog(msg.level, msg.message)

	case devicesMsg:
		m.scanning = false
		if msg.err != nil {
			m.setError("scanning for cameras", msg.err)
			return m, nil
		}
		m.availableCameras = msg.devices
		if len(msg.devices) == 0 {
			m.status = "No cameras found"
		} else {
			m.status = fmt.Sprintf("Found %d camera(s)", len(msg.devices))
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.scanner != nil {
			m.scanner.Stop()
		}
		return m, tea.Quit
	case "1":
		m.activeTab = scannerTab
	case "2":
		m.activeTab = resultsTab
	case "3":
		m.activeTab = cameraTab
	case "4":
		m.activeTab = serverTab
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabType(len(m.tabs))
	case "v":
		m.verbosity = (m.verbosity + 1) % (VerbosityDebug + 1)
		m.status = fmt.Sprintf("Log verbosity: %s", m.verbosity)
	default:
		switch m.activeTab {
		case scannerTab:
			m.handleScannerKey(msg.String())
		case cameraTab:
			if msg.String() == "c" && m.devices != nil && !m.scanning {
				m.scanning = true
				m.status = "Scanning for cameras..."
				return m, scanDevicesCmd(m.devices)
			}
		case serverTab:
			if msg.String() == "s" {
				m.toggleServer()
			}
		}
	}
	return m, nil
}

func (m *Model) handleScannerKey(key string) {
	if m.scanner == nil {
		return
	}
	switch key {
	case "s":
		if m.scanner.Snapshot().State == preview.StateClosed {
			if err := m.scanner.Start(m.ctx); err != nil {
				m.setError("starting camera", err)
				return
			}
			m.status = "Scanning..."
		} else {
			if err := m.scanner.Stop(); err != nil {
				m.setError("stopping camera", err)
				return
			}
			m.status = "Camera stopped"
		}

	case "p":
		var err error
		if m.scanner.Snapshot().State == preview.StatePaused {
			err = m.scanner.Resume()
			m.status = "Preview resumed"
		} else {
			err = m.scanner.Pause()
			m.status = "Preview paused"
		}
		if err != nil {
			m.setError("pausing preview", err)
		}

	case "f":
		if err := m.scanner.AutoFocus(); err != nil {
			m.setError("focusing", err)
			return
		}
		m.status = "Focusing..."

	case "l":
		m.orientationLock = !m.orientationLock
		m.scanner.SetOrientationLock(m.orientationLock)
		m.status = fmt.Sprintf("Orientation lock: %v", m.orientationLock)

	case "left", "right":
		step := 90
		if key == "left" {
			step = -90
		}
		rotation := (m.orientation.DisplayRotation() + step + 360) % 360
		m.orientation.SetDisplayRotation(rotation)
		if err := m.scanner.UpdateDisplayOrientation(); err != nil {
			m.setError("rotating display", err)
			return
		}
		m.status = fmt.Sprintf("Display rotation: %d", rotation)

	case "r":
		m.deviceRotation = (m.deviceRotation + 90) % 360
		if !m.orientation.Rotate(m.deviceRotation) {
			m.status = "Orientation lock is off"
			return
		}
		m.status = fmt.Sprintf("Device rotation: %d", m.deviceRotation)
	}
}

func (m *Model) toggleServer() {
	if m.server == nil {
		return
	}
	if m.server.IsRunning() {
		if err := m.server.Stop(); err != nil {
			m.setError("stopping server", err)
		} else {
			m.status = "Server stopped"
		}
		return
	}
	if err := m.server.Start(); err != nil {
		m.setError("starting server", err)
	} else {
		m.status = fmt.Sprintf("Server started on %s", m.server.Addr())
	}
}

func (v Verbosity) String() string {
	switch v {
	case VerbosityError:
		return "error"
	case VerbosityDebug:
		return "debug"
	default:
		return "info"
	}
}
