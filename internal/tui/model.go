// internal/tui/model.go
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/featherscan/internal/config"
	"github.com/AlverezYari/featherscan/internal/server"
	"github.com/AlverezYari/featherscan/pkg/camera"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/preview"
)

type tabType int

const (
	scannerTab tabType = iota
	resultsTab
	cameraTab
	serverTab
)

type tab struct {
	title string
	id    tabType
}

// Logging Setup

type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityInfo
	VerbosityDebug
)

const (
	maxLogLines = 1000
	maxResults  = 50
	// Rows taken by the header, tabs, status bar and the scanner text.
	chromeRows = 12
)

func (m *Model) addLog(level, message string) {
	if !m.shouldShowLog(level) {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s [%s] %s", time.Now().Format("15:04:05"), level, message))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[1:]
	}
	m.logViewport.SetContent(strings.Join(m.logs, "\n"))
	m.logViewport.GotoBottom()
}

func (m *Model) shouldShowLog(level string) bool {
	switch m.verbosity {
	case VerbosityDebug:
		return true
	case VerbosityInfo:
		return level != "DEBUG"
	case VerbosityError:
		return level == "ERROR"
	default:
		return false
	}
}

// Scanner is the preview controller as seen by the UI.
type Scanner interface {
	Start(ctx context.Context) error
	Stop() error
	Pause() error
	Resume() error
	AutoFocus() error
	SetOrientationLock(enabled bool)
	UpdateDisplayOrientation() error
	Snapshot() preview.Snapshot
}

// DeviceScanner lists the cameras attached to the machine.
type DeviceScanner interface {
	ScanDevices() ([]camera.Device, error)
}

type resultEntry struct {
	result    decode.Result
	timestamp time.Time
}

// Msg types
type tickMsg time.Time

type devicesMsg struct {
	devices []camera.Device
	err     error
}

// Model holds our application state
type Model struct {
	config      *config.AppConfig
	width       int
	height      int
	status      string
	startTime   time.Time
	currentTime time.Time
	activeTab   tabType
	tabs        []tab

	ctx         context.Context
	scanner     Scanner
	devices     DeviceScanner
	surface     *TermSurface
	orientation *preview.ManualOrientation
	server      *server.Server

	availableCameras []camera.Device
	scanning         bool
	focusAvailable   bool
	orientationLock  bool
	deviceRotation   int
	results          []resultEntry

	logViewport viewport.Model
	logs        []string
	verbosity   Verbosity
}

// Deps are the components the UI drives.
type Deps struct {
	Scanner     Scanner
	Devices     DeviceScanner
	Surface     *TermSurface
	Orientation *preview.ManualOrientation
	Server      *server.Server
}

// New returns a Model with initial state
func New(ctx context.Context, cfg *config.AppConfig, deps Deps) Model {
	now := time.Now()
	if deps.Surface == nil {
		deps.Surface = NewTermSurface()
	}
	if deps.Orientation == nil {
		deps.Orientation = preview.NewManualOrientation(0)
	}
	return Model{
		config:          cfg,
		status:          "Ready",
		startTime:       now,
		currentTime:     now,
		activeTab:       scannerTab,
		ctx:             ctx,
		scanner:         deps.Scanner,
		devices:         deps.Devices,
		surface:         deps.Surface,
		orientation:     deps.Orientation,
		server:          deps.Server,
		orientationLock: cfg.Scanner.LockOrientation,
		tabs: []tab{
			{title: "Scanner", id: scannerTab},
			{title: "Results", id: resultsTab},
			{title: "Camera", id: cameraTab},
			{title: "Server", id: serverTab},
		},
		logViewport: func() viewport.Model {
			vp := viewport.New(0, 8)
			vp.MouseWheelEnabled = true
			return vp
		}(),
		logs:      make([]string, 0),
		verbosity: VerbosityInfo,
	}
}

// Init runs any initial IO
func (m Model) Init() tea.Cmd {
	return timeTickCmd()
}

func (m *Model) addResult(r decode.Result) {
	m.results = append(m.results, resultEntry{result: r, timestamp: time.Now()})
	if len(m.results) > maxResults {
		m.results = m.results[1:]
	}
}

func (m *Model) setError(action string, err error) {
	m.status = fmt.Sprintf("Error %s: %v", action, err)
	m.addLog("ERROR", m.status)
}

// Helper command for time updates
func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func scanDevicesCmd(d DeviceScanner) tea.Cmd {
	return func() tea.Msg {
		devices, err := d.ScanDevices()
		return devicesMsg{devices: devices, err: err}
	}
}
