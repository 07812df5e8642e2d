// internal/tui/view.go
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

// View renders the UI
func (m Model) View() string {
	timeStr := m.currentTime.Format("Mon Jan 2 15:04:05 2006")

	headerContent := lipgloss.JoinHorizontal(
		lipgloss.Center,
		"FeatherScan",
		lipgloss.NewStyle().
			Width(max(m.width-14, 0)).
			Align(lipgloss.Right).
			Render(timeStr),
	)
	header := headerStyle.Width(m.width).Render(headerContent)

	tabs := m.renderTabs()
	mainContent := mainContentStyle.Render(m.renderActiveTabContent())

	statusBar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("Status: %s | Tab or 1-4: Switch Views | v: Verbosity | q: Quit", m.status),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", header, tabs, mainContent, m.logViewport.View(), statusBar)
}

// Helper function to render tabs
func (m Model) renderTabs() string {
	var renderedTabs []string
	for _, t := range m.tabs {
		style := tabStyle
		if t.id == m.activeTab {
			style = activeTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(t.title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

// Helper function to render active tab content
func (m Model) renderActiveTabContent() string {
	switch m.activeTab {
	case scannerTab:
		return m.renderScanner()
	case resultsTab:
		return m.renderResults()
	case cameraTab:
		return m.renderCameras()
	case serverTab:
		return m.renderServer()
	}
	return ""
}

func (m Model) renderScanner() string {
	if m.scanner == nil {
		return "No camera backend available"
	}
	snap := m.scanner.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "Preview: %s\n", snap.State)
	if snap.SessionID != "" {
		fmt.Fprintf(&b, "• Camera: %d (%s), session %s\n", snap.CameraID, snap.Facing, snap.SessionID[:8])
		fmt.Fprintf(&b, "• Preview size: %s in viewport %s\n", snap.PreviewSize, snap.Viewport)
		fmt.Fprintf(&b, "• Layout: %v\n", snap.Layout)
		fmt.Fprintf(&b, "• Display orientation: %d, picture rotation: %d\n", snap.DisplayOrientation, snap.OutputRotation)
		fmt.Fprintf(&b, "• Autofocus: %v (continuous %v)\n", m.focusAvailable, snap.ContinuousFocus)
		fmt.Fprintf(&b, "• Frames requested: %d, pending: %v\n", snap.FrameRequests, snap.FramePending)
	}
	fmt.Fprintf(&b, "• Orientation lock: %v\n\n", m.orientationLock)
	b.WriteString(dimStyle.Render("s: start/stop  p: pause/resume  f: focus  l: lock  ←/→: rotate display  r: rotate device"))
	return b.String()
}

func (m Model) renderResults() string {
	if len(m.results) == 0 {
		return "No barcodes decoded yet"
	}
	var b strings.Builder
	b.WriteString("Decoded barcodes:\n")
	for i := len(m.results) - 1; i >= 0; i-- {
		r := m.results[i]
		fmt.Fprintf(&b, "%s %s %s\n",
			dimStyle.Render(r.timestamp.Format("15:04:05")),
			dimStyle.Render(string(r.result.Format)),
			resultStyle.Render(r.result.Text))
	}
	return b.String()
}

func (m Model) renderCameras() string {
	var b strings.Builder
	b.WriteString("Cameras:\n")
	switch {
	case m.scanning:
		b.WriteString("• Scanning...\n")
	case len(m.availableCameras) == 0:
		b.WriteString("• None found yet\n")
	}
	for _, d := range m.availableCameras {
		state := "available"
		if !d.IsAvailable {
			state = "in use"
		}
		fmt.Fprintf(&b, "• %d: %s (%s, mount %d°, %s)\n", d.ID, d.Name, d.Info.Facing, d.Info.Orientation, state)
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("c: scan for cameras"))
	return b.String()
}

func (m Model) renderServer() string {
	if m.server == nil {
		return "Web server disabled"
	}
	var content strings.Builder

	status := "Stopped"
	if m.server.IsRunning() {
		status = fmt.Sprintf("Running on %s", m.server.Addr())
	}
	fmt.Fprintf(&content, "Web Server Status:\n"+
		"• Status: %s\n"+
		"• Result clients: %d\n"+
		"• Press 's' to start/stop server\n\n", status, m.server.Clients())
	content.WriteString("Recent Logs:\n")
	content.WriteString("------------\n")

	logs := m.server.GetRecentLogs()
	if len(logs) > 10 {
		logs = logs[len(logs)-10:]
	}
	for _, entry := range logs {
		content.WriteString(dimStyle.Render(entry.Message) + "\n")
	}
	return content.String()
}
