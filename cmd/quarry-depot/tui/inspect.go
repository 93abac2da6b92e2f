package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/key"
)

// WorkspaceView is the data inspect_workspace renders: a snapshot of the
// current-run workspace, or Exists=false if none is in progress.
type WorkspaceView struct {
	Exists         bool
	Parent         string // "" means root
	CommitHash     string
	DependencyFreeze []string
	StartedAt      string
}

// StatusView is the data status_leaf renders: the depot's current leaf
// status.
type StatusView struct {
	HasStatus      bool
	StatusID       string
	Parent         string // "" means root
	IntegratedRuns []string
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// InspectModel is the bubbletea model backing both supported views; which
// one it renders is selected by viewType at construction.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

func newInspectModel(viewType string, data any) InspectModel {
	return InspectModel{viewType: viewType, data: data}
}

func (m InspectModel) Init() tea.Cmd { return nil }

func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	switch m.viewType {
	case "inspect_workspace":
		return m.renderInspectWorkspace()
	case "status_leaf":
		return m.renderStatusLeaf()
	default:
		return fmt.Sprintf("unknown view %q\n", m.viewType)
	}
}

func (m InspectModel) renderInspectWorkspace() string {
	view, ok := m.data.(WorkspaceView)
	if !ok {
		return ErrorStyle.Render("inspect_workspace: unexpected data shape")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("current-run workspace"))
	b.WriteString("\n")

	if !view.Exists {
		b.WriteString(LabelStyle.Render("no run in progress"))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("q: quit"))
		return BoxStyle.Render(b.String())
	}

	parent := view.Parent
	if parent == "" {
		parent = "(root)"
	}
	b.WriteString(LabelStyle.Render("parent status: ") + ValueStyle.Render(parent) + "\n")
	b.WriteString(LabelStyle.Render("started at:    ") + ValueStyle.Render(view.StartedAt) + "\n")
	if view.CommitHash != "" {
		b.WriteString(LabelStyle.Render("commit hash:   ") + ValueStyle.Render(view.CommitHash) + "\n")
	}
	if len(view.DependencyFreeze) > 0 {
		b.WriteString(LabelStyle.Render("deps frozen:   ") + ValueStyle.Render(fmt.Sprintf("%d packages", len(view.DependencyFreeze))) + "\n")
	}
	b.WriteString(HelpStyle.Render("q: quit"))
	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderStatusLeaf() string {
	view, ok := m.data.(StatusView)
	if !ok {
		return ErrorStyle.Render("status_leaf: unexpected data shape")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("leaf status"))
	b.WriteString("\n")

	if !view.HasStatus {
		b.WriteString(LabelStyle.Render("depot has never committed a run"))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("q: quit"))
		return BoxStyle.Render(b.String())
	}

	parent := view.Parent
	if parent == "" {
		parent = "(root)"
	}
	b.WriteString(LabelStyle.Render("status id: ") + ValueStyle.Render(view.StatusID) + "\n")
	b.WriteString(LabelStyle.Render("parent:    ") + ValueStyle.Render(parent) + "\n")
	b.WriteString(LabelStyle.Render("runs:      ") + ValueStyle.Render(fmt.Sprintf("%d integrated", len(view.IntegratedRuns))) + "\n")
	for _, r := range view.IntegratedRuns {
		b.WriteString("  " + SuccessStyle.Render("• "+r) + "\n")
	}
	b.WriteString(HelpStyle.Render("q: quit"))
	return BoxStyle.Render(b.String())
}
