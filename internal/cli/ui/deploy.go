// Package ui renders deployment progress as an interactive terminal view.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/botdock/botdock/internal/deploy"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type stepStartedMsg struct {
	name string
}

type stepFinishedMsg struct {
	res deploy.Result
}

type doneMsg struct {
	err error
}

// DeployModel shows one line per pipeline step while a deployment runs.
type DeployModel struct {
	spinner  spinner.Model
	bot      string
	current  string
	rows     []string
	done     bool
	Quitting bool
}

// NewDeployModel returns a new DeployModel
func NewDeployModel(bot string) DeployModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#54baff"))

	return DeployModel{spinner: s, bot: bot}
}

func (m DeployModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles the messages sent to the model
func (m DeployModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		default:
			return m, nil
		}
	case stepStartedMsg:
		m.current = msg.name
		return m, nil
	case stepFinishedMsg:
		m.current = ""
		m.rows = append(m.rows, renderResult(msg.res))
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

// View returns the view for the model
func (m DeployModel) View() string {
	var b strings.Builder
	for _, row := range m.rows {
		b.WriteString("  " + row + "\n")
	}
	if m.Quitting {
		b.WriteString("\nDeployment cancelled.\n")
		return b.String()
	}
	if !m.done && m.current != "" {
		fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), m.current)
	}
	return b.String()
}

func renderResult(res deploy.Result) string {
	switch res.Status {
	case deploy.StatusOK:
		return fmt.Sprintf("%s %s (%s)", okStyle.Render("✓"), res.Step, res.Elapsed.Round(time.Millisecond))
	case deploy.StatusWarn:
		return fmt.Sprintf("%s %s: %s", warnStyle.Render("!"), res.Step, res.Detail)
	case deploy.StatusSkipped:
		return skipStyle.Render(fmt.Sprintf("- %s (%s)", res.Step, res.Detail))
	default:
		return fmt.Sprintf("%s %s: %s", failStyle.Render("✗"), res.Step, res.Detail)
	}
}

// programReporter forwards pipeline events into the running program.
type programReporter struct {
	prog *tea.Program
}

func (r programReporter) StepStarted(name string) {
	r.prog.Send(stepStartedMsg{name: name})
}

func (r programReporter) StepFinished(res deploy.Result) {
	r.prog.Send(stepFinishedMsg{res: res})
}

// RunDeploy drives a deployment while rendering its progress. Quitting the
// view cancels the run; steps that already completed stay completed.
func RunDeploy(ctx context.Context, runner *deploy.Runner, req deploy.Request) ([]deploy.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewDeployModel(req.Bot))

	var (
		results []deploy.Result
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		req.Reporter = programReporter{prog: prog}
		results, runErr = runner.Deploy(ctx, req)
		prog.Send(doneMsg{err: runErr})
	}()

	modelInterface, err := prog.Run()
	if err != nil {
		cancel()
		<-done
		return results, fmt.Errorf("error running deploy view: %w", err)
	}

	finalModel, ok := modelInterface.(DeployModel)
	if !ok {
		cancel()
		<-done
		return results, fmt.Errorf("could not type assert tea model to concrete type")
	}
	if finalModel.Quitting {
		cancel()
	}
	<-done

	return results, runErr
}
