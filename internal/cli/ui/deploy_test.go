package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdock/botdock/internal/deploy"
)

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}

func TestDeployModelCollectsRows(t *testing.T) {
	m := NewDeployModel("order_bot")

	next, _ := m.Update(stepStartedMsg{name: "resolve-image"})
	model := next.(DeployModel)
	assert.Equal(t, "resolve-image", model.current)
	assert.Contains(t, model.View(), "resolve-image")

	next, _ = model.Update(stepFinishedMsg{res: deploy.Result{
		Step:    "resolve-image",
		Status:  deploy.StatusOK,
		Elapsed: 1200 * time.Millisecond,
	}})
	model = next.(DeployModel)
	assert.Empty(t, model.current)
	require.Len(t, model.rows, 1)
	assert.Contains(t, model.rows[0], "resolve-image")
	assert.Contains(t, model.rows[0], "1.2s")

	next, cmd := model.Update(doneMsg{err: nil})
	model = next.(DeployModel)
	assert.True(t, model.done)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDeployModelQuitKeys(t *testing.T) {
	for _, key := range []string{"q", "esc", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := NewDeployModel("order_bot")
			next, cmd := m.Update(keyMsg(key))
			model := next.(DeployModel)
			assert.True(t, model.Quitting)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.Contains(t, model.View(), "Deployment cancelled.")
		})
	}
}

func TestRenderResultGlyphs(t *testing.T) {
	ok := renderResult(deploy.Result{Step: "ensure-network", Status: deploy.StatusOK, Elapsed: 80 * time.Millisecond})
	assert.Contains(t, ok, "✓")
	assert.Contains(t, ok, "80ms")

	warn := renderResult(deploy.Result{
		Step:   "register-webhook",
		Status: deploy.StatusWarn,
		Detail: "telegram said no",
		Err:    errors.New("telegram said no"),
	})
	assert.Contains(t, warn, "!")
	assert.Contains(t, warn, "telegram said no")

	failed := renderResult(deploy.Result{Step: "recreate-container", Status: deploy.StatusFailed, Detail: "image vanished"})
	assert.Contains(t, failed, "✗")
	assert.Contains(t, failed, "image vanished")

	skipped := renderResult(deploy.Result{Step: "ensure-certificate", Status: deploy.StatusSkipped, Detail: "certificate already valid"})
	assert.Contains(t, skipped, "ensure-certificate")
	assert.Contains(t, skipped, "certificate already valid")
}
