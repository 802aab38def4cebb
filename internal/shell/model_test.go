package shell

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Bigsy/mcpcli/internal/events"
	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/schema"
	"github.com/Bigsy/mcpcli/internal/testutil"
)

// newTestModel creates a Model over a disconnected session.
func newTestModel(t *testing.T) *Model {
	t.Helper()
	sh, _ := newShell(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewModel(ctx, sh, events.NewBus(logging.ForTest(t)))
}

func typeLine(m *Model, line string) {
	for _, r := range line {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestModel_SubmitRunsCommand(t *testing.T) {
	m := newTestModel(t)

	typeLine(m, "help")
	if m.input.Value() != "help" {
		t.Fatalf("expected input %q, got %q", "help", m.input.Value())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command after enter")
	}
	if !m.busy {
		t.Error("expected model to be busy while the command runs")
	}
	if m.input.Value() != "" {
		t.Errorf("expected input to be cleared, got %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "help") {
		t.Errorf("expected busy view to show the command, got %q", m.View())
	}

	// Keys other than ctrl+c are ignored while busy.
	typeLine(m, "x")
	if m.input.Value() != "" {
		t.Errorf("expected input to stay empty while busy, got %q", m.input.Value())
	}

	m.Update(commandDoneMsg{result: Result{Output: "done"}})
	if m.busy {
		t.Error("expected model to be idle after the command finished")
	}
}

func TestModel_History(t *testing.T) {
	m := newTestModel(t)

	for _, line := range []string{"status", "help", "help"} {
		typeLine(m, line)
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		m.Update(commandDoneMsg{})
	}
	if len(m.history) != 2 {
		t.Fatalf("expected repeated lines to be stored once, got %v", m.history)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.input.Value() != "help" {
		t.Errorf("expected %q after up, got %q", "help", m.input.Value())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.input.Value() != "status" {
		t.Errorf("expected %q after second up, got %q", "status", m.input.Value())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.input.Value() != "status" {
		t.Errorf("expected to stay on the oldest entry, got %q", m.input.Value())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.input.Value() != "" {
		t.Errorf("expected empty input past the newest entry, got %q", m.input.Value())
	}
}

func TestModel_CtrlCClearsInputBeforeQuitting(t *testing.T) {
	m := newTestModel(t)

	typeLine(m, "list-tools")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("expected no command when clearing input")
	}
	if m.input.Value() != "" {
		t.Errorf("expected input to be cleared, got %q", m.input.Value())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("expected quit command on ctrl+c with empty input")
	}
}

func TestModel_CtrlCCancelsBusyCommand(t *testing.T) {
	m := newTestModel(t)

	m.start("slow", func(ctx context.Context) Result {
		<-ctx.Done()
		return Result{}
	})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("expected ctrl+c while busy to cancel, not quit")
	}
	if m.ctx.Err() != nil {
		t.Error("expected only the command context to be cancelled")
	}
}

func TestModel_PromptOpensForm(t *testing.T) {
	m := newTestModel(t)
	tool := schema.Tool{
		Name:    "deploy",
		RawName: "deploy",
		Params:  []schema.Param{{Name: "service", Kind: schema.KindString, Required: true}},
	}

	m.Update(commandDoneMsg{result: Result{Prompt: &tool}})
	if m.form == nil {
		t.Fatal("expected the parameter form to open")
	}
	if !strings.Contains(testutil.StripANSI(m.View()), "service") {
		t.Errorf("expected form view to show the parameter, got %q", m.View())
	}

	// esc closes the form without calling the tool.
	cmd := m.form.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m.Update(cmd())
	if m.form != nil {
		t.Error("expected the form to close after cancel")
	}
	if m.busy {
		t.Error("expected no tool call after cancel")
	}
}

func TestModel_QuitResult(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(commandDoneMsg{result: Result{Quit: true}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestModel_ViewShowsStatusLine(t *testing.T) {
	m := newTestModel(t)
	view := testutil.StripANSI(m.View())
	if !strings.Contains(view, "disconnected") {
		t.Errorf("expected status line in view, got %q", view)
	}
	if !strings.Contains(view, "mcp>") {
		t.Errorf("expected prompt in view, got %q", view)
	}
}
