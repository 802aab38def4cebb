package shell

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Bigsy/mcpcli/internal/events"
	"github.com/Bigsy/mcpcli/internal/session"
)

const (
	promptText  = "mcp> "
	historySize = 500
)

// commandDoneMsg carries the result of a command run off the UI goroutine.
type commandDoneMsg struct {
	result Result
}

// eventMsg wraps a bus event.
type eventMsg struct {
	event events.Event
}

type keyMap struct {
	Submit key.Binding
	Cancel key.Binding
	Quit   key.Binding
	Prev   key.Binding
	Next   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(key.WithKeys("enter")),
		Cancel: key.NewBinding(key.WithKeys("ctrl+c")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+d")),
		Prev:   key.NewBinding(key.WithKeys("up", "ctrl+p")),
		Next:   key.NewBinding(key.WithKeys("down", "ctrl+n")),
	}
}

// Model is the bubbletea front end of the shell. Command output is printed
// above the program so it stays in the terminal's scrollback.
type Model struct {
	shell *Shell
	ctx   context.Context
	keys  keyMap

	input   textinput.Model
	spinner spinner.Model

	busy       bool
	busyLabel  string
	cancelBusy context.CancelFunc

	form *ParamForm

	history []string
	histPos int

	status  session.Status
	eventCh chan events.Event
}

// NewModel creates the shell model. If bus is not nil the status line
// follows session events.
func NewModel(ctx context.Context, sh *Shell, bus *events.Bus) *Model {
	ti := textinput.New()
	ti.Prompt = sh.Renderer().Theme.Prompt.Render(promptText)
	ti.Placeholder = "type help"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sh.Renderer().Theme.Primary

	m := &Model{
		shell:   sh,
		ctx:     ctx,
		keys:    newKeyMap(),
		input:   ti,
		spinner: sp,
		status:  sh.Session().Status(),
		eventCh: make(chan events.Event, 100),
	}

	if bus != nil {
		bus.Subscribe(func(e events.Event) {
			select {
			case m.eventCh <- e:
			default:
				// Channel full, drop event
			}
		})
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-m.eventCh:
			return eventMsg{event: e}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case commandDoneMsg:
		return m.finish(msg.result)

	case ParamFormResult:
		m.form = nil
		switch {
		case msg.Err != nil:
			return m, tea.Println(m.shell.Renderer().Error(msg.Err))
		case !msg.Submitted:
			return m, tea.Println(m.shell.Renderer().Theme.Muted.Render("Cancelled."))
		}
		tool, args := msg.Tool, msg.Params
		return m, m.start("calling "+tool.Name, func(ctx context.Context) Result {
			return m.shell.InvokeTool(ctx, tool, args)
		})

	case eventMsg:
		return m, tea.Batch(m.handleEvent(msg.event), m.waitForEvent())

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.shell.opts.Render.Width = msg.Width
		m.input.Width = max(msg.Width-len(promptText)-1, 10)
	}

	if m.form != nil {
		return m, m.form.Update(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.busy && m.cancelBusy != nil {
			m.cancelBusy()
			return m, nil
		}
		if m.input.Value() != "" {
			m.input.Reset()
			return m, nil
		}
		return m, m.quit()

	case key.Matches(msg, m.keys.Quit):
		if m.input.Value() == "" && !m.busy {
			return m, m.quit()
		}
		return m, nil
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		line := m.input.Value()
		m.input.Reset()
		m.remember(line)
		echo := tea.Println(m.shell.Renderer().Theme.Prompt.Render(promptText) + line)
		return m, tea.Sequence(echo, m.start(line, func(ctx context.Context) Result {
			return m.shell.Execute(ctx, line)
		}))

	case key.Matches(msg, m.keys.Prev):
		if m.histPos > 0 {
			m.histPos--
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		}
		return m, nil

	case key.Matches(msg, m.keys.Next):
		if m.histPos < len(m.history)-1 {
			m.histPos++
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		} else {
			m.histPos = len(m.history)
			m.input.Reset()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// start runs fn off the UI goroutine with a cancellable context.
func (m *Model) start(label string, fn func(ctx context.Context) Result) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.busy = true
	m.busyLabel = label
	m.cancelBusy = cancel
	run := func() tea.Msg {
		defer cancel()
		return commandDoneMsg{result: fn(ctx)}
	}
	return tea.Batch(m.spinner.Tick, run)
}

func (m *Model) finish(res Result) (tea.Model, tea.Cmd) {
	m.busy = false
	m.cancelBusy = nil
	m.status = m.shell.Session().Status()

	if res.Quit {
		return m, m.quit()
	}
	if res.Prompt != nil {
		m.form = NewParamForm(*res.Prompt)
		return m, m.form.Init()
	}
	if res.Output == "" {
		return m, nil
	}
	return m, tea.Println(res.Output)
}

func (m *Model) quit() tea.Cmd {
	m.busy = true
	m.busyLabel = "disconnecting"
	return tea.Sequence(func() tea.Msg {
		_ = m.shell.Close()
		return nil
	}, tea.Quit)
}

func (m *Model) handleEvent(e events.Event) tea.Cmd {
	m.status = m.shell.Session().Status()

	sc, ok := e.(events.StateChangedEvent)
	if !ok || sc.NewState != session.StateDisconnected || sc.OldState != session.StateConnected || sc.Reason == nil {
		return nil
	}
	th := m.shell.Renderer().Theme
	return tea.Println(th.Warn.Render("Connection to "+sc.ServerName()+" lost: ") + sc.Reason.Error())
}

func (m *Model) remember(line string) {
	if line != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != line) {
		m.history = append(m.history, line)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
	}
	m.histPos = len(m.history)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.form != nil {
		return m.form.View()
	}
	status := m.shell.Renderer().StatusLine(m.status)
	if m.busy {
		return status + "\n" + m.spinner.View() + " " + m.shell.Renderer().Theme.Muted.Render(m.busyLabel+"…")
	}
	return status + "\n" + m.input.View()
}
