package shell

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"

	"github.com/Bigsy/mcpcli/internal/params"
	"github.com/Bigsy/mcpcli/internal/schema"
)

// ParamFormResult is sent when the parameter form closes.
type ParamFormResult struct {
	Tool      schema.Tool
	Params    *params.Map
	Submitted bool
	Err       error
}

// ParamForm asks for a tool's parameters one field at a time, in schema
// order. Answers are converted according to each parameter's kind.
//
// huh stores pointers to the answer slots, so a ParamForm must not be copied
// once built.
type ParamForm struct {
	tool    schema.Tool
	answers []string
	form    *huh.Form
	escKey  key.Binding
}

// NewParamForm builds the form for tool.
func NewParamForm(tool schema.Tool) *ParamForm {
	f := &ParamForm{
		tool:    tool,
		answers: make([]string, len(tool.Params)),
		escKey:  key.NewBinding(key.WithKeys("esc")),
	}

	fields := make([]huh.Field, 0, len(tool.Params))
	for i, p := range tool.Params {
		fields = append(fields, huh.NewInput().
			Title(paramTitle(p)).
			Description(p.Description).
			Placeholder(p.Kind.String()).
			Value(&f.answers[i]).
			Validate(validator(p)))
	}

	keymap := huh.NewDefaultKeyMap()
	keymap.Input.Prev.SetKeys("up", "shift+tab")
	keymap.Input.Next.SetKeys("down", "tab", "enter")

	formTheme := huh.ThemeBase16()
	orange := lipgloss.AdaptiveColor{Light: "#EA580C", Dark: "#FB923C"}
	formTheme.Focused.Title = formTheme.Focused.Title.Foreground(orange)
	formTheme.Blurred.Title = formTheme.Blurred.Title.Foreground(orange)

	f.form = huh.NewForm(huh.NewGroup(fields...).Title(tool.Name)).
		WithTheme(formTheme).
		WithWidth(72).
		WithShowHelp(true).
		WithShowErrors(true).
		WithKeyMap(keymap)
	return f
}

func paramTitle(p schema.Param) string {
	if p.Required {
		return p.Name + " *"
	}
	return p.Name
}

func validator(p schema.Param) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			if p.Required {
				return errors.Newf("%s is required", p.Name)
			}
			return nil
		}
		_, err := params.Convert(s, p.Kind.String())
		return err
	}
}

// Init starts the form inside a running program.
func (f *ParamForm) Init() tea.Cmd {
	return f.form.Init()
}

// Update forwards msg to the form. Once the form completes or is aborted it
// returns a command producing a ParamFormResult.
func (f *ParamForm) Update(msg tea.Msg) tea.Cmd {
	if km, ok := msg.(tea.KeyMsg); ok && key.Matches(km, f.escKey) {
		tool := f.tool
		return func() tea.Msg { return ParamFormResult{Tool: tool} }
	}

	form, cmd := f.form.Update(msg)
	if hf, ok := form.(*huh.Form); ok {
		f.form = hf
	}

	switch f.form.State {
	case huh.StateCompleted:
		m, err := f.Params()
		tool := f.tool
		return func() tea.Msg {
			return ParamFormResult{Tool: tool, Params: m, Submitted: err == nil, Err: err}
		}
	case huh.StateAborted:
		tool := f.tool
		return func() tea.Msg { return ParamFormResult{Tool: tool} }
	}
	return cmd
}

// View renders the form.
func (f *ParamForm) View() string {
	return f.form.View()
}

// Run shows the form on the terminal outside a bubbletea program and
// returns the collected parameters.
func (f *ParamForm) Run() (*params.Map, error) {
	if err := f.form.Run(); err != nil {
		return nil, err
	}
	return f.Params()
}

// Params converts the current answers.
func (f *ParamForm) Params() (*params.Map, error) {
	answers := make(map[string]string, len(f.answers))
	for i, p := range f.tool.Params {
		answers[p.Name] = f.answers[i]
	}
	return FromAnswers(f.tool, answers)
}

// FromAnswers converts interactive answers by parameter kind. Blank answers
// for optional parameters are left out; a blank required parameter is an
// error.
func FromAnswers(tool schema.Tool, answers map[string]string) (*params.Map, error) {
	m := params.NewMap()
	for _, p := range tool.Params {
		raw := answers[p.Name]
		if strings.TrimSpace(raw) == "" {
			if p.Required {
				return nil, errors.Mark(errors.Newf("missing required parameter %q", p.Name), params.ErrInvalidFormat)
			}
			continue
		}
		v, err := params.Convert(raw, p.Kind.String())
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "parameter %q", p.Name), params.ErrInvalidFormat)
		}
		m.Set(p.Name, v)
	}
	return m, nil
}
