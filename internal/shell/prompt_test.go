package shell

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bigsy/mcpcli/internal/params"
	"github.com/Bigsy/mcpcli/internal/schema"
)

func promptTool() schema.Tool {
	return schema.Tool{
		Name:    "deploy",
		RawName: "ops_svc_deploy",
		Params: []schema.Param{
			{Name: "service", Kind: schema.KindString, Required: true},
			{Name: "replicas", Kind: schema.KindNumber},
			{Name: "force", Kind: schema.KindBoolean},
			{Name: "extra", Kind: schema.KindUnknown},
		},
	}
}

func TestFromAnswers(t *testing.T) {
	m, err := FromAnswers(promptTool(), map[string]string{
		"service":  " api ",
		"replicas": "3",
		"force":    "TRUE",
		"extra":    "42",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"service", "replicas", "force", "extra"}, m.Keys())

	v, _ := m.Get("service")
	assert.Equal(t, " api ", v, "strings are kept verbatim")
	v, _ = m.Get("replicas")
	assert.Equal(t, 3, v)
	v, _ = m.Get("force")
	assert.Equal(t, true, v)
	v, _ = m.Get("extra")
	assert.Equal(t, 42, v, "unknown kinds fall back to inference")
}

func TestFromAnswers_SkipsBlankOptional(t *testing.T) {
	m, err := FromAnswers(promptTool(), map[string]string{"service": "api", "replicas": "  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"service"}, m.Keys())
}

func TestFromAnswers_Errors(t *testing.T) {
	_, err := FromAnswers(promptTool(), map[string]string{"replicas": "1"})
	assert.True(t, errors.Is(err, params.ErrInvalidFormat))
	assert.Contains(t, err.Error(), "service")

	_, err = FromAnswers(promptTool(), map[string]string{"service": "api", "replicas": "many"})
	assert.True(t, errors.Is(err, params.ErrInvalidFormat))

	_, err = FromAnswers(promptTool(), map[string]string{"service": "api", "force": "maybe"})
	assert.True(t, errors.Is(err, params.ErrInvalidFormat))
}

func TestValidator(t *testing.T) {
	tool := promptTool()
	assert.Error(t, validator(tool.Params[0])(""))
	assert.NoError(t, validator(tool.Params[0])("x"))
	assert.NoError(t, validator(tool.Params[1])(""))
	assert.NoError(t, validator(tool.Params[1])("-2.5e3"))
	assert.Error(t, validator(tool.Params[1])("ten"))
	assert.NoError(t, validator(tool.Params[2])("false"))
	assert.Error(t, validator(tool.Params[2])("nah"))
}

func TestParamForm_Params(t *testing.T) {
	f := NewParamForm(promptTool())
	f.answers[0] = "api"
	f.answers[2] = "false"

	m, err := f.Params()
	require.NoError(t, err)
	assert.Equal(t, `service=api (string), force=false (bool)`, m.String())
	assert.NotEmpty(t, f.View())
}

func TestParamForm_EscapeCancels(t *testing.T) {
	f := NewParamForm(promptTool())
	cmd := f.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)

	res, ok := cmd().(ParamFormResult)
	require.True(t, ok)
	assert.False(t, res.Submitted)
	assert.Equal(t, "deploy", res.Tool.Name)
}
