package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"

	"github.com/Bigsy/mcpcli/internal/events"
	"github.com/Bigsy/mcpcli/internal/schema"
)

// RunProgram runs the bubbletea shell until the user exits. The session is
// disconnected on the way out.
func RunProgram(ctx context.Context, sh *Shell, bus *events.Bus, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(NewModel(ctx, sh, bus),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	if closeErr := sh.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunPlain reads one command per line from in until EOF or exit. It is used
// when stdin is not a terminal. Lines that fail do not stop the loop; the
// number of failed commands is returned with the first error.
func RunPlain(ctx context.Context, sh *Shell, in io.Reader, out io.Writer, echoPrompt bool) (failed int, err error) {
	defer func() {
		if closeErr := sh.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var firstErr error
	for {
		if echoPrompt {
			fmt.Fprint(out, promptText)
		}
		if !scanner.Scan() {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed, ctxErr
		}

		res := sh.Execute(ctx, scanner.Text())
		if res.Prompt != nil {
			res = promptAndInvoke(ctx, sh, *res.Prompt)
		}
		if res.Output != "" {
			fmt.Fprintln(out, res.Output)
		}
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
		}
		if res.Quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return failed, errors.Wrap(err, "read commands")
	}
	return failed, firstErr
}

func promptAndInvoke(ctx context.Context, sh *Shell, tool schema.Tool) Result {
	m, err := NewParamForm(tool).Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Result{Output: "Cancelled."}
		}
		return sh.fail(err)
	}
	return sh.InvokeTool(ctx, tool, m)
}
