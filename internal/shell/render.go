package shell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/mcp"
	"github.com/Bigsy/mcpcli/internal/schema"
	"github.com/Bigsy/mcpcli/internal/session"
	"github.com/Bigsy/mcpcli/internal/shell/theme"
)

// paneWidth is used for boxed output when the terminal width is unknown.
const paneWidth = 72

// Renderer turns session data into terminal text.
type Renderer struct {
	Theme theme.Theme
	Width int
}

func (r Renderer) width() int {
	if r.Width > 0 {
		return min(r.Width, 120)
	}
	return paneWidth
}

// Error renders err and its hints.
func (r Renderer) Error(err error) string {
	var b strings.Builder
	b.WriteString(r.Theme.Danger.Render("error: " + err.Error()))
	if hints := errors.FlattenHints(err); hints != "" {
		for _, line := range strings.Split(hints, "\n") {
			if line = strings.TrimSpace(line); line != "" && line != "--" {
				b.WriteString("\n" + r.Theme.Muted.Render("hint: "+line))
			}
		}
	}
	return b.String()
}

// ToolList renders tool names with their descriptions.
func (r Renderer) ToolList(tools []schema.Tool) string {
	if len(tools) == 0 {
		return r.Theme.Muted.Render("The server advertises no tools.")
	}

	nameWidth := 0
	for _, t := range tools {
		nameWidth = max(nameWidth, len(t.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Theme.Title.Render(fmt.Sprintf("%d tool(s):", len(tools))))
	for i, t := range tools {
		name := r.Theme.ToolName.Render(fmt.Sprintf("%-*s", nameWidth, t.Name))
		desc := firstLine(t.Description)
		if t.RawName != t.Name {
			desc = strings.TrimSpace(desc + " " + r.Theme.Faint.Render("("+t.RawName+")"))
		}
		fmt.Fprintf(&b, "  %s  %s", name, desc)
		if i < len(tools)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Tool renders a tool's description and parameters.
func (r Renderer) Tool(t schema.Tool) string {
	var b strings.Builder
	if t.Description != "" {
		b.WriteString(t.Description + "\n\n")
	}
	if t.RawName != t.Name {
		fmt.Fprintf(&b, "%s %s\n", r.Theme.Muted.Render("Advertised as:"), t.RawName)
	}

	switch {
	case t.SchemaErr != nil:
		b.WriteString(r.Theme.Warn.Render("Input schema could not be parsed: "+t.SchemaErr.Error()) + "\n")
	case len(t.Params) == 0:
		b.WriteString(r.Theme.Muted.Render("No parameters.") + "\n")
	default:
		b.WriteString(r.Theme.Title.Render("Parameters:") + "\n")
		for _, p := range t.Params {
			line := "  " + r.Theme.Base.Render(p.Name) + " " + r.Theme.Kind.Render(p.Kind.String())
			if p.Required {
				line += " " + r.Theme.Required.Render("(required)")
			}
			if p.Description != "" {
				line += "  " + r.Theme.Muted.Render(firstLine(p.Description))
			}
			b.WriteString(line + "\n")
		}
	}

	fmt.Fprintf(&b, "%s ~%s tokens", r.Theme.Faint.Render("Definition size:"), humanize.Comma(int64(schema.EstimateTokens(t))))
	return r.Theme.RenderPane(t.Name, b.String(), r.width())
}

// Result renders a raw tools/call result. Text content is printed as is;
// anything that does not decode as a tool result is pretty-printed JSON.
func (r Renderer) Result(raw json.RawMessage) string {
	res, err := mcp.DecodeToolResult(raw)
	if err != nil || (len(res.Content) == 0 && len(res.StructuredContent) == 0) {
		return prettyJSON(raw)
	}
	text := res.Text()
	if res.IsError {
		return r.Theme.Danger.Render("tool reported an error:") + "\n" + text
	}
	return text
}

// Status renders a session snapshot.
func (r Renderer) Status(st session.Status, now time.Time) string {
	if st.Server == nil {
		return r.Theme.StatusPill(st.State) + "\n" + r.Theme.Muted.Render("No server connected.")
	}

	srv := st.Server
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", r.Theme.Muted.Render(fmt.Sprintf("%-10s", label)), value)
	}
	row("State", r.Theme.StatusPill(st.State))
	row("Command", config.LaunchLine(srv.Command, srv.Args))
	row("PID", fmt.Sprint(srv.PID))
	if srv.ServerName != "" {
		row("Server", strings.TrimSpace(srv.ServerName+" "+srv.ServerVersion))
	}
	row("Protocol", srv.ProtocolVersion)
	row("Tools", fmt.Sprint(st.ToolCount))
	row("Connected", humanize.RelTime(srv.ConnectedAt, now, "ago", "from now"))

	if len(st.RecentLogs) > 0 {
		b.WriteString(r.Theme.Title.Render("Recent server output:") + "\n")
		for _, line := range st.RecentLogs {
			b.WriteString("  " + r.Theme.Faint.Render(line) + "\n")
		}
	}
	return r.Theme.RenderPane(srv.Name, strings.TrimRight(b.String(), "\n"), r.width())
}

// StatusLine is the one-line summary shown above the prompt.
func (r Renderer) StatusLine(st session.Status) string {
	if st.Server == nil {
		return r.Theme.StatusIcon(st.State) + " " + r.Theme.StatusBar.Render(st.State.String())
	}
	return r.Theme.StatusIcon(st.State) + " " + r.Theme.StatusBar.Render(
		fmt.Sprintf("%s · %s · %d tool(s)", st.Server.Name, st.State, st.ToolCount))
}

// DefaultServer renders the saved default server.
func (r Renderer) DefaultServer(ds *config.DefaultServer) string {
	return fmt.Sprintf("%s %s\n%s %s\n%s %s",
		r.Theme.Muted.Render("Name:   "), ds.Name,
		r.Theme.Muted.Render("Command:"), config.LaunchLine(ds.Command, ds.Args),
		r.Theme.Muted.Render("Saved:  "), humanize.Time(ds.SavedAt))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
