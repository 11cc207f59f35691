package panel

import (
	"fmt"
	"html/template"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// View is everything a renderer needs for one panel frame.
type View struct {
	User  string
	Table Table
	Err   error
}

// Renderer writes a panel frame.
type Renderer interface {
	Render(w io.Writer, v View) error
}

// ActionPath returns the form target for a row's action, or "" when the
// action is not dispatchable.
func ActionPath(slot SlotID, a Action) string {
	switch a {
	case ActionGenerate:
		return "/panel/" + string(slot) + "/generate"
	case ActionRemove:
		return "/panel/" + string(slot) + "/remove"
	}
	return ""
}

const pageTmpl = `<html>
<head>
<title>Loader keys</title>
</head>
<body>
<div>
  <p>Welcome, {{.User}}.</p>
</div>
{{- if .Err}}
<div class="error" role="alert">{{.Err}}</div>
{{- end}}
<div>
  <table>
    <thead>
      <tr>
      <td>Device slot</td><td>Assigned key</td><td>Action</td><td>In use?</td>
      </tr>
    </thead>
    <tbody>
{{- range $row := .Table.Rows}}
      <tr id="{{$row.Slot}}"><td>{{$row.Label}}</td><td>{{$row.Status}}</td><td>
        {{- with actionPath $row.Slot $row.Action -}}
        <form method="POST" action="{{.}}"><button type="submit">{{$row.Action}}</button></form>
        {{- else -}}
        {{$row.Action}}
        {{- end -}}
      </td><td>{{$row.Recency}}</td></tr>
{{- end}}
    </tbody>
  </table>
</div>
</body>
</html>
`

// HTMLRenderer renders the panel page. Rows carry ids slot1..slot3 and four
// cells: label, status, action and recency.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	t := template.Must(template.New("panel").Funcs(template.FuncMap{
		"actionPath": ActionPath,
	}).Parse(pageTmpl))
	return &HTMLRenderer{tmpl: t}
}

func (r *HTMLRenderer) Render(w io.Writer, v View) error {
	return r.tmpl.Execute(w, v)
}

// TextRenderer renders the panel as a terminal table.
type TextRenderer struct {
	header lipgloss.Style
	errMsg lipgloss.Style
	reveal lipgloss.Style
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{
		header: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		errMsg: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		reveal: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1),
	}
}

func (r *TextRenderer) Render(w io.Writer, v View) error {
	if v.User != "" {
		if _, err := fmt.Fprintf(w, "Keys for %s\n", v.User); err != nil {
			return err
		}
	}

	rows := make([][]string, 0, SlotCount)
	for _, row := range v.Table.Rows {
		rows = append(rows, []string{row.Label, row.Status, string(row.Action), row.Recency})
	}
	plain := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Device slot", "Assigned key", "Action", "In use?").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			if row >= 0 && row < SlotCount && v.Table.Rows[row].Action == ActionCreated && col == 1 {
				return r.reveal
			}
			return plain
		})
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	if v.Err != nil {
		if _, err := fmt.Fprintln(w, r.errMsg.Render("error: "+v.Err.Error())); err != nil {
			return err
		}
	}
	return nil
}
