package render

import (
	"bytes"
	"html/template"
	"io"
)

var tableTmpl = template.Must(template.New("table").Parse(
	`<table id="{{.ID}}">` +
		`<tr id="tableHeaders">{{range .Header}}<th>{{.}}</th>{{end}}</tr>` +
		`{{range .Rows}}<tr data-mal-id="{{.MALID}}">{{range .Cells}}<td>{{.}}</td>{{end}}</tr>{{end}}` +
		`</table>`,
))

type tableData struct {
	ID     string
	Header []string
	Rows   []Row
}

// WriteHTML writes a complete table element. Cell text is escaped.
func WriteHTML(w io.Writer, id string, header []string, rows []Row) error {
	return tableTmpl.Execute(w, tableData{ID: id, Header: header, Rows: rows})
}

// HTML returns the table element for embedding in a page template.
func HTML(id string, header []string, rows []Row) (template.HTML, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, id, header, rows); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
