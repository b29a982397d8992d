package listing

import (
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

var pageTemplate = template.Must(template.New("listing").Funcs(template.FuncMap{
	"bytes": func(n int64) string {
		if n < 0 {
			n = 0
		}
		return humanize.Bytes(uint64(n))
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Title}}</title>
</head>
<body>
<h1>Index of {{.Title}}</h1>
<hr>
<ul>
{{- if .ParentHref}}
<li><a href="{{.ParentHref}}">../</a></li>
{{- end}}
{{- range .Links}}
{{- if .IsDir}}
<li><a href="{{.Href}}">{{.Name}}/</a></li>
{{- else}}
<li><a href="{{.Href}}">{{.Name}}</a>{{if .Media}} (<a href="{{.ViewHref}}">view</a>){{end}} <small title="{{stamp .ModTime}}">{{bytes .Size}}{{with ago .ModTime}}, {{.}}{{end}}</small></li>
{{- end}}
{{- end}}
</ul>
{{- if .Paginated}}
<hr>
<p>Page {{.Page}} ({{.Total}} entries)
{{- if .PrevHref}} <a href="{{.PrevHref}}">&laquo; previous</a>{{end}}
{{- if .NextHref}} <a href="{{.NextHref}}">next &raquo;</a>{{end}}</p>
{{- end}}
</body>
</html>
`))

// ContentType is the media type of rendered listings.
const ContentType = "text/html; charset=utf-8"

// Render writes l as an HTML page.
func Render(w io.Writer, l Listing) error {
	return pageTemplate.Execute(w, l)
}
