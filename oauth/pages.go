package oauth

import (
	"html/template"
	"log/slog"
	"net/http"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>
`))

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, struct{ Title, Body string }{title, body}); err != nil {
		slog.Warn("failed to write redirect page", slog.String("component", "oauth"), slog.Any("err", err))
	}
}
