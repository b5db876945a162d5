// Package view holds the server-rendered pages.
package view

import (
	"embed"
	"html/template"
	"time"

	"mycareerbox/internal/model"
)

//go:embed templates/*.html
var files embed.FS

const (
	LoginPage   = "login.html"
	TrackerPage = "tracker.html"
)

func Load() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"statuses": model.Statuses,
		"date": func(t time.Time) string {
			return t.Format(model.DateLayout)
		},
	}).ParseFS(files, "templates/*.html")
}
