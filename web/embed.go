package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/* static/*
var content embed.FS

// IndexHTML returns the single page UI
func IndexHTML() ([]byte, error) {
	return content.ReadFile("templates/index.html")
}

// GetStaticFS returns the embedded static assets rooted at static/
func GetStaticFS() fs.FS {
	staticFS, _ := fs.Sub(content, "static")
	return staticFS
}
