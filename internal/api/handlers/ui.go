package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

type pageData struct {
	Title        string
	Subtitle     string
	Disclaimer   string
	StaticPrefix string
}

type UIHandler struct {
	page *template.Template
	data pageData
}

// NewUIHandler parses index.html from templates once at startup.
func NewUIHandler(templates fs.FS, staticPrefix string) (*UIHandler, error) {
	page, err := template.ParseFS(templates, "index.html")
	if err != nil {
		return nil, fmt.Errorf("parse chat template: %w", err)
	}
	return &UIHandler{
		page: page,
		data: pageData{
			Title:        "MediBot",
			Subtitle:     "Answers about diabetes from a curated knowledge base.",
			Disclaimer:   "MediBot is not a substitute for professional medical advice.",
			StaticPrefix: staticPrefix,
		},
	}, nil
}

func (h *UIHandler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, h.data); err != nil {
		slog.Error("render chat page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
