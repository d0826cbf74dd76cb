package domain

// Framework identifies the frontend framework inferred for a generated project.
const (
	FrameworkReact = "react"
	FrameworkNext  = "next"
)

// Language identifies the source language inferred for a generated project.
const (
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
)

// CSSFrameworkTailwind marks a project that pulls in Tailwind. The zero value
// means no CSS framework was detected.
const CSSFrameworkTailwind = "tailwind"

// ProjectInfo holds project metadata inferred from model output. Fields are
// only ever upgraded from their defaults by a positive signal, never unset.
type ProjectInfo struct {
	Framework    string   `json:"framework"`
	Language     string   `json:"language"`
	CSSFramework string   `json:"css_framework,omitempty"`
	Features     []string `json:"features,omitempty"`
}

// DefaultProjectInfo returns the metadata assumed when no signal is found.
func DefaultProjectInfo() ProjectInfo {
	return ProjectInfo{
		Framework: FrameworkReact,
		Language:  LanguageJavaScript,
	}
}

// GenerationResult is the output of the extraction engine: a filename to
// content mapping plus inferred project metadata. Order holds filenames in
// first-seen order; Files is keyed by the same names with the last occurrence
// of a duplicate filename winning.
type GenerationResult struct {
	Files map[string]string `json:"files"`
	Order []string          `json:"order"`
	Info  ProjectInfo       `json:"project_info"`
}
