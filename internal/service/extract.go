package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/timmy/appforge/internal/domain"
)

// ExtractService turns free-text model output into named file contents plus
// inferred project metadata. It is a pure transformation with no external
// dependencies, kept as its own component because the textual grammar is the
// most fragile piece of the pipeline.
type ExtractService struct{}

// NewExtractService creates a new extraction engine.
func NewExtractService() *ExtractService {
	return &ExtractService{}
}

// filenameDirectiveRe matches a comment-style "filename: <path>" line in any
// of the comment syntaxes the prompt allows (//, #, /* */, <!-- -->, --).
var filenameDirectiveRe = regexp.MustCompile(`(?i)^(?://|#|/\*|<!--|--)?\s*filename:\s*([^\s*]+)\s*(?:\*/|-->)?\s*$`)

// langExtensions maps fence language tags to default file extensions for
// synthesized filenames. Unknown languages fall through to .txt.
var langExtensions = map[string]string{
	"javascript": ".js",
	"js":         ".js",
	"jsx":        ".jsx",
	"typescript": ".ts",
	"ts":         ".ts",
	"tsx":        ".tsx",
	"css":        ".css",
	"scss":       ".scss",
	"html":       ".html",
	"json":       ".json",
	"markdown":   ".md",
	"md":         ".md",
	"yaml":       ".yaml",
	"yml":        ".yaml",
	"svg":        ".svg",
}

// codeBlock is one parsed fenced block.
type codeBlock struct {
	language string
	filename string // empty when no directive was found
	content  string
}

// Extract parses rawText and returns the file mapping plus inferred metadata.
// Duplicate filenames keep their first-seen position in the order but the
// last occurrence's content wins. Zero extracted blocks is not an error at
// this layer; the orchestrator treats it as a hard failure.
func (s *ExtractService) Extract(rawText string) *domain.GenerationResult {
	result := &domain.GenerationResult{
		Files: make(map[string]string),
		Info:  domain.DefaultProjectInfo(),
	}

	for i, block := range parseCodeBlocks(rawText) {
		name := block.filename
		if name == "" {
			name = fmt.Sprintf("file%d%s", i+1, extensionFor(block.language))
		}
		if _, seen := result.Files[name]; !seen {
			result.Order = append(result.Order, name)
		}
		result.Files[name] = block.content
	}

	s.inferProjectInfo(rawText, result)
	return result
}

// parseCodeBlocks scans text line by line for fenced blocks. A block opens on
// a line starting with a triple backtick fence (optionally carrying a language
// tag and a filename directive) and closes on a bare fence line. Unterminated
// blocks are dropped.
func parseCodeBlocks(text string) []codeBlock {
	var blocks []codeBlock
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "```") || trimmed == "```" {
			continue
		}

		language, filename := parseFenceLine(strings.TrimPrefix(trimmed, "```"))

		// Collect content up to the closing fence.
		var content []string
		closed := false
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				closed = true
				break
			}
			content = append(content, lines[j])
		}
		if !closed {
			break
		}
		i = j

		// No directive on the fence line: try the first content line.
		if filename == "" && len(content) > 0 {
			if m := filenameDirectiveRe.FindStringSubmatch(strings.TrimSpace(content[0])); m != nil {
				filename = m[1]
				content = content[1:]
			}
		}

		blocks = append(blocks, codeBlock{
			language: language,
			filename: filename,
			content:  strings.TrimSpace(strings.Join(content, "\n")),
		})
	}

	return blocks
}

// parseFenceLine splits the remainder of an opening fence line into a
// language tag and an optional inline filename directive.
func parseFenceLine(rest string) (language, filename string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}

	fields := strings.Fields(rest)
	language = strings.ToLower(fields[0])

	// A directive can trail the tag on the same line, e.g. "```jsx // filename: src/App.jsx".
	if len(fields) > 1 {
		tail := strings.TrimSpace(rest[len(fields[0]):])
		if m := filenameDirectiveRe.FindStringSubmatch(tail); m != nil {
			filename = m[1]
		}
	}

	// Some models put "filename: x" directly after the fence with no tag.
	if m := filenameDirectiveRe.FindStringSubmatch(rest); m != nil && filename == "" {
		language = ""
		filename = m[1]
	}

	return language, filename
}

// extensionFor maps a language tag to a file extension for fallback names.
func extensionFor(language string) string {
	if ext, ok := langExtensions[strings.ToLower(language)]; ok {
		return ext
	}
	return ".txt"
}

// inferProjectInfo runs the metadata checks over the full raw text plus any
// captured package.json. The checks are independent and only ever upgrade a
// field from its default.
func (s *ExtractService) inferProjectInfo(rawText string, result *domain.GenerationResult) {
	lower := strings.ToLower(rawText)
	pkg := strings.ToLower(result.Files["package.json"])

	if strings.Contains(lower, "typescript") || hasTypeScriptFile(result.Order) {
		result.Info.Language = domain.LanguageTypeScript
	}
	if strings.Contains(lower, "tailwind") || strings.Contains(pkg, "tailwindcss") {
		result.Info.CSSFramework = domain.CSSFrameworkTailwind
	}
	if strings.Contains(lower, "next.js") || strings.Contains(pkg, "next") {
		result.Info.Framework = domain.FrameworkNext
	}
}

func hasTypeScriptFile(names []string) bool {
	for _, name := range names {
		if strings.HasSuffix(name, ".ts") || strings.HasSuffix(name, ".tsx") {
			return true
		}
	}
	return false
}
