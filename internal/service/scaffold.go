package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/execx"
	"github.com/timmy/appforge/internal/logger"
)

// ScaffoldService produces a directory that is both a valid project for its
// ecosystem (via an external scaffolding tool) and contains every extracted
// file. The scaffold command itself is all-or-nothing; everything after the
// file overlay is best-effort repair, because generated code is untrusted and
// imperfect by construction.
type ScaffoldService struct {
	runner  execx.Runner
	timeout time.Duration
}

// NewScaffoldService creates the materializer.
// Parameters:
//   - runner: external-process capability (fake in tests).
//   - timeout: per-command deadline for scaffold/install/build invocations.
//
// Returns:
//   - *ScaffoldService: initialized materializer.
func NewScaffoldService(runner execx.Runner, timeout time.Duration) *ScaffoldService {
	return &ScaffoldService{runner: runner, timeout: timeout}
}

// Materialize scaffolds outputDir for the inferred framework/language and
// overlays the extracted files on top. Scaffold and Tailwind-install failures
// abort with domain.ErrScaffoldFailed; style reconciliation and build-config
// normalization only log.
func (s *ScaffoldService) Materialize(ctx context.Context, outputDir string, result *domain.GenerationResult) error {
	if err := s.scaffold(ctx, outputDir, result.Info); err != nil {
		return err
	}

	if result.Info.CSSFramework == domain.CSSFrameworkTailwind && result.Info.Framework != domain.FrameworkNext {
		if err := s.installTailwind(ctx, outputDir); err != nil {
			return err
		}
	}

	if err := s.overlayFiles(ctx, outputDir, result); err != nil {
		return err
	}

	s.reconcileStyles(ctx, outputDir)

	if result.Info.Framework != domain.FrameworkNext {
		s.ensureViteConfig(ctx, outputDir)
	}

	return nil
}

// scaffold runs the external generator keyed by (framework, language).
func (s *ScaffoldService) scaffold(ctx context.Context, outputDir string, info domain.ProjectInfo) error {
	var cmd execx.Command
	if info.Framework == domain.FrameworkNext {
		langFlag := "--javascript"
		if info.Language == domain.LanguageTypeScript {
			langFlag = "--typescript"
		}
		cmd = execx.Command{
			Name: "npx",
			Args: []string{"create-next-app@latest", outputDir, langFlag,
				"--no-eslint", "--no-src-dir", "--app", "--use-npm", "--yes"},
			Timeout: s.timeout,
		}
	} else {
		template := "react"
		if info.Language == domain.LanguageTypeScript {
			template = "react-ts"
		}
		cmd = execx.Command{
			Name:    "npm",
			Args:    []string{"create", "vite@latest", outputDir, "--", "--template", template},
			Timeout: s.timeout,
		}
	}

	logger.CtxInfo(ctx, "Scaffolding project: %s %s", cmd.Name, strings.Join(cmd.Args, " "))

	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: running scaffold tool: %v", domain.ErrScaffoldFailed, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: scaffold tool exited with code %d: %s",
			domain.ErrScaffoldFailed, res.ExitCode, tailOf(res.Combined(), 500))
	}
	return nil
}

// installTailwind adds Tailwind tooling to a Vite scaffold. Fatal on failure;
// a project inferred to use Tailwind cannot build without it.
func (s *ScaffoldService) installTailwind(ctx context.Context, outputDir string) error {
	steps := []execx.Command{
		{
			Name:    "npm",
			Args:    []string{"install", "-D", "tailwindcss", "postcss", "autoprefixer"},
			Dir:     outputDir,
			Timeout: s.timeout,
		},
		{
			Name:    "npx",
			Args:    []string{"tailwindcss", "init", "-p"},
			Dir:     outputDir,
			Timeout: s.timeout,
		},
	}

	for _, cmd := range steps {
		res, err := s.runner.Run(ctx, cmd)
		if err != nil {
			return fmt.Errorf("%w: tailwind setup: %v", domain.ErrScaffoldFailed, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%w: tailwind setup exited with code %d: %s",
				domain.ErrScaffoldFailed, res.ExitCode, tailOf(res.Combined(), 500))
		}
	}
	return nil
}

// overlayFiles writes every extracted file under outputDir, creating parent
// directories and overwriting scaffold-provided files of the same path.
func (s *ScaffoldService) overlayFiles(ctx context.Context, outputDir string, result *domain.GenerationResult) error {
	for _, name := range result.Order {
		target, err := safeJoin(outputDir, name)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrScaffoldFailed, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("%w: creating directory for %s: %v", domain.ErrScaffoldFailed, name, err)
		}
		if err := os.WriteFile(target, []byte(result.Files[name]), 0644); err != nil {
			return fmt.Errorf("%w: writing %s: %v", domain.ErrScaffoldFailed, name, err)
		}
	}

	logger.With(logger.Fields{logger.FieldCount: len(result.Order)}).
		Info(ctx, "Overlaid extracted files onto scaffold")
	return nil
}

// safeJoin resolves a generated relative path under root, rejecting absolute
// paths and traversal outside the output directory.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("refusing absolute file path %q", name)
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing file path escaping the project root: %q", name)
	}
	return filepath.Join(root, cleaned), nil
}

// cssImportRe matches relative stylesheet imports in component source, both
// the side-effect form (import './App.css') and the named form.
var cssImportRe = regexp.MustCompile(`import\s+(?:[\w${},*\s]+\s+from\s+)?['"](\.{1,2}/[^'"]+\.css)['"]`)

var componentExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
}

// reconcileStyles scans component sources for relative CSS imports and
// synthesizes a minimal placeholder for every stylesheet that does not exist
// on disk. Individual failures are logged, never fatal.
func (s *ScaffoldService) reconcileStyles(ctx context.Context, outputDir string) {
	_ = filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch info.Name() {
			case "node_modules", ".git", "dist", ".next":
				return filepath.SkipDir
			}
			return nil
		}
		if !componentExtensions[filepath.Ext(path)] {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			logger.CtxWarn(ctx, "Style reconciliation: reading %s: %v", path, err)
			return nil
		}

		for _, match := range cssImportRe.FindAllStringSubmatch(string(src), -1) {
			stylesheet := filepath.Join(filepath.Dir(path), filepath.FromSlash(match[1]))
			if _, statErr := os.Stat(stylesheet); statErr == nil {
				continue
			}
			if err := writePlaceholderStylesheet(stylesheet, path); err != nil {
				logger.CtxWarn(ctx, "Style reconciliation: %v", err)
				continue
			}
			logger.CtxInfo(ctx, "Synthesized missing stylesheet %s imported by %s",
				stylesheet, filepath.Base(path))
		}
		return nil
	})
}

// writePlaceholderStylesheet creates a stylesheet holding a single rule
// scoped to the importing component's lower-cased base name.
func writePlaceholderStylesheet(stylesheet, componentPath string) error {
	base := filepath.Base(componentPath)
	className := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	if err := os.MkdirAll(filepath.Dir(stylesheet), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", stylesheet, err)
	}
	content := fmt.Sprintf(".%s {\n  display: block;\n}\n", className)
	if err := os.WriteFile(stylesheet, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing placeholder %s: %w", stylesheet, err)
	}
	return nil
}

// defaultViteConfig registers the React compiler plugin and disables CSS
// module inference, which trips over generated stylesheets named *.module.css.
const defaultViteConfig = `import { defineConfig } from 'vite'
import react from '@vitejs/plugin-react'

export default defineConfig({
  plugins: [react()],
  css: {
    modules: false,
  },
})
`

// ensureViteConfig makes sure a build-tool config exists; when one does, it
// is patched in place to add only what is missing. Best-effort.
func (s *ScaffoldService) ensureViteConfig(ctx context.Context, outputDir string) {
	configPath := filepath.Join(outputDir, "vite.config.js")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		tsPath := filepath.Join(outputDir, "vite.config.ts")
		if _, tsErr := os.Stat(tsPath); tsErr == nil {
			configPath = tsPath
		}
	}

	existing, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		if writeErr := os.WriteFile(configPath, []byte(defaultViteConfig), 0644); writeErr != nil {
			logger.CtxWarn(ctx, "Writing default vite config: %v", writeErr)
			return
		}
		logger.CtxInfo(ctx, "Wrote default vite config at %s", configPath)
		return
	}
	if err != nil {
		logger.CtxWarn(ctx, "Reading vite config: %v", err)
		return
	}

	patched := patchViteConfig(string(existing))
	if patched == string(existing) {
		return
	}
	if err := os.WriteFile(configPath, []byte(patched), 0644); err != nil {
		logger.CtxWarn(ctx, "Patching vite config: %v", err)
		return
	}
	logger.CtxInfo(ctx, "Patched vite config at %s", configPath)
}

// patchViteConfig adds the React plugin import/registration and the
// css.modules=false setting when missing, preserving everything else.
func patchViteConfig(content string) string {
	if !strings.Contains(content, "@vitejs/plugin-react") {
		content = "import react from '@vitejs/plugin-react'\n" + content
		if idx := strings.Index(content, "plugins: ["); idx != -1 {
			content = content[:idx+len("plugins: [")] + "react(), " + content[idx+len("plugins: ["):]
		} else if idx := strings.Index(content, "defineConfig({"); idx != -1 {
			insert := "\n  plugins: [react()],"
			content = content[:idx+len("defineConfig({")] + insert + content[idx+len("defineConfig({"):]
		}
	}

	if !strings.Contains(content, "modules") {
		if idx := strings.Index(content, "defineConfig({"); idx != -1 {
			insert := "\n  css: {\n    modules: false,\n  },"
			content = content[:idx+len("defineConfig({")] + insert + content[idx+len("defineConfig({"):]
		}
	}

	return content
}

// buildErrorRe extracts the unresolved stylesheet and the importing module
// from Vite/Rollup build failures, e.g.
//
//	[vite]: Rollup failed to resolve import "./Header.css" from "src/components/Header.jsx"
//	Could not resolve "./App.css" from "src/App.jsx"
var buildErrorRe = regexp.MustCompile(`(?i)(?:failed to resolve import|could not resolve)\s+"([^"]+\.css)"\s+from\s+"?([^".\s]+(?:\.[a-z]+)?)"?`)

// ValidateBuild runs the project's build once and, on a recognizable missing
// stylesheet error, synthesizes the placeholder and retries exactly once.
// Any other failure, or a second failure, is returned as-is for the caller
// to decide on.
func (s *ScaffoldService) ValidateBuild(ctx context.Context, outputDir string) error {
	res, err := s.runBuild(ctx, outputDir)
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return nil
	}

	output := res.Combined()
	stylesheet, importer, ok := parseMissingStylesheet(output)
	if !ok {
		return fmt.Errorf("build failed with exit code %d: %s", res.ExitCode, tailOf(output, 1000))
	}

	componentPath := resolveComponentPath(outputDir, importer)
	if componentPath == "" {
		return fmt.Errorf("build failed with exit code %d: %s", res.ExitCode, tailOf(output, 1000))
	}

	target := filepath.Join(filepath.Dir(componentPath), filepath.FromSlash(stylesheet))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("build repair: creating directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(""), 0644); err != nil {
		return fmt.Errorf("build repair: writing %s: %w", target, err)
	}
	logger.CtxInfo(ctx, "Build repair: synthesized %s for %s, retrying build", target, importer)

	res, err = s.runBuild(ctx, outputDir)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("build failed after repair with exit code %d: %s",
			res.ExitCode, tailOf(res.Combined(), 1000))
	}
	return nil
}

func (s *ScaffoldService) runBuild(ctx context.Context, outputDir string) (execx.Result, error) {
	return s.runner.Run(ctx, execx.Command{
		Name:    "npm",
		Args:    []string{"run", "build"},
		Dir:     outputDir,
		Timeout: s.timeout,
	})
}

// parseMissingStylesheet pulls the stylesheet path and importer out of build
// tool error text.
func parseMissingStylesheet(output string) (stylesheet, importer string, ok bool) {
	m := buildErrorRe.FindStringSubmatch(output)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// resolveComponentPath locates the importing component on disk, trying the
// standard source extensions when the error text omitted one.
func resolveComponentPath(outputDir, importer string) string {
	candidate := filepath.Join(outputDir, filepath.FromSlash(importer))
	if !filepath.IsAbs(importer) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	} else if _, err := os.Stat(importer); err == nil {
		return importer
	}

	for ext := range componentExtensions {
		withExt := candidate + ext
		if _, err := os.Stat(withExt); err == nil {
			return withExt
		}
	}
	return ""
}

// tailOf truncates long tool output from the front, keeping the end where
// build tools put the actual error.
func tailOf(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
