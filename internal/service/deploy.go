package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/execx"
	"github.com/timmy/appforge/internal/logger"
)

// vercelIgnore excludes files the deployment CLI has no business uploading.
const vercelIgnore = `README.md
node_modules
.git
`

// DeployService pushes a materialized project to Vercel and extracts the
// stable production URL from the CLI output. When no credential is configured
// the component is skipped entirely and the job resolves to
// completed_without_deployment.
type DeployService struct {
	runner   execx.Runner
	scaffold *ScaffoldService
	token    string
	scope    string
	timeout  time.Duration
}

// NewDeployService creates the deployment adapter.
func NewDeployService(runner execx.Runner, scaffold *ScaffoldService, cfg *config.DeployConfig) *DeployService {
	return &DeployService{
		runner:   runner,
		scaffold: scaffold,
		token:    cfg.Token,
		scope:    cfg.Scope,
		timeout:  cfg.CommandTimeout,
	}
}

// Enabled reports whether a deployment credential is configured.
func (s *DeployService) Enabled() bool {
	return s.token != ""
}

// ProjectName derives the unique deployment project name from a job id.
func ProjectName(jobID string) string {
	return "ai-project-" + strings.ToLower(jobID)
}

// Deploy installs dependencies, validates the build with the repair loop,
// resets stale deployment-tool state, and runs the CLI non-interactively with
// production scope. Returns the canonical production URL and the CLI's
// combined output. Failures wrap domain.ErrDeploymentFailed; this is a final,
// non-retried failure.
func (s *DeployService) Deploy(ctx context.Context, outputDir, jobID string) (deployURL, output string, err error) {
	// Generated manifests are often incomplete; install the compiler
	// plugin explicitly before building.
	installs := []execx.Command{
		{Name: "npm", Args: []string{"install"}, Dir: outputDir, Timeout: s.timeout},
		{Name: "npm", Args: []string{"install", "-D", "@vitejs/plugin-react"}, Dir: outputDir, Timeout: s.timeout},
	}
	for _, cmd := range installs {
		res, runErr := s.runner.Run(ctx, cmd)
		if runErr != nil {
			return "", "", fmt.Errorf("%w: %s %s: %v", domain.ErrDeploymentFailed, cmd.Name, strings.Join(cmd.Args, " "), runErr)
		}
		if res.ExitCode != 0 {
			return "", "", fmt.Errorf("%w: %s %s exited with code %d: %s",
				domain.ErrDeploymentFailed, cmd.Name, strings.Join(cmd.Args, " "), res.ExitCode, tailOf(res.Combined(), 500))
		}
	}

	if buildErr := s.scaffold.ValidateBuild(ctx, outputDir); buildErr != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrDeploymentFailed, buildErr)
	}

	// Stale local state makes the CLI fail with project-mismatch errors.
	if rmErr := os.RemoveAll(filepath.Join(outputDir, ".vercel")); rmErr != nil {
		logger.CtxWarn(ctx, "Removing stale .vercel state: %v", rmErr)
	}
	if writeErr := os.WriteFile(filepath.Join(outputDir, ".vercelignore"), []byte(vercelIgnore), 0644); writeErr != nil {
		return "", "", fmt.Errorf("%w: writing .vercelignore: %v", domain.ErrDeploymentFailed, writeErr)
	}

	projectName := ProjectName(jobID)
	args := []string{"vercel", "--prod", "--yes", "--token", s.token, "--name", projectName}
	if s.scope != "" {
		args = append(args, "--scope", s.scope)
	}

	logger.CtxInfo(ctx, "Deploying project %s", projectName)

	res, runErr := s.runner.Run(ctx, execx.Command{
		Name:    "npx",
		Args:    args,
		Dir:     outputDir,
		Timeout: s.timeout,
	})
	if runErr != nil {
		return "", "", fmt.Errorf("%w: running deployment CLI: %v", domain.ErrDeploymentFailed, runErr)
	}

	output = res.Combined()
	if res.ExitCode != 0 {
		return "", output, fmt.Errorf("%w: deployment CLI exited with code %d: %s",
			domain.ErrDeploymentFailed, res.ExitCode, tailOf(output, 1000))
	}

	deployURL, parseErr := ParseDeploymentURL(output, projectName)
	if parseErr != nil {
		return "", output, fmt.Errorf("%w: %v", domain.ErrDeploymentFailed, parseErr)
	}

	return deployURL, output, nil
}

// urlRe finds the first URL-shaped token in tool output.
var urlRe = regexp.MustCompile(`https?://[^\s"']+`)

// ParseDeploymentURL extracts the first URL from CLI output and canonicalizes
// it: the preview-deployment hash suffix is stripped so the result is the
// stable production URL, and a trailing slash is ensured.
func ParseDeploymentURL(output, projectName string) (string, error) {
	raw := urlRe.FindString(output)
	if raw == "" {
		return "", fmt.Errorf("no URL found in deployment output")
	}
	raw = strings.TrimRight(raw, ".,;)")

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparsable deployment URL %q: %v", raw, err)
	}

	host := u.Host
	// Preview URLs look like <project>-<hash>.vercel.app; collapse them to
	// the stable <project>.vercel.app production alias.
	if projectName != "" && strings.HasSuffix(host, ".vercel.app") && strings.HasPrefix(host, projectName+"-") {
		host = projectName + ".vercel.app"
	}

	canonical := u.Scheme + "://" + host + u.Path
	if !strings.HasSuffix(canonical, "/") {
		canonical += "/"
	}
	return canonical, nil
}
