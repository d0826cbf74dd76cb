package prompts

import (
	"fmt"
	"strings"
)

// GenerationSystemPrompt defines the role and hard rules for project
// generation. Every backend sends this unchanged; the code-block convention
// here is what the extraction engine parses on the way back.
const GenerationSystemPrompt = `You are an expert web developer. You generate complete, runnable web projects from a short description.

Rules:
1. Produce EVERY file the project needs to run: components, styles, entry point, package.json.
2. Output each file as a fenced code block. The first line inside each block must be a comment of the form:
   // filename: path/relative/to/project/root
   (use the comment syntax of the file's language, e.g. /* filename: ... */ for CSS, <!-- filename: ... --> for HTML)
3. Do not execute commands, do not describe installation steps, do not add prose between code blocks beyond a short sentence.
4. Prefer React with Vite unless the request clearly calls for Next.js.
5. Keep imports consistent: every stylesheet you import must also be emitted as a file.`

// GenerationUserTemplate wraps the user's project description. The %s
// placeholder receives the raw prompt.
const GenerationUserTemplate = `Generate a complete web project for the following description. Remember the filename comment convention for every code block.

Project description: %s`

// AssistantRunInstructions are the per-run instructions for the Assistants
// backend, which carries the system prompt on the assistant itself.
const AssistantRunInstructions = GenerationSystemPrompt

// WrapUserPrompt applies the user template to a raw prompt.
func WrapUserPrompt(prompt string) string {
	return fmt.Sprintf(GenerationUserTemplate, strings.TrimSpace(prompt))
}
