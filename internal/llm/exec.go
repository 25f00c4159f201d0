package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metalagman/ainvoke"
)

const execInputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "task": { "type": "string" },
    "instructions": { "type": "string" }
  },
  "required": ["task"]
}`

const execOutputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "text": { "type": "string" }
  },
  "required": ["text"]
}`

type execInput struct {
	Task         string `json:"task"`
	Instructions string `json:"instructions,omitempty"`
}

type execOutput struct {
	Text string `json:"text"`
}

// ExecConfig configures a CLI agent subprocess backend.
type ExecConfig struct {
	Cmd    []string
	UseTTY bool
	// WorkDir is the parent for per-call run directories. Empty uses the
	// system temp dir.
	WorkDir string
	// Stderr receives the agent's stderr. Nil discards it.
	Stderr io.Writer
}

// ExecClient completes prompts by invoking a CLI agent (codex, gemini,
// claude, ...) through ainvoke.
type ExecClient struct {
	runner  ainvoke.Runner
	workDir string
	stderr  io.Writer
}

// NewExecClient constructs an exec backend.
func NewExecClient(cfg ExecConfig) (*ExecClient, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec backend requires cmd")
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    cfg.Cmd,
		UseTTY: cfg.UseTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec runner: %w", err)
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	return &ExecClient{runner: runner, workDir: cfg.WorkDir, stderr: stderr}, nil
}

// Complete runs the agent once in a scratch directory.
func (c *ExecClient) Complete(ctx context.Context, p Prompt) (string, error) {
	dir, err := os.MkdirTemp(c.workDir, "ttdr-exec-")
	if err != nil {
		return "", fmt.Errorf("create exec run dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	system := "You are a research assistant. Answer the task and write your answer to the `text` field of the output.\n" + p.System
	inv := ainvoke.Invocation{
		RunDir:       dir,
		SystemPrompt: system,
		Input:        execInput{Task: p.User, Instructions: p.System},
		InputSchema:  execInputSchema,
		OutputSchema: execOutputSchema,
	}

	var stdout bytes.Buffer
	out, _, exitCode, err := c.runner.Run(ctx, inv, ainvoke.WithStdout(&stdout), ainvoke.WithStderr(c.stderr))
	if err != nil {
		return "", fmt.Errorf("run exec agent (exit code %d): %w", exitCode, err)
	}

	var res execOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return "", fmt.Errorf("decode exec output: %w", ErrMalformedOutput)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("exec agent: %w", ErrEmptyOutput)
	}
	return text, nil
}
