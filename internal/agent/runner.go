package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/apierr"
	"github.com/alnah/lytt/internal/prompts"
)

// DefaultMaxIterations bounds the tool loop.
const DefaultMaxIterations = 15

// chatAPI is the slice of the OpenAI client the runner uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RunResult is the agent's final answer plus loop statistics.
type RunResult struct {
	Content       string   `json:"content"`
	ToolCallsMade []string `json:"tool_calls_made"`
	Iterations    int      `json:"iterations"`
}

// Runner drives the model through tool calls until it produces a plain
// answer or runs out of iterations.
type Runner struct {
	chat          chatAPI
	toolbox       *Toolbox
	library       *prompts.Library
	model         string
	maxIterations int
	log           zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxIterations bounds the tool loop.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a Runner.
func NewRunner(chat chatAPI, toolbox *Toolbox, library *prompts.Library, model string, opts ...RunnerOption) *Runner {
	r := &Runner{
		chat:          chat,
		toolbox:       toolbox,
		library:       library,
		model:         model,
		maxIterations: DefaultMaxIterations,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run answers one task. The videoID, when set, focuses the model on a
// single media item.
func (r *Runner) Run(ctx context.Context, task, videoID string) (RunResult, error) {
	system, err := r.library.Get(prompts.AgentSystem)
	if err != nil {
		return RunResult{}, err
	}

	user := task
	if videoID != "" {
		user = fmt.Sprintf("%s\n\nFocus on the media item with id %q.", task, videoID)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	catalogue := r.toolbox.Catalogue()

	var result RunResult
	for i := 0; i < r.maxIterations; i++ {
		result.Iterations = i + 1
		resp, err := apierr.Do(ctx, func() (openai.ChatCompletionResponse, error) {
			return r.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:    r.model,
				Messages: messages,
				Tools:    catalogue,
			})
		})
		if err != nil {
			return RunResult{}, fmt.Errorf("agent request: %w", err)
		}
		if len(resp.Choices) == 0 {
			return RunResult{}, fmt.Errorf("model returned no choices: %w", ErrAgent)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			result.Content = msg.Content
			return result, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			result.ToolCallsMade = append(result.ToolCallsMade, call.Function.Name)
			r.log.Debug().Str("tool", call.Function.Name).Msg("executing tool call")

			// Tool failures go back to the model as text; only the
			// iteration cap ends the loop.
			output, err := r.toolbox.Execute(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				output = "Tool error: " + err.Error()
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	return result, fmt.Errorf("exceeded maximum iterations (%d): %w", r.maxIterations, ErrAgent)
}
