package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/lytt/internal/apierr"
	"github.com/alnah/lytt/internal/prompts"
)

// answerTemperature leaves the model some latitude for prose while
// keeping answers grounded.
const answerTemperature = 0.7

// maxHistory bounds the chat transcript; beyond it the oldest exchanges
// are dropped, keeping the system message.
const maxHistory = 20

// NoInfoAnswer is returned when retrieval finds nothing relevant.
const NoInfoAnswer = "I don't have any information about that in the indexed content."

// chatAPI is the slice of the OpenAI client the engine uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Answer is a model reply with the excerpts that grounded it.
type Answer struct {
	Text    string         `json:"answer"`
	Sources []ContextChunk `json:"sources"`
}

// Engine answers one-shot questions and runs grounded conversations.
// An Engine's chat history is not safe for concurrent use.
type Engine struct {
	chat    chatAPI
	builder *ContextBuilder
	library *prompts.Library
	model   string

	history []openai.ChatCompletionMessage
}

// NewEngine creates an Engine.
func NewEngine(chat chatAPI, builder *ContextBuilder, library *prompts.Library, model string) *Engine {
	return &Engine{chat: chat, builder: builder, library: library, model: model}
}

// Ask answers a single question from the indexed library. Without any
// relevant excerpt it returns the canned no-information answer instead
// of letting the model guess.
func (e *Engine) Ask(ctx context.Context, question string) (Answer, error) {
	chunks, err := e.builder.Build(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	if len(chunks) == 0 {
		return Answer{Text: NoInfoAnswer}, nil
	}

	system, err := e.library.Render(prompts.RagAnswer, map[string]string{
		"context": FormatContext(chunks),
	})
	if err != nil {
		return Answer{}, err
	}

	text, err := e.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: question},
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: chunks}, nil
}

// Chat continues the conversation with a new user message, retrieving
// fresh context for it each turn.
func (e *Engine) Chat(ctx context.Context, message string) (Answer, error) {
	chunks, err := e.builder.Build(ctx, message)
	if err != nil {
		return Answer{}, err
	}

	system, err := e.library.Render(prompts.RagAnswer, map[string]string{
		"context": FormatContext(chunks),
	})
	if err != nil {
		return Answer{}, err
	}

	if len(e.history) == 0 {
		e.history = append(e.history, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: system,
		})
	} else {
		// Context follows the latest message, not the one the
		// conversation opened with.
		e.history[0].Content = system
	}
	e.history = append(e.history, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: message,
	})

	text, err := e.complete(ctx, e.history)
	if err != nil {
		return Answer{}, err
	}

	e.history = append(e.history, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant, Content: text,
	})
	e.trimHistory()

	return Answer{Text: text, Sources: chunks}, nil
}

// ClearHistory resets the conversation.
func (e *Engine) ClearHistory() {
	e.history = nil
}

// History returns a copy of the current conversation.
func (e *Engine) History() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(e.history))
	copy(out, e.history)
	return out
}

// trimHistory keeps the system message plus the most recent exchanges
// once the transcript outgrows maxHistory.
func (e *Engine) trimHistory() {
	if len(e.history) <= maxHistory {
		return
	}
	keep := maxHistory - 1
	trimmed := make([]openai.ChatCompletionMessage, 0, maxHistory)
	trimmed = append(trimmed, e.history[0])
	trimmed = append(trimmed, e.history[len(e.history)-keep:]...)
	e.history = trimmed
}

func (e *Engine) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := apierr.Do(ctx, func() (openai.ChatCompletionResponse, error) {
		return e.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.model,
			Messages:    messages,
			Temperature: answerTemperature,
		})
	})
	if err != nil {
		return "", fmt.Errorf("answer request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices: %w", ErrRag)
	}
	return resp.Choices[0].Message.Content, nil
}
