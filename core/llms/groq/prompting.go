package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/copilothq/copilot-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama3-70b-8192"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// Client prompts Groq's OpenAI-compatible chat completions endpoint.
// Responses are requested as an SSE stream and assembled into a single
// completion; callers that want the chunks as they arrive pass
// llms.WithStream.
type Client struct {
	apiKey       string
	url          string
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
	topP         float32
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithSystemPrompt(systemPrompt string) ClientOption {
	return func(c *Client) { c.systemPrompt = systemPrompt }
}

func WithTemperature(temperature float32) ClientOption {
	return func(c *Client) { c.temperature = temperature }
}

func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *Client) { c.maxTokens = maxTokens }
}

func WithEndpoint(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:      apiKey,
		url:         defaultURL,
		model:       defaultModel,
		temperature: 0.7,
		maxTokens:   150,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Respond generates a short answer suggestion for the given question.
func (c *Client) Respond(ctx context.Context, question string, opts ...llms.PromptOption) (string, error) {
	options := llms.PromptOptions{Instructions: c.systemPrompt}
	for _, opt := range opts {
		opt(&options)
	}

	if c.apiKey == "" {
		return "", fmt.Errorf("groq api key not set")
	}

	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	messages := []message{}
	if options.Instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: options.Instructions,
		})
	}
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: fmt.Sprintf("Interview question/discussion: %s\n\nProvide a brief, helpful response suggestion:", question),
	})

	reqBody := requestBody{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        c.topP,
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var response strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

		if len(chunk) == 0 {
			continue
		}

		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.WarnContext(ctx, "Skipping unparsable response chunk", "error", err)
			continue
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		content := responseBody.Choices[0].Delta.Content
		response.WriteString(content)
		if options.Stream != nil && content != "" {
			options.Stream(content)
		}
	}

	if err := scanner.Err(); err != nil {
		err = fmt.Errorf("error reading streamed response: %w", err)
		span.RecordError(err)
		return "", err
	}

	return strings.TrimSpace(response.String()), nil
}
