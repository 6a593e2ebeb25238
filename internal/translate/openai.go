package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

type OpenAIClient struct {
	client         *openai.Client
	logger         *logrus.Logger
	model          string
	maxTokens      int
	temperature    float32
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	hub            Broadcaster
}

func NewOpenAIClient(credential *Credential, model string, maxTokens int, temperature float32, maxRetries int, retryDelay, requestTimeout time.Duration, logger *logrus.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:         openai.NewClient(credential.Value()),
		logger:         logger,
		model:          model,
		maxTokens:      maxTokens,
		temperature:    temperature,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
		requestTimeout: requestTimeout,
	}
}

// SetBroadcaster enables request/response event streaming.
func (c *OpenAIClient) SetBroadcaster(hub Broadcaster) {
	c.hub = hub
}

func (c *OpenAIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}

	sourceLanguage := languageName(sourceLang)
	targetLanguage := languageName(targetLang)

	prompt := fmt.Sprintf(`Translate the following text from %s to %s. Maintain the original tone, style, and formatting as much as possible. Return only the translated text without any additional comments or explanations.

Text: %s`, sourceLanguage, targetLanguage, text)

	requestContext := map[string]interface{}{
		"source_lang":   sourceLang,
		"target_lang":   targetLang,
		"input_length":  len(text),
		"input_preview": truncateText(text, 100),
	}

	response, err := c.makeRequest(ctx, prompt, "text_translation", requestContext)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(response), nil
}

func (c *OpenAIClient) makeRequest(ctx context.Context, prompt, requestType string, requestContext map[string]interface{}) (string, error) {
	requestID := uuid.New().String()
	startTime := time.Now()

	if c.hub != nil {
		c.hub.BroadcastMessage("llm_request", map[string]interface{}{
			"request_id":   requestID,
			"model":        c.model,
			"prompt":       truncateText(prompt, 1000),
			"max_tokens":   c.maxTokens,
			"temperature":  c.temperature,
			"timestamp":    startTime,
			"request_type": requestType,
			"context":      requestContext,
		})
	}

	var lastErr error
	var response string
	var tokensUsed int
	var finishReason string

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debugf("Retrying OpenAI request (attempt %d/%d)", attempt+1, c.maxRetries+1)
			time.Sleep(c.retryDelay)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})
		cancel()

		if err != nil {
			lastErr = err
			c.logger.Warnf("OpenAI request failed (attempt %d): %v", attempt+1, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices returned")
			continue
		}

		response = resp.Choices[0].Message.Content
		tokensUsed = resp.Usage.TotalTokens
		finishReason = string(resp.Choices[0].FinishReason)
		lastErr = nil
		break
	}

	success := lastErr == nil

	if c.hub != nil {
		respMsg := map[string]interface{}{
			"request_id":    requestID,
			"response":      truncateText(response, 1000),
			"tokens_used":   tokensUsed,
			"finish_reason": finishReason,
			"duration":      time.Since(startTime).String(),
			"success":       success,
			"timestamp":     time.Now(),
			"context":       requestContext,
		}
		if !success {
			respMsg["error"] = lastErr.Error()
		}
		c.hub.BroadcastMessage("llm_response", respMsg)
	}

	if !success {
		return "", &Error{Reason: "max retries exceeded", Err: lastErr}
	}

	return response, nil
}
