package translate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Some gemini builds wrap their output in markdown code fences.
var (
	fenceOpen  = regexp.MustCompile(`(?i)^(?:` + "```" + `(?:html|xhtml|xml|text)?\n)`)
	fenceClose = regexp.MustCompile("(\n)?```(\n)?$")
)

// GeminiCLIClient translates by invoking the external gemini command-line
// process once per request, text on stdin, translation on stdout. The API
// key is passed only in the child environment.
type GeminiCLIClient struct {
	binary         string
	model          string
	credential     *Credential
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	logger         *logrus.Logger
	hub            Broadcaster
}

func NewGeminiCLIClient(binary, model string, credential *Credential, maxRetries int, retryDelay, requestTimeout time.Duration, logger *logrus.Logger) *GeminiCLIClient {
	return &GeminiCLIClient{
		binary:         binary,
		model:          model,
		credential:     credential,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

func (c *GeminiCLIClient) SetBroadcaster(hub Broadcaster) {
	c.hub = hub
}

func (c *GeminiCLIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Translate the text on stdin from %s to %s. Return only the translated text, with no commentary and no code fences.",
		languageName(sourceLang), languageName(targetLang),
	)

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debugf("Retrying gemini CLI request (attempt %d/%d)", attempt+1, c.maxRetries+1)
			time.Sleep(c.retryDelay)
		}

		output, err := c.run(ctx, prompt, text)
		if err != nil {
			lastErr = err
			c.logger.Warnf("Gemini CLI request failed (attempt %d): %v", attempt+1, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		translated := stripCodeFences(output)
		if strings.TrimSpace(translated) == "" {
			lastErr = fmt.Errorf("gemini CLI returned no content")
			continue
		}

		if c.hub != nil {
			c.hub.BroadcastLog("debug", fmt.Sprintf("gemini CLI translated %d bytes", len(text)), "translation")
		}
		return strings.TrimSpace(translated), nil
	}

	return "", &Error{Reason: "gemini CLI failed", Err: lastErr}
}

func (c *GeminiCLIClient) run(ctx context.Context, prompt, text string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	cmd := exec.CommandContext(reqCtx, c.binary, "--model", c.model, "--prompt", prompt)
	cmd.Stdin = strings.NewReader(text)
	cmd.Env = append(os.Environ(), "GEMINI_API_KEY="+c.credential.Value())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}

	return stdout.String(), nil
}

func stripCodeFences(s string) string {
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return s
}
