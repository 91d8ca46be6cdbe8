// Package generate wraps the Anthropic API as an optional entity-type
// advisor. The extraction pipeline never depends on it for correctness.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/marensch/lorekeep/model"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

// allowedTypes is the closed vocabulary a hint may resolve to
var allowedTypes = map[string]model.EntityType{
	"PERSON":   model.EntityTypePerson,
	"ORG":      model.EntityTypeOrg,
	"PLACE":    model.EntityTypePlace,
	"GPE":      model.EntityTypeGPE,
	"FACILITY": model.EntityTypeFacility,
	"DATE":     model.EntityTypeDate,
	"EVENT":    model.EntityTypeEvent,
	"ARTIFACT": model.EntityTypeArtifact,
	"RACE":     model.EntityTypeRace,
	"DEITY":    model.EntityTypeDeity,
	"UNKNOWN":  model.EntityTypeUnknown,
}

const hintPrompt = `Classify the named entity below into exactly one of these categories:
PERSON, ORG, PLACE, GPE, FACILITY, DATE, EVENT, ARTIFACT, RACE, DEITY, UNKNOWN

Entity: %q
Context: %q

Answer with the category name only, nothing else.`

// Client wraps the Anthropic API for entity-type hints.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewClient creates a new API client. Env var ANTHROPIC_API_KEY takes precedence over explicit apiKey.
func NewClient(apiKey string) (*Client, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", ErrAPIKeyRequired)
	}

	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          defaultModel,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// HintType proposes a type for an entity name given its surrounding text.
// The answer is advisory; anything outside the vocabulary resolves to UNKNOWN.
func (c *Client) HintType(ctx context.Context, name string, surrounding string) (model.EntityType, error) {
	prompt := fmt.Sprintf(hintPrompt, name, surrounding)

	answer, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		return model.EntityTypeUnknown, err
	}
	return normalizeHint(answer), nil
}

func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)

		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d retries: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || statusCode >= 500 {
			return true
		}
		return false
	}

	return false
}

// normalizeHint maps a free-form answer onto the closed vocabulary
func normalizeHint(answer string) model.EntityType {
	cleaned := strings.ToUpper(strings.TrimSpace(answer))
	cleaned = strings.Trim(cleaned, ".\"'")
	if t, ok := allowedTypes[cleaned]; ok {
		return t
	}
	return model.EntityTypeUnknown
}
