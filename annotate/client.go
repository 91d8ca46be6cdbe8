package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marensch/lorekeep/model"
)

// Client talks to the linguistic-annotation service over HTTP. The service
// owns tokenization, part-of-speech tagging, dependency parsing and named
// entity tagging; responses are validated at this edge before anything
// downstream consumes them.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the annotation service at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type parseRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

type parseResponse struct {
	Sentences []model.ParsedSentence `json:"sentences"`
}

// Parse sends the document text for annotation and returns the validated
// parse. An unreachable or timed-out service surfaces
// model.ErrCollaboratorUnavailable so callers can degrade instead of crash.
func (c *Client) Parse(ctx context.Context, documentID string, text string) (*model.ParsedDocument, error) {
	body, err := json.Marshal(parseRequest{DocumentID: documentID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode parse request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build parse request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCollaboratorUnavailable, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return nil, fmt.Errorf("%w: annotation service rejected the document with status %d", model.ErrMalformedInput, response.StatusCode)
	default:
		return nil, fmt.Errorf("%w: annotation service returned status %d", model.ErrCollaboratorUnavailable, response.StatusCode)
	}

	var parsed parseResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %w", err)
	}

	doc := &model.ParsedDocument{
		DocumentID: documentID,
		Text:       text,
		Sentences:  parsed.Sentences,
	}
	if err := validateParse(doc); err != nil {
		return nil, fmt.Errorf("invalid parse response: %w", err)
	}

	return doc, nil
}

// Health checks whether the annotation service is reachable and ready
func (c *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrCollaboratorUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: annotation service health returned status %d", model.ErrCollaboratorUnavailable, response.StatusCode)
	}
	return nil
}

// validateParse rejects parses whose offsets or head links fall outside the
// document and rewrites the annotation service's character offsets into byte
// offsets into the exact document text, the unit every downstream stage
// slices with. Head indices are sentence-local; a root token points to itself.
func validateParse(doc *model.ParsedDocument) error {
	byteAt := byteOffsets(doc.Text)
	chars := len(byteAt) - 1

	for s := range doc.Sentences {
		sentence := &doc.Sentences[s]
		if sentence.Start < 0 || sentence.End > chars || sentence.Start > sentence.End {
			return fmt.Errorf("sentence %d has offsets [%d,%d) outside the document", s, sentence.Start, sentence.End)
		}
		for n := range sentence.Tokens {
			token := &sentence.Tokens[n]
			if token.Start < 0 || token.End > chars || token.Start >= token.End {
				return fmt.Errorf("sentence %d token %d has offsets [%d,%d) outside the document", s, n, token.Start, token.End)
			}
			if token.Head < 0 || token.Head >= len(sentence.Tokens) {
				return fmt.Errorf("sentence %d token %d has head %d outside the sentence", s, n, token.Head)
			}
			token.Start = byteAt[token.Start]
			token.End = byteAt[token.End]
		}
		sentence.Start = byteAt[sentence.Start]
		sentence.End = byteAt[sentence.End]
	}
	return nil
}

// byteOffsets maps every character index of text, plus one past the end,
// to its byte offset. For ASCII text the mapping is the identity.
func byteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
