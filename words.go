package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WordProvider supplies the secret word for one player. Implementations
// must return a single lower-case alphabetic word of the requested length
// or an error; there is no fallback word, a failed fetch fails the match
// creation and the client may retry.
type WordProvider interface {
	FetchWord(ctx context.Context, length int) (string, error)
}

// wordAPI fetches words from a random-word endpoint that answers
// GET ?length=N&number=1 with a JSON array of strings.
type wordAPI struct {
	baseURL string
	client  *http.Client
}

func newWordAPI(baseURL string, timeout time.Duration) *wordAPI {
	return &wordAPI{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *wordAPI) FetchWord(ctx context.Context, length int) (string, error) {
	url := fmt.Sprintf("%s?length=%d&number=1", w.baseURL, length)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errWordProvider, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errWordProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", errWordProvider, resp.StatusCode)
	}

	var words []string
	if err := json.NewDecoder(resp.Body).Decode(&words); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", errWordProvider, err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("%w: empty response", errWordProvider)
	}

	word := words[0]
	if err := validWord(word, length); err != nil {
		return "", err
	}

	return word, nil
}

func validWord(word string, length int) error {
	if len(word) != length {
		return fmt.Errorf("%w: got %q, wanted a %d-letter word", errWordProvider, word, length)
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'a' || word[i] > 'z' {
			return fmt.Errorf("%w: got %q, wanted a lower-case alphabetic word", errWordProvider, word)
		}
	}
	return nil
}
