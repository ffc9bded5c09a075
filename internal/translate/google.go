package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleEndpoint = "https://translate.googleapis.com/translate_a/single"

// GoogleTranslator calls the public Google translate web endpoint. It needs
// no credentials and auto-detects the source language when sourceLang is
// "auto".
type GoogleTranslator struct {
	client   *http.Client
	endpoint string
}

// NewGoogleTranslator creates a translator with the given request timeout.
func NewGoogleTranslator(timeout time.Duration) *GoogleTranslator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleTranslator{
		client:   &http.Client{Timeout: timeout},
		endpoint: googleEndpoint,
	}
}

// Translate converts text into targetLang.
func (g *GoogleTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == "" {
		sourceLang = "auto"
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", sourceLang)
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read translate response: %w", err)
	}

	translated, err := parseGoogleResponse(body)
	if err != nil {
		return "", err
	}
	return translated, nil
}

// parseGoogleResponse extracts the translated text from the endpoint's
// nested-array payload: [[["<translated>","<source>",...], ...], ...].
func parseGoogleResponse(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("parse translate response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty translate response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("parse translate segments: %w", err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		sb.WriteString(part)
	}

	out := sb.String()
	if out == "" {
		return "", fmt.Errorf("translate response contained no text")
	}
	return out, nil
}
