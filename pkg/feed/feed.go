// Package feed turns external inputs into finalized transcripts.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/wordcloud/pkg/analyzer"
)

// SubmitFunc receives one finalized transcript.
type SubmitFunc func(ctx context.Context, text string) error

// Lines reads r line by line and submits every non-blank line as one
// transcript. It stops at EOF, on ctx cancellation, or on the first submit error.
func Lines(ctx context.Context, r io.Reader, submit SubmitFunc) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := submit(ctx, line); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read transcripts: %w", err)
	}
	return n, nil
}

// Utterances submits each text in order, stopping on the first error.
func Utterances(ctx context.Context, texts []string, submit SubmitFunc) (int, error) {
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := submit(ctx, text); err != nil {
			return i, err
		}
	}
	return len(texts), nil
}

// maxBodySize bounds article downloads.
const maxBodySize = 10 * 1024 * 1024

// Article fetches a web page, extracts its readable text and splits it into
// utterances, so that an article can be replayed as if it were spoken.
func Article(ctx context.Context, client *http.Client, rawURL string) (title string, utterances []string, err error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	// Some news sites answer 403 to anything that does not look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch article: status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBodySize {
		return "", nil, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read article: %w", err)
	}
	if len(body) > maxBodySize {
		return "", nil, fmt.Errorf("article exceeds limit of %d bytes", maxBodySize)
	}

	return ParseArticle(bytes.NewReader(body), parsedURL)
}

// ParseArticle extracts readable text from an HTML document and splits it
// into utterances. Ruby annotations are stripped first.
func ParseArticle(r io.Reader, pageURL *url.URL) (string, []string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	article, err := readability.FromReader(bytes.NewReader(analyzer.SanitizeRuby(raw)), pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("extract article: %w", err)
	}
	return article.Title, analyzer.SplitUtterances(article.TextContent), nil
}
