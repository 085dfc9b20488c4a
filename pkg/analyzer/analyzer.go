package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token represents a single analyzed unit of a transcript.
type Token struct {
	Surface       string   // The text as it was recognized (e.g. "行っ")
	BaseForm      string   // The dictionary form (e.g. "行く"), "*" for unknown words
	Reading       string   // The pronunciation (katakana, e.g. "イッ")
	PartsOfSpeech []string // e.g. ["動詞", "自立", "*", "*"] (Kagome POS labels)
	// PrimaryPOS stores the first (primary) part of speech if available.
	PrimaryPOS string
}

// TokenizationError reports that the morphological analyzer could not
// produce tokens for a transcript.
type TokenizationError struct {
	Text string
	Err  error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenize %q: %v", e.Text, e.Err)
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// ErrNotInitialized is wrapped in a TokenizationError when Tokenize is called
// on an Analyzer that was not built by NewAnalyzer.
var ErrNotInitialized = fmt.Errorf("analyzer not initialized")

// Analyzer wraps the kagome tokenizer with the IPA dictionary.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a new tokenizer instance.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, &TokenizationError{Err: err}
	}
	return &Analyzer{t: t}, nil
}

// Tokenize breaks a transcript into tokens with readings and base forms.
func (a *Analyzer) Tokenize(ctx context.Context, text string) (tokens []Token, err error) {
	if a == nil || a.t == nil {
		return nil, &TokenizationError{Text: text, Err: ErrNotInitialized}
	}
	if err := ctx.Err(); err != nil {
		return nil, &TokenizationError{Text: text, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = &TokenizationError{Text: text, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	for _, token := range a.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		features := token.Features()

		// Kagome IPA features:
		// 0: Part of Speech
		// 1-3: Sub-POS
		// 4: Conjugation Type
		// 5: Conjugation Form
		// 6: Base Form (Lemma)
		// 7: Reading
		// 8: Pronunciation
		// Words the dictionary does not know keep "*" as their base form,
		// which the default stopword list rejects.
		base := token.Surface
		if len(features) > 6 {
			base = features[6]
		}

		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}

		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		tokens = append(tokens, Token{
			Surface:       token.Surface,
			BaseForm:      base,
			Reading:       reading,
			PartsOfSpeech: features,
			PrimaryPOS:    primaryPOS,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, &TokenizationError{Text: text, Err: err}
	}
	return tokens, nil
}

// SplitUtterances splits text on Japanese sentence delimiters and newlines.
// Blank pieces are dropped.
func SplitUtterances(text string) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	for _, r := range text {
		current.WriteRune(r)
		// 。(3002), ！(FF01), ？(FF1F)
		if r == '。' || r == '！' || r == '？' || r == '\n' {
			flush()
		}
	}
	flush()
	return out
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content so that furigana is not replayed as part of the utterance
// (e.g. "漢字" becoming "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
