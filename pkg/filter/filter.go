package filter

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Category is the grammatical category of a token, reduced to what the
// cloud cares about.
type Category int

const (
	Other Category = iota
	Noun
	Verb
	Adjective
	Adverb
)

func (c Category) String() string {
	switch c {
	case Noun:
		return "noun"
	case Verb:
		return "verb"
	case Adjective:
		return "adjective"
	case Adverb:
		return "adverb"
	default:
		return "other"
	}
}

// CategoryOf maps an IPA primary part-of-speech label to a Category.
func CategoryOf(pos string) Category {
	switch pos {
	case "名詞":
		return Noun
	case "動詞":
		return Verb
	case "形容詞":
		return Adjective
	case "副詞":
		return Adverb
	default:
		return Other
	}
}

// ParseCategory maps a category name ("noun", "verb", ...) to a Category.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noun":
		return Noun, nil
	case "verb":
		return Verb, nil
	case "adjective":
		return Adjective, nil
	case "adverb":
		return Adverb, nil
	}
	return Other, fmt.Errorf("unknown category %q", name)
}

// Normalize returns the comparison form of a term: NFKC folded (full-width
// ASCII, half-width kana) and trimmed.
func Normalize(term string) string {
	return strings.TrimSpace(norm.NFKC.String(term))
}

var defaultStopwords = []string{
	"てる", "いる", "なる", "れる", "する", "ある", "こと", "これ",
	"さん", "して", "くれる", "やる", "くださる", "そう", "せる", "した", "思う",
	"それ", "ここ", "ちゃん", "くん", "て", "に", "を", "は", "ん",
	"の", "が", "と", "た", "し", "で", "ない", "も", "な", "い", "か", "ので", "よう", "*", "いい",
	"まあ", "かも", "くる", "からい", "さ", "っぽい", "あと", "ため", "られる",
	"わけ", "しまう", "ける", "てる子", "あれ", "ば", "やつ",
}

// DefaultStopwords returns a copy of the built-in stopword list.
func DefaultStopwords() []string {
	out := make([]string, len(defaultStopwords))
	copy(out, defaultStopwords)
	return out
}

// DefaultCategories returns the categories admitted by default.
func DefaultCategories() []Category {
	return []Category{Noun, Verb, Adjective, Adverb}
}

// LoadStopwords reads a YAML file holding either a plain list of words or a
// mapping with a "stopwords" key.
func LoadStopwords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stopwords file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Stopwords []string `yaml:"stopwords"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing stopwords file: %w", err)
	}
	return wrapped.Stopwords, nil
}

// Filter decides whether a (term, category) pair may enter the cloud.
// A Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	stopwords  map[string]struct{}
	categories map[Category]struct{}
}

// New builds a Filter. Stopwords are normalized before being stored.
func New(stopwords []string, categories []Category) *Filter {
	f := &Filter{
		stopwords:  make(map[string]struct{}, len(stopwords)),
		categories: make(map[Category]struct{}, len(categories)),
	}
	for _, w := range stopwords {
		f.stopwords[Normalize(w)] = struct{}{}
	}
	for _, c := range categories {
		if c == Other {
			continue
		}
		f.categories[c] = struct{}{}
	}
	return f
}

// Default builds a Filter with the built-in stopwords and categories.
func Default() *Filter {
	return New(defaultStopwords, DefaultCategories())
}

// Admit reports whether term may be counted.
func (f *Filter) Admit(term string, category Category) bool {
	term = Normalize(term)
	if term == "" {
		return false
	}
	if _, ok := f.categories[category]; !ok {
		return false
	}
	_, stop := f.stopwords[term]
	return !stop
}

// IsStopword reports whether term is in the stopword set.
func (f *Filter) IsStopword(term string) bool {
	_, ok := f.stopwords[Normalize(term)]
	return ok
}
