package models

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Catalog groups model ids by the backend they can serve.
type Catalog struct {
	Speech []string // usable as audio.openai_model
	Chat   []string // usable as transliteration.openai_model
}

// Categorize sorts model ids into a Catalog. Ids that fit neither backend
// are dropped.
func Categorize(ids []string) Catalog {
	var c Catalog
	for _, id := range ids {
		switch {
		case strings.Contains(id, "tts"):
			c.Speech = append(c.Speech, id)
		case strings.Contains(id, "audio"), strings.Contains(id, "realtime"),
			strings.Contains(id, "transcribe"), strings.Contains(id, "search"):
			// speech in or out, but not a text completion model
		case strings.HasPrefix(id, "gpt-"), strings.HasPrefix(id, "o1"),
			strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
			c.Chat = append(c.Chat, id)
		}
	}
	sort.Strings(c.Speech)
	sort.Strings(c.Chat)
	return c
}

// Lister handles listing available OpenAI models
type Lister struct {
	apiKey string
	client *openai.Client
}

// NewLister creates a new model lister
func NewLister(apiKey string) *Lister {
	return &Lister{
		apiKey: apiKey,
		client: openai.NewClient(apiKey),
	}
}

// Fetch retrieves and categorizes the models available to the key
func (l *Lister) Fetch(ctx context.Context) (Catalog, error) {
	if l.apiKey == "" {
		return Catalog{}, fmt.Errorf("OpenAI API key not found. Set OPENAI_API_KEY environment variable or configure in .setu.yaml")
	}

	list, err := l.client.ListModels(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to list models: %w", err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, model := range list.Models {
		ids = append(ids, model.ID)
	}
	return Categorize(ids), nil
}

// Print writes the catalog as two indented lists
func (c Catalog) Print(out io.Writer) {
	section := func(title string, ids []string) {
		fmt.Fprintf(out, "%s:\n", title)
		if len(ids) == 0 {
			fmt.Fprintln(out, "  none found")
			return
		}
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	section("Speech synthesis models (audio.openai_model)", c.Speech)
	fmt.Fprintln(out)
	section("Chat models (transliteration.openai_model)", c.Chat)
}
