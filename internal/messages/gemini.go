package messages

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const lowSpendPrompt = "Write one short, upbeat sentence (under 20 words, no emoji, " +
	"no quotes) congratulating a user on a low-spending week in a personal " +
	"finance app. Output the sentence only."

// GeminiGenerator asks Gemini for fresh encouragement copy and falls back to
// the static pool on any failure, so game responses never depend on the
// model being reachable.
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	fallback *StaticPool
	timeout  time.Duration
	log      zerolog.Logger
}

// NewGeminiGenerator creates a generator using the given model name.
func NewGeminiGenerator(ctx context.Context, model string, log zerolog.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{
		client:   client,
		model:    model,
		fallback: NewStaticPool(),
		timeout:  3 * time.Second,
		log:      log,
	}, nil
}

// LowSpend returns a generated message, or a pooled one when generation
// fails or returns junk.
func (g *GeminiGenerator) LowSpend(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: lowSpendPrompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("low-spend message generation failed, using pool")
		return g.fallback.LowSpend(ctx)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" || len(text) > 200 {
		return g.fallback.LowSpend(ctx)
	}
	return text
}
