package gemini

import (
	"context"
	"fmt"
	"iter"

	"github.com/fwojciec/tensorchat"
	"google.golang.org/genai"
)

// Interface compliance checks.
var (
	_ tensorchat.Transport = (*Client)(nil)
	_ Generator            = (*genai.Models)(nil)
)

// Generator is the subset of [genai.Models] the transport uses.
type Generator interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client implements [tensorchat.Transport] by fanning tensors out to
// Gemini.
type Client struct {
	gen         Generator
	concurrency int
}

// Option configures a [Client].
type Option func(*Client)

// WithConcurrency bounds how many tensors generate at the same time.
// Values below 1 mean no limit. Default is 4.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

// New creates a Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return NewFromGenerator(gc.Models, opts...), nil
}

// NewFromGenerator creates a [Client] using gen for every call.
func NewFromGenerator(gen Generator, opts ...Option) *Client {
	c := &Client{
		gen:         gen,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open starts generating every tensor of req and returns the multiplexed
// frame stream. Generation runs until the stream is drained or closed, or
// ctx is done.
func (c *Client) Open(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error) {
	if len(req.Tensors) == 0 {
		return nil, fmt.Errorf("gemini: no tensors: %w", tensorchat.ErrValidation)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go s.run(ctx, c, req)
	return s, nil
}

// buildConfig returns the generation config of tensor t.
func buildConfig(req tensorchat.StreamRequest, t tensorchat.TensorConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	system := req.Context
	if t.Concise {
		if system != "" {
			system += "\n\n"
		}
		system += conciseDirective
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if t.Search {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

func buildContents(t tensorchat.TensorConfig) []*genai.Content {
	return []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: t.Messages}},
	}}
}

func searchApplied(req tensorchat.StreamRequest) bool {
	for _, t := range req.Tensors {
		if t.Search {
			return true
		}
	}
	return false
}
