package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/tensorchat"
	"github.com/fwojciec/tensorchat/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// generator is a function-field double for gemini.Generator.
type generator struct {
	fn func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

func (g generator) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return g.fn(ctx, model, contents, config)
}

// mockChunks returns a genai-style streaming iterator from pre-built chunks.
func mockChunks(chunks ...*genai.GenerateContentResponse) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func textChunk(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func finalChunk(text string) *genai.GenerateContentResponse {
	resp := textChunk(text)
	resp.ModelVersion = "gemini-test-001"
	resp.Candidates[0].FinishReason = genai.FinishReasonStop
	resp.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     5,
		CandidatesTokenCount: 7,
		TotalTokenCount:      12,
	}
	return resp
}

func request(tensors ...tensorchat.TensorConfig) tensorchat.StreamRequest {
	return tensorchat.StreamRequest{Context: "You are terse.", Model: "gemini-test", Tensors: tensors}
}

func collect(t *testing.T, s tensorchat.FrameStream) []tensorchat.Frame {
	t.Helper()
	var frames []tensorchat.Frame
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

// byTensor groups scoped frames per index, preserving order.
func byTensor(frames []tensorchat.Frame) map[int][]tensorchat.FrameType {
	m := make(map[int][]tensorchat.FrameType)
	for _, f := range frames {
		switch fr := f.(type) {
		case tensorchat.FrameTensorProgress:
			m[fr.Index] = append(m[fr.Index], f.Type())
		case tensorchat.FrameSearchProgress:
			m[fr.Index] = append(m[fr.Index], f.Type())
		case tensorchat.FrameSearchComplete:
			m[fr.Index] = append(m[fr.Index], f.Type())
		case tensorchat.FrameTensorChunk:
			m[fr.Index] = append(m[fr.Index], f.Type())
		case tensorchat.FrameTensorComplete:
			m[fr.Index] = append(m[fr.Index], f.Type())
		case tensorchat.FrameError:
			m[*fr.Index] = append(m[*fr.Index], f.Type())
		}
	}
	return m
}

func TestClient_Open_FrameSequence(t *testing.T) {
	t.Parallel()

	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return mockChunks(textChunk("Hello, "), finalChunk("world"))
	}}
	c := gemini.NewFromGenerator(gen)

	s, err := c.Open(context.Background(), request(
		tensorchat.TensorConfig{Messages: "a"},
		tensorchat.TensorConfig{Messages: "b", Search: true},
	))
	require.NoError(t, err)
	defer s.Close()
	frames := collect(t, s)

	require.NotEmpty(t, frames)
	assert.Equal(t, tensorchat.FrameStart{Model: "gemini-test", TotalTensors: 2, SearchApplied: true}, frames[0])
	assert.Equal(t, tensorchat.FrameSessionComplete{}, frames[len(frames)-1])

	seq := byTensor(frames)
	assert.Equal(t, []tensorchat.FrameType{
		tensorchat.FrameTypeTensorProgress,
		tensorchat.FrameTypeTensorChunk,
		tensorchat.FrameTypeTensorChunk,
		tensorchat.FrameTypeTensorComplete,
	}, seq[0])
	assert.Equal(t, []tensorchat.FrameType{
		tensorchat.FrameTypeTensorProgress,
		tensorchat.FrameTypeSearchProgress,
		tensorchat.FrameTypeSearchComplete,
		tensorchat.FrameTypeTensorChunk,
		tensorchat.FrameTypeTensorChunk,
		tensorchat.FrameTypeTensorComplete,
	}, seq[1])
}

func TestClient_Open_RequestShape(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	configs := make(map[string]*genai.GenerateContentConfig)
	var models []string
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		mu.Lock()
		defer mu.Unlock()
		assert.Len(t, contents, 1)
		assert.Equal(t, "user", contents[0].Role)
		configs[contents[0].Parts[0].Text] = config
		models = append(models, model)
		return mockChunks(finalChunk("ok"))
	}}
	c := gemini.NewFromGenerator(gen)

	s, err := c.Open(context.Background(), request(
		tensorchat.TensorConfig{Messages: "plain"},
		tensorchat.TensorConfig{Messages: "short", Concise: true},
		tensorchat.TensorConfig{Messages: "lookup", Search: true},
	))
	require.NoError(t, err)
	collect(t, s)
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"gemini-test", "gemini-test", "gemini-test"}, models)

	plain := configs["plain"]
	require.NotNil(t, plain.SystemInstruction)
	assert.Equal(t, "You are terse.", plain.SystemInstruction.Parts[0].Text)
	assert.Empty(t, plain.Tools)

	short := configs["short"]
	assert.Contains(t, short.SystemInstruction.Parts[0].Text, "You are terse.")
	assert.Contains(t, short.SystemInstruction.Parts[0].Text, "Respond concisely.")

	lookup := configs["lookup"]
	require.Len(t, lookup.Tools, 1)
	assert.NotNil(t, lookup.Tools[0].GoogleSearch)
}

func TestClient_Open_ResultMetadata(t *testing.T) {
	t.Parallel()

	grounded := finalChunk("answer")
	grounded.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://go.dev", Title: "Go"}},
		},
	}
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return mockChunks(grounded)
	}}
	client, err := tensorchat.NewClient(gemini.NewFromGenerator(gen), tensorchat.Config{})
	require.NoError(t, err)

	session, err := client.Submit(context.Background(), request(tensorchat.TensorConfig{Messages: "q", Search: true}), tensorchat.Callbacks{})

	require.NoError(t, err)
	t0, _ := session.Tensor(0)
	assert.Equal(t, "answer", t0.Content)
	assert.JSONEq(t, `{
		"model": "gemini-test-001",
		"finish_reason": "STOP",
		"usage": {"prompt_tokens": 5, "output_tokens": 7, "total_tokens": 12},
		"sources": ["https://go.dev"]
	}`, string(t0.Result))
}

func TestClient_Open_SkipsThoughts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "pondering", Thought: true},
				{Text: "visible"},
			}},
		}},
	}
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return mockChunks(resp)
	}}
	client, err := tensorchat.NewClient(gemini.NewFromGenerator(gen), tensorchat.Config{})
	require.NoError(t, err)

	result, err := client.SubmitSingle(context.Background(), request(tensorchat.TensorConfig{Messages: "q"}))

	require.NoError(t, err)
	assert.Equal(t, "visible", result.Tensors[0].Content)
}

func TestClient_Open_TensorFailureIsScoped(t *testing.T) {
	t.Parallel()

	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		switch contents[0].Parts[0].Text {
		case "fails":
			return func(yield func(*genai.GenerateContentResponse, error) bool) {
				if !yield(textChunk("partial"), nil) {
					return
				}
				yield(nil, errors.New("quota exceeded"))
			}
		case "blocked":
			return mockChunks(&genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			})
		}
		return mockChunks(finalChunk("fine"))
	}}
	client, err := tensorchat.NewClient(gemini.NewFromGenerator(gen), tensorchat.Config{})
	require.NoError(t, err)

	var errs []tensorchat.ErrorEvent
	session, err := client.Submit(context.Background(), request(
		tensorchat.TensorConfig{Messages: "ok"},
		tensorchat.TensorConfig{Messages: "fails"},
		tensorchat.TensorConfig{Messages: "blocked"},
	), tensorchat.Callbacks{
		OnError: func(e tensorchat.ErrorEvent) { errs = append(errs, e) },
	})

	require.NoError(t, err)
	assert.Equal(t, tensorchat.SessionCompleted, session.Status())
	assert.Len(t, errs, 2)

	t0, _ := session.Tensor(0)
	t1, _ := session.Tensor(1)
	t2, _ := session.Tensor(2)
	assert.Equal(t, tensorchat.TensorCompleted, t0.Status)
	assert.Equal(t, tensorchat.TensorFailed, t1.Status)
	assert.Equal(t, "partial", t1.Content)
	assert.ErrorContains(t, t1.Err, "quota exceeded")
	assert.Equal(t, tensorchat.TensorFailed, t2.Status)
	assert.ErrorContains(t, t2.Err, "prompt blocked: SAFETY")
}

func TestClient_Open_ConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			yield(finalChunk("x"), nil)
		}
	}}
	client, err := tensorchat.NewClient(gemini.NewFromGenerator(gen, gemini.WithConcurrency(2)), tensorchat.Config{})
	require.NoError(t, err)

	tensors := make([]tensorchat.TensorConfig, 6)
	for i := range tensors {
		tensors[i] = tensorchat.TensorConfig{Messages: "q"}
	}
	result, err := client.SubmitSingle(context.Background(), request(tensors...))

	require.NoError(t, err)
	assert.Equal(t, 6, result.Completed())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestClient_Close_CancelsProducers(t *testing.T) {
	t.Parallel()

	cancelled := make(chan struct{})
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			<-ctx.Done()
			close(cancelled)
			yield(nil, ctx.Err())
		}
	}}
	c := gemini.NewFromGenerator(gen)

	s, err := c.Open(context.Background(), request(tensorchat.TensorConfig{Messages: "slow"}))
	require.NoError(t, err)
	f, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, tensorchat.FrameTypeStart, f.Type())

	require.NoError(t, s.Close())
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("producer was not cancelled")
	}
	_, err = s.Next()
	assert.Error(t, err)
}

func TestClient_Open_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			<-ctx.Done()
			yield(nil, ctx.Err())
		}
	}}
	client, err := tensorchat.NewClient(gemini.NewFromGenerator(gen), tensorchat.Config{})
	require.NoError(t, err)

	_, err = client.Submit(ctx, request(tensorchat.TensorConfig{Messages: "q"}), tensorchat.Callbacks{
		OnProgress: func(tensorchat.ProgressEvent) error {
			cancel()
			return nil
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Open_ResultIsJSON(t *testing.T) {
	t.Parallel()

	gen := generator{fn: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		return mockChunks()
	}}
	s, err := gemini.NewFromGenerator(gen).Open(context.Background(), request(tensorchat.TensorConfig{Messages: "q"}))
	require.NoError(t, err)
	defer s.Close()

	var complete tensorchat.FrameTensorComplete
	for _, f := range collect(t, s) {
		if c, ok := f.(tensorchat.FrameTensorComplete); ok {
			complete = c
		}
	}
	var meta map[string]any
	require.NoError(t, json.Unmarshal(complete.Result, &meta))
	assert.Equal(t, "gemini-test", meta["model"])
}
