package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fwojciec/tensorchat"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

var errStreamClosed = errors.New("gemini: stream closed")

// stream implements [tensorchat.FrameStream] over the frames produced by
// one goroutine per tensor.
type stream struct {
	frames chan tensorchat.Frame
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	closed    bool
}

// Interface compliance check.
var _ tensorchat.FrameStream = (*stream)(nil)

func newStream(cancel context.CancelFunc) *stream {
	return &stream{
		frames: make(chan tensorchat.Frame, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Next returns the next frame. Returns io.EOF once every producer finished.
func (s *stream) Next() (tensorchat.Frame, error) {
	if s.closed {
		return nil, errStreamClosed
	}
	f, ok := <-s.frames
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}

// Close cancels outstanding generation and waits for producers to exit.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.cancel()
		// Unblock producers waiting to send.
		go func() {
			for range s.frames {
			}
		}()
		<-s.done
	})
	return nil
}

// run emits start, fans tensors out and emits session_complete once all of
// them resolved. It closes the frame channel on exit.
func (s *stream) run(ctx context.Context, c *Client, req tensorchat.StreamRequest) {
	defer close(s.done)
	defer close(s.frames)

	start := tensorchat.FrameStart{
		Model:         req.Model,
		TotalTensors:  len(req.Tensors),
		SearchApplied: searchApplied(req),
	}
	if !s.send(ctx, start) {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, t := range req.Tensors {
		p := producer{stream: s, gen: c.gen, index: i, model: req.Model}
		config := buildConfig(req, t)
		g.Go(func() error { return p.run(gctx, t, config) })
	}
	if err := g.Wait(); err != nil {
		return
	}
	s.send(ctx, tensorchat.FrameSessionComplete{})
}

func (s *stream) send(ctx context.Context, f tensorchat.Frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// producer generates one tensor.
type producer struct {
	stream *stream
	gen    Generator
	index  int
	model  string
}

// run returns a non-nil error only when ctx ended generation early. Model
// failures become scoped error frames.
func (p producer) run(ctx context.Context, t tensorchat.TensorConfig, config *genai.GenerateContentConfig) error {
	if !p.send(ctx, tensorchat.FrameTensorProgress{Index: p.index}) {
		return ctx.Err()
	}
	searching := t.Search
	if searching && !p.send(ctx, tensorchat.FrameSearchProgress{Index: p.index}) {
		return ctx.Err()
	}

	result := tensorResult{Model: p.model}
	for resp, err := range p.gen.GenerateContentStream(ctx, p.model, buildContents(t), config) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.fail(ctx, fmt.Sprintf("gemini: %v", err))
		}
		if searching {
			searching = false
			if !p.send(ctx, tensorchat.FrameSearchComplete{Index: p.index}) {
				return ctx.Err()
			}
		}
		if reason := blockReason(resp); reason != "" {
			return p.fail(ctx, "gemini: prompt blocked: "+reason)
		}
		collect(&result, resp)
		if text := responseText(resp); text != "" {
			if !p.send(ctx, tensorchat.FrameTensorChunk{Index: p.index, Chunk: text}) {
				return ctx.Err()
			}
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if searching && !p.send(ctx, tensorchat.FrameSearchComplete{Index: p.index}) {
		return ctx.Err()
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return p.fail(ctx, fmt.Sprintf("gemini: %v", err))
	}
	if !p.send(ctx, tensorchat.FrameTensorComplete{Index: p.index, Result: raw}) {
		return ctx.Err()
	}
	return nil
}

func (p producer) fail(ctx context.Context, msg string) error {
	if !p.send(ctx, tensorchat.FrameError{Index: tensorchat.Ptr(p.index), Message: msg}) {
		return ctx.Err()
	}
	return nil
}

func (p producer) send(ctx context.Context, f tensorchat.Frame) bool {
	return p.stream.send(ctx, f)
}

// responseText concatenates the non-thought text parts of the first
// candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	return string(resp.PromptFeedback.BlockReason)
}

// collect folds response metadata into r. Later responses win.
func collect(r *tensorResult, resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if resp.ModelVersion != "" {
		r.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		r.Usage = &tensorUsage{
			PromptTokens: int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		r.FinishReason = string(cand.FinishReason)
	}
	if gm := cand.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk != nil && chunk.Web != nil && chunk.Web.URI != "" {
				r.Sources = append(r.Sources, chunk.Web.URI)
			}
		}
	}
}
