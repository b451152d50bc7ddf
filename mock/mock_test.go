package mock_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fwojciec/tensorchat"
	"github.com/fwojciec/tensorchat/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Open(t *testing.T) {
	t.Parallel()
	t.Run("delegates to OpenFn", func(t *testing.T) {
		t.Parallel()
		var s mock.FrameStream
		tr := mock.Transport{
			OpenFn: func(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error) {
				return &s, nil
			},
		}
		got, err := tr.Open(context.Background(), tensorchat.StreamRequest{})
		require.NoError(t, err)
		assert.Equal(t, &s, got)
	})

	t.Run("returns error", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("dial failed")
		tr := mock.Transport{
			OpenFn: func(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error) {
				return nil, wantErr
			},
		}
		_, err := tr.Open(context.Background(), tensorchat.StreamRequest{})
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("panics when OpenFn not set", func(t *testing.T) {
		t.Parallel()
		tr := mock.Transport{}
		assert.Panics(t, func() {
			_, _ = tr.Open(context.Background(), tensorchat.StreamRequest{})
		})
	})
}

func TestFrameStream_Close(t *testing.T) {
	t.Parallel()
	t.Run("nil CloseFn returns nil", func(t *testing.T) {
		t.Parallel()
		s := mock.FrameStream{}
		assert.NoError(t, s.Close())
	})

	t.Run("delegates to CloseFn", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("close failed")
		s := mock.FrameStream{CloseFn: func() error { return wantErr }}
		assert.ErrorIs(t, s.Close(), wantErr)
	})
}

func TestFrames(t *testing.T) {
	t.Parallel()
	s, closed := mock.Frames(
		tensorchat.FrameStart{Model: "m", TotalTensors: 1},
		tensorchat.FrameTensorChunk{Index: 0, Chunk: "A"},
	)

	f, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, tensorchat.FrameStart{Model: "m", TotalTensors: 1}, f)
	f, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, tensorchat.FrameTensorChunk{Index: 0, Chunk: "A"}, f)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)

	assert.False(t, closed())
	require.NoError(t, s.Close())
	assert.True(t, closed())
}
