// Package sse implements [tensorchat.Transport] over HTTP with server-sent
// events.
//
// One POST opens one stream attempt. Each SSE event carries one JSON
// encoded frame; the stream decodes them lazily as the demultiplexer pulls.
package sse

import "encoding/json"

const (
	streamPath = "/v1/stream"

	// maxFrameSize bounds a single SSE line. Tensor results can carry
	// sizable metadata, so the scanner default of 64KiB is too small.
	maxFrameSize = 1 << 20
)

// apiRequest is the JSON body sent to open a stream.
type apiRequest struct {
	Context string      `json:"context,omitempty"`
	Model   string      `json:"model"`
	Tensors []apiTensor `json:"tensors"`
}

type apiTensor struct {
	Messages string `json:"messages"`
	Concise  bool   `json:"concise,omitempty"`
	Search   bool   `json:"search,omitempty"`
}

// apiFrame is the union of every frame payload. Fields are populated
// depending on Type.
type apiFrame struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`

	// start
	Model         string `json:"model,omitempty"`
	TotalTensors  *int   `json:"total_tensors,omitempty"`
	SearchApplied bool   `json:"search_applied,omitempty"`

	// tensor_chunk
	Chunk string `json:"chunk,omitempty"`

	// tensor_complete
	Result json.RawMessage `json:"result,omitempty"`

	// error
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// apiErrorResponse is the body of a non-200 response.
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
