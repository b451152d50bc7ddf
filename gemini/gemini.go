// Package gemini implements [tensorchat.Transport] on top of the Google
// Gemini API.
//
// Instead of talking to a tensorchat service, the transport runs every
// tensor of a request as its own GenerateContentStream call and
// multiplexes the results into one frame stream, the way the service
// would. Tensors run concurrently up to a configurable limit; each tensor
// has exactly one producing goroutine, so its frames stay in order.
package gemini

const (
	defaultConcurrency = 4

	// conciseDirective is appended to the system instruction of tensors
	// that ask for short answers.
	conciseDirective = "Respond concisely. Prefer a few sentences over a long explanation."
)

// tensorResult is the metadata attached to a tensor_complete frame.
type tensorResult struct {
	Model        string       `json:"model,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Usage        *tensorUsage `json:"usage,omitempty"`
	Sources      []string     `json:"sources,omitempty"`
}

type tensorUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
