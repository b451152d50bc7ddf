// Package json persists tensorchat session results as versioned JSON
// documents.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/tensorchat"
)

// envelope is the v1 wire format for a persisted session result.
type envelope struct {
	Version       int         `json:"version"`
	ID            string      `json:"id"`
	Model         string      `json:"model"`
	Status        string      `json:"status"`
	SearchApplied bool        `json:"search_applied,omitempty"`
	Error         string      `json:"error,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	Tensors       []tensorDTO `json:"tensors"`
}

// tensorDTO is the JSON representation of one tensor outcome.
type tensorDTO struct {
	Index       int             `json:"index"`
	Status      string          `json:"status"`
	Content     string          `json:"content"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// MarshalResult serializes a SessionResult to JSON in v1 envelope format.
func MarshalResult(r tensorchat.SessionResult) ([]byte, error) {
	env := envelope{
		Version:       1,
		ID:            r.ID,
		Model:         r.Model,
		Status:        r.Status.String(),
		SearchApplied: r.SearchApplied,
		Error:         r.Err,
		StartedAt:     timePtr(r.StartedAt),
		CompletedAt:   timePtr(r.CompletedAt),
		Tensors:       make([]tensorDTO, len(r.Tensors)),
	}
	for i, t := range r.Tensors {
		if len(t.Result) > 0 && !json.Valid(t.Result) {
			return nil, fmt.Errorf("tensor %d: result is not valid JSON", t.Index)
		}
		env.Tensors[i] = tensorDTO{
			Index:       t.Index,
			Status:      t.Status.String(),
			Content:     t.Content,
			Result:      t.Result,
			Error:       t.Err,
			StartedAt:   timePtr(t.StartedAt),
			CompletedAt: timePtr(t.CompletedAt),
		}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalResult deserializes a SessionResult from JSON in v1 envelope
// format.
func UnmarshalResult(data []byte) (tensorchat.SessionResult, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return tensorchat.SessionResult{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return tensorchat.SessionResult{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	status, err := parseSessionStatus(env.Status)
	if err != nil {
		return tensorchat.SessionResult{}, err
	}
	r := tensorchat.SessionResult{
		ID:            env.ID,
		Model:         env.Model,
		Status:        status,
		SearchApplied: env.SearchApplied,
		Err:           env.Error,
		StartedAt:     timeVal(env.StartedAt),
		CompletedAt:   timeVal(env.CompletedAt),
		Tensors:       make([]tensorchat.TensorResult, len(env.Tensors)),
	}
	for i, dto := range env.Tensors {
		ts, err := parseTensorStatus(dto.Status)
		if err != nil {
			return tensorchat.SessionResult{}, fmt.Errorf("tensor %d: %w", i, err)
		}
		r.Tensors[i] = tensorchat.TensorResult{
			Index:       dto.Index,
			Status:      ts,
			Content:     dto.Content,
			Result:      dto.Result,
			Err:         dto.Error,
			StartedAt:   timeVal(dto.StartedAt),
			CompletedAt: timeVal(dto.CompletedAt),
		}
	}
	return r, nil
}

// Save writes a SessionResult to a JSON file, creating parent directories
// as needed.
func Save(path string, r tensorchat.SessionResult) error {
	data, err := MarshalResult(r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a SessionResult from a JSON file.
func Load(path string) (tensorchat.SessionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tensorchat.SessionResult{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalResult(data)
}

func parseSessionStatus(s string) (tensorchat.SessionStatus, error) {
	for st := tensorchat.SessionIdle; st <= tensorchat.SessionFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown session status: %q", s)
}

func parseTensorStatus(s string) (tensorchat.TensorStatus, error) {
	for st := tensorchat.TensorPending; st <= tensorchat.TensorFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown tensor status: %q", s)
}

// timePtr omits zero times from the document.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
