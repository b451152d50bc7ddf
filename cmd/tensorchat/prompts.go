package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/tensorchat"
)

// buildTensors assembles the tensor list in a fixed order: explicit
// config tensors, literal prompts, then one tensor per file matched by
// the prompt globs. Globs are expanded in order; a file matched twice is
// used once.
func buildTensors(o options) ([]tensorchat.TensorConfig, error) {
	var tensors []tensorchat.TensorConfig
	add := func(prompt string, concise, search *bool) {
		t := tensorchat.TensorConfig{Messages: prompt, Concise: o.concise, Search: o.search}
		if concise != nil {
			t.Concise = *concise
		}
		if search != nil {
			t.Search = *search
		}
		tensors = append(tensors, t)
	}

	for _, t := range o.tensors {
		add(t.Prompt, t.Concise, t.Search)
	}
	for _, p := range o.prompts {
		add(p, nil, nil)
	}

	files, err := expandGlobs(o.promptGlobs)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt: %w", err)
		}
		prompt := strings.TrimSpace(string(data))
		if prompt == "" {
			return nil, fmt.Errorf("prompt file %s is empty", path)
		}
		add(prompt, nil, nil)
	}

	if len(tensors) == 0 {
		return nil, errors.New("no prompts: use -prompt, -prompts or the config file")
	}
	return tensors, nil
}

// expandGlobs returns the regular files matching patterns, sorted per
// pattern. Each pattern must match at least one file.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid glob pattern: %s", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", pattern)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	return files, nil
}
