package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	backendTensorchat = "tensorchat"
	backendGemini     = "gemini"

	defaultAttempts    = 3
	defaultConcurrency = 4
	defaultWidth       = 80
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// flags holds the parsed command line. set records which flags were given
// explicitly so they override the config file only when present.
type flags struct {
	configPath  string
	backend     string
	endpoint    string
	apiKey      string
	model       string
	context     string
	prompts     stringList
	promptGlobs stringList
	concise     bool
	search      bool
	throttle    time.Duration
	attempts    int
	concurrency int
	tui         bool
	out         string
	metricsAddr string
	width       int
	verbose     bool

	set map[string]bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("tensorchat", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&f.backend, "backend", "", "Backend: tensorchat, gemini (auto-detected from env vars if omitted)")
	fs.StringVar(&f.endpoint, "endpoint", "", "Service base URL (tensorchat backend)")
	fs.StringVar(&f.apiKey, "api-key", "", "API key (overrides the backend's env var)")
	fs.StringVar(&f.model, "model", "", "Model ID")
	fs.StringVar(&f.context, "context", "", "Instruction shared by every tensor")
	fs.Var(&f.prompts, "prompt", "Prompt for one tensor (repeatable)")
	fs.Var(&f.promptGlobs, "prompts", "Glob of prompt files, one tensor per file (repeatable, supports **)")
	fs.BoolVar(&f.concise, "concise", false, "Ask for concise responses")
	fs.BoolVar(&f.search, "search", false, "Enable search for every tensor")
	fs.DurationVar(&f.throttle, "throttle", 0, "Minimum interval between chunk updates per tensor")
	fs.IntVar(&f.attempts, "retries", defaultAttempts, "Maximum stream attempts")
	fs.IntVar(&f.concurrency, "concurrency", defaultConcurrency, "Concurrent tensors (gemini backend)")
	fs.BoolVar(&f.tui, "tui", false, "Show live progress in a terminal UI")
	fs.StringVar(&f.out, "out", "", "Write the session result as JSON to this path")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.IntVar(&f.width, "width", defaultWidth, "Output width")
	fs.BoolVar(&f.verbose, "verbose", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// fileConfig is the YAML config file. Credentials are not accepted here.
type fileConfig struct {
	Backend     string         `yaml:"backend"`
	Endpoint    string         `yaml:"endpoint"`
	Model       string         `yaml:"model"`
	Context     string         `yaml:"context"`
	Concise     bool           `yaml:"concise"`
	Search      bool           `yaml:"search"`
	Throttle    time.Duration  `yaml:"throttle"`
	Retries     int            `yaml:"retries"`
	Concurrency int            `yaml:"concurrency"`
	Prompts     []string       `yaml:"prompts"`
	PromptFiles []string       `yaml:"prompt_files"`
	Tensors     []tensorConfig `yaml:"tensors"`
	Out         string         `yaml:"out"`
	MetricsAddr string         `yaml:"metrics_addr"`
}

// tensorConfig is one explicit tensor in the config file. Nil flags
// inherit the top-level setting.
type tensorConfig struct {
	Prompt  string `yaml:"prompt"`
	Concise *bool  `yaml:"concise"`
	Search  *bool  `yaml:"search"`
}

// loadFileConfig reads path. An empty path yields the zero config.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// environment carries the env vars read in main.
type environment struct {
	tensorchatKey string
	geminiKey     string
}

// options is the resolved configuration.
type options struct {
	backend     string
	endpoint    string
	apiKey      string
	model       string
	context     string
	concise     bool
	search      bool
	throttle    time.Duration
	attempts    int
	concurrency int
	prompts     []string
	promptGlobs []string
	tensors     []tensorConfig
	tui         bool
	out         string
	metricsAddr string
	width       int
	verbose     bool
}

// resolveOptions merges defaults, the config file, the environment and
// explicit flags, in increasing precedence.
func resolveOptions(f flags, fc fileConfig, env environment) (options, error) {
	o := options{
		backend:     fc.Backend,
		endpoint:    fc.Endpoint,
		model:       fc.Model,
		context:     fc.Context,
		concise:     fc.Concise,
		search:      fc.Search,
		throttle:    fc.Throttle,
		attempts:    defaultAttempts,
		concurrency: defaultConcurrency,
		prompts:     fc.Prompts,
		promptGlobs: fc.PromptFiles,
		tensors:     fc.Tensors,
		out:         fc.Out,
		metricsAddr: fc.MetricsAddr,
		width:       defaultWidth,
		tui:         f.tui,
		verbose:     f.verbose,
	}
	if fc.Retries > 0 {
		o.attempts = fc.Retries
	}
	if fc.Concurrency > 0 {
		o.concurrency = fc.Concurrency
	}

	if f.set["backend"] {
		o.backend = f.backend
	}
	if f.set["endpoint"] {
		o.endpoint = f.endpoint
	}
	if f.set["model"] {
		o.model = f.model
	}
	if f.set["context"] {
		o.context = f.context
	}
	if f.set["concise"] {
		o.concise = f.concise
	}
	if f.set["search"] {
		o.search = f.search
	}
	if f.set["throttle"] {
		o.throttle = f.throttle
	}
	if f.set["retries"] {
		o.attempts = f.attempts
	}
	if f.set["concurrency"] {
		o.concurrency = f.concurrency
	}
	if f.set["out"] {
		o.out = f.out
	}
	if f.set["metrics-addr"] {
		o.metricsAddr = f.metricsAddr
	}
	if f.set["width"] {
		o.width = f.width
	}
	o.prompts = append(o.prompts, f.prompts...)
	o.promptGlobs = append(o.promptGlobs, f.promptGlobs...)

	if o.model == "" {
		return options{}, errors.New("model is required (use -model or the config file)")
	}
	if o.attempts < 1 {
		return options{}, fmt.Errorf("retries must be at least 1, got %d", o.attempts)
	}
	if o.concurrency < 1 {
		return options{}, fmt.Errorf("concurrency must be at least 1, got %d", o.concurrency)
	}

	backend, key, err := resolveBackend(o.backend, f.apiKey, env)
	if err != nil {
		return options{}, err
	}
	o.backend, o.apiKey = backend, key
	return o, nil
}

// resolveBackend selects the backend and its key. All env var values are
// passed in as parameters; env is only read in main().
func resolveBackend(backend, apiKeyFlag string, env environment) (string, string, error) {
	if backend == "" {
		hasTensorchat := env.tensorchatKey != ""
		hasGemini := env.geminiKey != ""
		switch {
		case hasTensorchat && hasGemini:
			return "", "", errors.New("multiple API keys found (TENSORCHAT_API_KEY, GEMINI_API_KEY): use -backend flag to select")
		case hasTensorchat:
			backend = backendTensorchat
		case hasGemini:
			backend = backendGemini
		case apiKeyFlag != "":
			backend = backendTensorchat
		default:
			return "", "", errors.New("no API key found: set TENSORCHAT_API_KEY or GEMINI_API_KEY (or use -backend and -api-key flags)")
		}
	}

	key := apiKeyFlag
	switch backend {
	case backendTensorchat:
		if key == "" {
			key = env.tensorchatKey
		}
		if key == "" {
			return "", "", errors.New("TENSORCHAT_API_KEY not set (use -api-key flag or environment variable)")
		}
	case backendGemini:
		if key == "" {
			key = env.geminiKey
		}
		if key == "" {
			return "", "", errors.New("GEMINI_API_KEY not set (use -api-key flag or environment variable)")
		}
	default:
		return "", "", fmt.Errorf("unknown backend %q: must be %q or %q", backend, backendTensorchat, backendGemini)
	}
	return backend, key, nil
}
