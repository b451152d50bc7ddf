// Command tensorchat submits a multi-tensor request and prints every
// tensor's result.
//
// Usage:
//
//	TENSORCHAT_API_KEY=... tensorchat -model M -prompt "..." [-prompt "..."]
//	GEMINI_API_KEY=...     tensorchat -model gemini-2.5-flash -prompts 'prompts/**/*.md'
//
// Flags:
//
//	-config string        Path to YAML config file
//	-backend string       Backend: tensorchat, gemini (auto-detected from env vars if omitted)
//	-endpoint string      Service base URL (tensorchat backend)
//	-api-key string       API key (overrides the backend's env var)
//	-model string         Model ID
//	-context string       Instruction shared by every tensor
//	-prompt string        Prompt for one tensor (repeatable)
//	-prompts string       Glob of prompt files, one tensor per file (repeatable)
//	-concise              Ask for concise responses
//	-search               Enable search for every tensor
//	-throttle duration    Minimum interval between chunk updates per tensor
//	-retries int          Maximum stream attempts (default 3)
//	-concurrency int      Concurrent tensors, gemini backend (default 4)
//	-tui                  Show live progress in a terminal UI
//	-out string           Write the session result as JSON to this path
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-width int            Output width (default 80)
//	-verbose              Verbose logging
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fwojciec/tensorchat"
	bt "github.com/fwojciec/tensorchat/bubbletea"
	"github.com/fwojciec/tensorchat/goldmark"
	tcjson "github.com/fwojciec/tensorchat/json"
	tcprom "github.com/fwojciec/tensorchat/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tensorchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	fc, err := loadFileConfig(f.configPath)
	if err != nil {
		return err
	}

	// Env vars are read here and passed as values.
	o, err := resolveOptions(f, fc, environment{
		tensorchatKey: os.Getenv("TENSORCHAT_API_KEY"),
		geminiKey:     os.Getenv("GEMINI_API_KEY"),
	})
	if err != nil {
		return err
	}

	logger, err := newLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	transport, err := newTransport(ctx, o)
	if err != nil {
		return err
	}
	return execute(ctx, o, transport, logger, os.Stdout)
}

// execute submits the request described by o through transport, renders
// the result to w and saves it when o.out is set.
func execute(ctx context.Context, o options, transport tensorchat.Transport, logger *zap.Logger, w io.Writer) error {
	tensors, err := buildTensors(o)
	if err != nil {
		return err
	}

	var metrics *tcprom.Metrics
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = tcprom.New(reg)
		addr, shutdown, err := serveMetrics(o.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		logger.Info("serving metrics", zap.String("addr", addr))
	}

	policy := tensorchat.DefaultRetryPolicy()
	policy.MaxAttempts = o.attempts
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Info("stream failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if metrics != nil {
			metrics.OnRetry(attempt, err, delay)
		}
	}

	client, err := tensorchat.NewClient(transport, tensorchat.Config{
		Endpoint:         o.endpoint,
		Credential:       o.apiKey,
		CallbackThrottle: o.throttle,
	}, tensorchat.WithLogger(logger), tensorchat.WithRetryPolicy(policy))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing client", zap.Error(err))
		}
	}()

	req := tensorchat.StreamRequest{Context: o.context, Model: o.model, Tensors: tensors}
	instrument := func(cb tensorchat.Callbacks) tensorchat.Callbacks {
		if metrics == nil {
			return cb
		}
		return metrics.Instrument(cb)
	}

	var (
		session   *tensorchat.Session
		submitErr error
	)
	if o.tui {
		session, submitErr = submitTUI(ctx, client, req, instrument)
	} else {
		session, submitErr = client.Submit(ctx, req, instrument(logCallbacks(logger)))
	}
	if session == nil {
		return submitErr
	}

	result := session.Result()
	fmt.Fprint(w, goldmark.Render(result, o.width, tensorchat.DefaultTheme()))
	if o.out != "" {
		if err := tcjson.Save(o.out, result); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		logger.Info("result saved", zap.String("path", o.out))
	}
	return submitErr
}

// submitTUI runs the submission under the progress TUI. The returned
// session is nil when the TUI failed or exited before the submission
// returned. A cancellation from the keyboard is not an error.
func submitTUI(ctx context.Context, client *tensorchat.Client, req tensorchat.StreamRequest, instrument func(tensorchat.Callbacks) tensorchat.Callbacks) (*tensorchat.Session, error) {
	sessions := make(chan *tensorchat.Session, 1)
	submit := func(ctx context.Context, cb tensorchat.Callbacks) error {
		s, err := client.Submit(ctx, req, instrument(cb))
		sessions <- s
		return err
	}
	final, err := bt.Run(ctx, bt.New(submit, tensorchat.DefaultTheme()))
	if err != nil {
		return nil, fmt.Errorf("TUI: %w", err)
	}
	select {
	case s := <-sessions:
		return s, final.Err()
	default:
		return nil, ctx.Err()
	}
}

// logCallbacks reports tensor outcomes through logger when no TUI is shown.
func logCallbacks(logger *zap.Logger) tensorchat.Callbacks {
	return tensorchat.Callbacks{
		OnStart: func(e tensorchat.StartEvent) error {
			logger.Info("session started",
				zap.String("model", e.Model),
				zap.Int("tensors", e.TotalTensors),
				zap.Bool("search_applied", e.SearchApplied),
			)
			return nil
		},
		OnTensorComplete: func(e tensorchat.TensorCompleteEvent) error {
			logger.Info("tensor completed",
				zap.Int("index", e.Index),
				zap.Int("chars", goldmark.Length(e.Content)),
			)
			return nil
		},
		OnError: func(e tensorchat.ErrorEvent) {
			fields := []zap.Field{zap.Error(e.Err)}
			if e.Index != nil {
				fields = append(fields, zap.Int("index", *e.Index))
			}
			logger.Warn("session error", fields...)
		},
	}
}
