package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"blogauto/apperr"
	"blogauto/config"
	"blogauto/events"
	"blogauto/generator"
	"blogauto/logging"
	"blogauto/publisher"
	"blogauto/server"
	"blogauto/speech"
	"blogauto/workflow"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file (.json or .toml); missing is fine")
	serve := flag.Bool("serve", false, "start web server")
	addr := flag.String("addr", "", "http listen address when --serve (overrides config.server_addr)")
	text := flag.String("text", "", "text to process in one-shot mode")
	file := flag.String("file", "", "read the text to process from this file")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, key := range cfg.Defaulted {
		log.WithField("setting", key).Warn("setting not configured, using built-in default")
	}

	app, err := build(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer app.close()

	if *serve {
		listen := cfg.ServerAddr
		if *addr != "" {
			listen = *addr
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.WithField("addr", listen).Info("starting web server")
		if err := app.server.ListenAndServe(ctx, listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			os.Exit(1)
		}
		return
	}

	input, err := readInput(*text, *file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := runOnce(app, input, log); err != nil {
		fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
		os.Exit(1)
	}
}

type app struct {
	orch   *workflow.Orchestrator
	server *server.Server
	sink   events.Sink
}

func (a *app) close() {
	if a.sink != nil {
		_ = a.sink.Close()
	}
}

func build(cfg config.Config, log *logrus.Logger) (*app, error) {
	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := generator.NewAnalyzer(llm, log)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	tts, err := speech.New(speech.Settings{
		BaseURL:         cfg.TTS.BaseURL,
		Voice:           cfg.TTS.Voice,
		Rate:            cfg.TTS.Rate,
		Timeout:         timeout,
		BreakerFailures: uint32(cfg.TTS.BreakerFailures),
		BreakerCooldown: time.Duration(cfg.TTS.BreakerCooldownSeconds) * time.Second,
	}, log)
	if err != nil {
		return nil, err
	}
	store, err := publisher.New(cfg.Storage.BaseURL, &http.Client{Timeout: timeout}, log)
	if err != nil {
		return nil, err
	}
	sink := buildSink(cfg.Events, log)

	opts := []workflow.Option{workflow.WithLogger(log)}
	if sink != nil {
		opts = append(opts, workflow.WithObserver(events.Observer(sink, "cli", log)))
	}
	orch, err := workflow.New(analyzer, tts, store, opts...)
	if err != nil {
		return nil, err
	}
	srv, err := server.New(server.Deps{
		Analyzer: analyzer,
		Speech:   tts,
		Store:    store,
		Sink:     sink,
		Logger:   log,
		FeedURL:  cfg.Storage.FeedURL,
	})
	if err != nil {
		return nil, err
	}
	return &app{orch: orch, server: srv, sink: sink}, nil
}

// buildSink 连接可选的事件投递目标，连接失败只告警，不影响启动。
func buildSink(cfg config.EventsConfig, log *logrus.Logger) events.Sink {
	var sinks []events.Sink
	if cfg.RedisURL != "" {
		rs, err := events.NewRedisSink(cfg.RedisURL, cfg.Prefix, log)
		if err != nil {
			log.WithError(err).Warn("redis event sink disabled")
		} else {
			sinks = append(sinks, rs)
		}
	}
	if cfg.NATSURL != "" {
		ns, err := events.NewNATSSink(cfg.NATSURL, cfg.Prefix)
		if err != nil {
			log.WithError(err).Warn("nats event sink disabled")
		} else {
			log.WithField("url", cfg.NATSURL).Info("nats event sink ready")
			sinks = append(sinks, ns)
		}
	}
	return events.Multi(sinks...)
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}
	switch cfg.LLM.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url（例如官方/网关地址）。
		if cfg.LLM.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return generator.NewGeminiLLMFromConfig(context.Background(), settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func readInput(text, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("--text or --file is required (or use --serve)")
	}
	return text, nil
}

func runOnce(a *app, input string, log *logrus.Logger) error {
	res, err := a.orch.Run(context.Background(), input)
	if err != nil {
		return err
	}
	log.WithField("post_id", res.PostID).Info("[cli] publish done")
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
