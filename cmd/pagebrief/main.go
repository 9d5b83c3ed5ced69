package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cwygoda/pagebrief/internal/adapter/firecrawl"
	pbslog "github.com/cwygoda/pagebrief/internal/adapter/slog"
	"github.com/cwygoda/pagebrief/internal/config"
	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/cwygoda/pagebrief/internal/poller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Config is populated by Run from the config file, environment and flags.
	Config *config.Config

	// Extractor replaces the Firecrawl client when set. Used by tests.
	Extractor domain.Extractor
}

// NewMain returns a new instance of Main.
func NewMain() *Main {
	return &Main{}
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("pagebrief"),
		kong.Description("Summarize web pages through the Firecrawl extract API."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'pagebrief --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.APIURL != "" {
		cfg.APIURL = cli.APIURL
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.Serve.Port != 0 {
		cfg.Port = cli.Serve.Port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "Hint: set FIRECRAWL_API_KEY or api_key in", config.DefaultConfigPath())
		return err
	}
	m.Config = cfg

	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		return err
	}

	extractor := m.Extractor
	if extractor == nil {
		extractor = firecrawl.NewClient(cfg.APIKey,
			firecrawl.WithBaseURL(cfg.APIURL),
			firecrawl.WithPrompt(cfg.Prompt),
			firecrawl.WithTimeout(cfg.Poll.RequestTimeout),
			firecrawl.WithRateLimit(cfg.RateLimit.OutboundRPS, cfg.RateLimit.Burst),
			firecrawl.WithLogger(logger),
		)
	}
	logger.Debug("configured",
		"api_url", cfg.APIURL,
		"api_key", firecrawl.RedactKey(cfg.APIKey),
		"poll_interval", cfg.Poll.Interval,
		"poll_timeout", cfg.Poll.Timeout,
	)

	svc := domain.NewExtractionService(pbslog.NewLoggingExtractor(extractor, logger))

	deps.Config = cfg
	deps.Logger = logger
	deps.Service = svc
	deps.Poller = poller.New(svc,
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithMaxAttempts(cfg.Poll.MaxAttempts),
		poller.WithTimeout(cfg.Poll.Timeout),
		poller.WithLogger(logger),
	)

	return kongCtx.Run(deps)
}
