package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/cwygoda/pagebrief/internal/config"
	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/cwygoda/pagebrief/internal/poller"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx     context.Context
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
	Logger  *slog.Logger
	Service *domain.ExtractionService
	Poller  *poller.Poller
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config   string `short:"c" type:"path" help:"Config file (default: $XDG_CONFIG_HOME/pagebrief/config.toml)"`
	APIURL   string `name:"api-url" help:"Extraction API root URL"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP API"`
	Extract ExtractCmd `cmd:"" help:"Extract a page and wait for the result"`
	Submit  SubmitCmd  `cmd:"" help:"Submit a page for extraction and print the job ID"`
	Status  StatusCmd  `cmd:"" help:"Show the status of an extraction job"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Port int `short:"p" help:"HTTP server port (overrides config)"`
}

// ExtractCmd is the "extract" subcommand.
type ExtractCmd struct {
	URL string `arg:"" help:"Page URL"`
}

// SubmitCmd is the "submit" subcommand.
type SubmitCmd struct {
	URL string `arg:"" help:"Page URL"`
}

// StatusCmd is the "status" subcommand.
type StatusCmd struct {
	ID   string `arg:"" help:"Job ID returned by submit"`
	Wait bool   `short:"w" help:"Block until the job finishes"`
}

// jobOutput is what submit and status print.
type jobOutput struct {
	ID     string                `json:"id,omitempty"`
	Status string                `json:"status"`
	Data   *domain.ExtractedData `json:"data,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
