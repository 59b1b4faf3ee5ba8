package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alkime/ebooks/internal/content"
	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/export"
	"github.com/alkime/ebooks/internal/keyring"
	"github.com/alkime/ebooks/internal/logger"
	"github.com/alkime/ebooks/internal/tui"
	"github.com/alkime/ebooks/internal/workdir"
	"github.com/alkime/ebooks/internal/workflow"
	"github.com/alkime/ebooks/pkg/collections"
)

// CLI defines the ebook command structure.
type CLI struct {
	// Default TUI command (runs when no subcommand given)
	TUI TUICmd `cmd:"" default:"withargs" help:"Launch terminal UI to write an ebook"`

	// Subcommands
	Generate GenerateCmd `cmd:"" help:"Write an ebook without the terminal UI"`
	Config   ConfigCmd   `cmd:"" help:"Manage configuration"`
}

// ProviderFlags are the credentials and model overrides shared by commands
// that call the providers.
type ProviderFlags struct {
	OpenAIAPIKey    string `flag:"" env:"OPENAI_API_KEY" help:"OpenAI API key for cover images"`
	AnthropicAPIKey string `flag:"" env:"ANTHROPIC_API_KEY" help:"Anthropic API key for ebook text"`
	TextModel       string `flag:"" env:"TEXT_MODEL" help:"Anthropic model override"`
	ImageModel      string `flag:"" env:"IMAGE_MODEL" help:"OpenAI image model override"`
}

// provider resolves API keys, environment variables first with a fallback
// to the keychain, and builds the content provider.
func (p *ProviderFlags) provider() (*content.Provider, error) {
	p.OpenAIAPIKey = keyring.Resolve(keyring.OpenAI, p.OpenAIAPIKey)
	p.AnthropicAPIKey = keyring.Resolve(keyring.Anthropic, p.AnthropicAPIKey)

	var missing []string
	if p.OpenAIAPIKey == "" {
		missing = append(missing, "openai")
	}

	if p.AnthropicAPIKey == "" {
		missing = append(missing, "anthropic")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing API keys: %s. Set via environment variables or run 'ebook config set-key'",
			strings.Join(missing, ", "))
	}

	return content.NewProvider(
		content.NewWriter(p.AnthropicAPIKey, content.WithTextModel(p.TextModel)),
		content.NewIllustrator(p.OpenAIAPIKey, content.WithImageModel(p.ImageModel)),
	), nil
}

// TUICmd is the default command that runs the TUI.
type TUICmd struct {
	ProviderFlags `embed:""`

	Out     string `flag:"" optional:"" help:"Export directory (default: ~/Documents/Ebooks)"`
	LogFile string `flag:"" optional:"" help:"Write logs to this file while the UI is open"`
}

// Run executes the TUI command.
func (c *TUICmd) Run() error {
	provider, err := c.provider()
	if err != nil {
		return err
	}

	dir, err := workdir.Resolve(c.Out)
	if err != nil {
		return fmt.Errorf("failed to determine export directory: %w", err)
	}

	// the UI owns the terminal, so logs go to a file or nowhere
	var logOut io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	machine := workflow.New(provider, workflow.WithLogger(logger.NewText(logOut, slog.LevelDebug)))
	defer machine.Close()

	p := tea.NewProgram(tui.New(ctx, machine, dir), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to start TUI: %w", err)
	}

	fmt.Println("\nfinished. bye!")

	return nil
}

// GenerateCmd writes an ebook non-interactively and exports it.
type GenerateCmd struct {
	ProviderFlags `embed:""`

	Topic    string   `arg:"" required:"" help:"What the ebook is about"`
	Chapters int      `flag:"" default:"4" help:"Number of chapters (3-7)"`
	Style    string   `flag:"" default:"modern" enum:"classic,modern,academic" help:"Presentation style"`
	Continue int      `flag:"" default:"0" help:"Extra chapters to append after generation"`
	Format   []string `flag:"" default:"md" sep:"," help:"Export formats (md, txt, pdf)"`
	Out      string   `flag:"" optional:"" help:"Export directory (default: ~/Documents/Ebooks)"`
}

// Run executes the generate command.
func (c *GenerateCmd) Run() error {
	formats, err := parseFormats(c.Format)
	if err != nil {
		return err
	}

	if c.Continue < 0 {
		return errors.New("--continue cannot be negative")
	}

	req, err := ebook.NewGenerationRequest(c.Topic, c.Chapters, ebook.Style(c.Style))
	if err != nil {
		return err
	}

	provider, err := c.provider()
	if err != nil {
		return err
	}

	dir, err := workdir.Resolve(c.Out)
	if err != nil {
		return fmt.Errorf("failed to determine export directory: %w", err)
	}

	if err := workdir.Prep(dir); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	machine := workflow.New(provider, workflow.WithLogger(slog.Default()))
	defer machine.Close()

	paths, err := generate(ctx, machine, req, c.Continue, dir, formats)
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Printf("Saved: %s\n", path)
	}

	return nil
}

// generate runs the workflow to completion, appends extra chapters and
// exports the result in every format.
func generate(
	ctx context.Context,
	machine *workflow.Machine,
	req ebook.GenerationRequest,
	extra int,
	dir string,
	formats []export.Format,
) ([]string, error) {
	if err := machine.Submit(ctx, req); err != nil {
		return nil, errors.New(ebook.UserMessage(err))
	}

	for i := range extra {
		if err := machine.Continue(ctx); err != nil {
			return nil, fmt.Errorf("failed to add chapter %d of %d: %s", i+1, extra, ebook.UserMessage(err))
		}
	}

	snap := machine.Snapshot()
	if snap.Ebook == nil {
		return nil, errors.New("no ebook was produced")
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		path, err := export.Save(dir, *snap.Ebook, snap.Style, format)
		if err != nil {
			return paths, fmt.Errorf("failed to export %s: %w", format, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// parseFormats validates and de-duplicates export format names. Blank
// entries, as left by a trailing comma, are skipped.
func parseFormats(names []string) ([]export.Format, error) {
	names = collections.Filter(names, func(name string) bool {
		return strings.TrimSpace(name) != ""
	})

	formats := make([]export.Format, 0, len(names))
	seen := make(map[export.Format]bool, len(names))

	for _, name := range names {
		format, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if seen[format] {
			continue
		}
		seen[format] = true
		formats = append(formats, format)
	}

	if len(formats) == 0 {
		return nil, errors.New("at least one export format is required")
	}

	return formats, nil
}

// ConfigCmd groups configuration-related subcommands.
type ConfigCmd struct {
	SetKey   SetKeyCmd   `cmd:"" help:"Store an API key in system keychain"`
	ListKeys ListKeysCmd `cmd:"" name:"list-keys" help:"Show which API keys are configured"`
}

// SetKeyCmd stores an API key in the system keychain.
type SetKeyCmd struct {
	Service string `arg:"" enum:"openai,anthropic" help:"Service name (openai or anthropic)"`
	Secret  string `arg:"" help:"API key value"`
}

// Run executes the set-key command.
func (c *SetKeyCmd) Run() error {
	if strings.TrimSpace(c.Secret) == "" {
		return errors.New("API key cannot be empty")
	}

	apiKey, err := keyring.APIKeyFromServiceName(c.Service)
	if err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}

	if err := keyring.Set(apiKey, c.Secret); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("%s API key stored in keychain\n", c.Service)

	return nil
}

// ListKeysCmd shows which API keys are configured.
type ListKeysCmd struct{}

// Run executes the list-keys command.
//
//nolint:unparam // error return required by Kong interface
func (c *ListKeysCmd) Run() error {
	allSet := true

	for _, apiKey := range keyring.AllAPIKeys() {
		if keyring.IsSet(apiKey) {
			fmt.Printf("%s: configured\n", apiKey.DisplayName())
		} else {
			fmt.Printf("%s: not set\n", apiKey.DisplayName())
			allSet = false
		}
	}

	if !allSet {
		fmt.Println("\nRun 'ebook config set-key <service> <key>' to configure.")
	}

	return nil
}

func main() {
	// Set up text-based logger for CLI output
	slog.SetDefault(logger.NewText(os.Stderr, logger.ParseLevel(os.Getenv("LOG_LEVEL"))))

	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli,
		kong.Name("ebook"),
		kong.Description("Write short illustrated ebooks with AI."),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
