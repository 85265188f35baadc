// Package commands implements the wikicord command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/euforicio/wikicord/internal/buildinfo"
	"github.com/euforicio/wikicord/internal/config"
)

// app carries the resolved configuration shared by every subcommand.
type app struct {
	cfg        config.Config
	configPath string
	envFile    string
	noColor    bool
	logger     *slog.Logger
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand builds the wikicord command tree writing to the given streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		cfg:        config.Default(),
		configPath: config.DefaultFile,
		envFile:    ".env",
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}

	root := &cobra.Command{
		Use:   "wikicord",
		Short: "Cite Discord conversations in markdown notes",
		Long: `wikicord works with markdown notes that quote Discord conversations.

Notes embed threads in ` + "```discord" + ` fences and cite messages inline with
{{discord-cite:<id>}} markers backed by a [!discord-cite] callout.

  - clip: fetch messages by link and print a citation callout
  - render: render a single note as html, markdown, txt, or pdf
  - refs: list notes citing a Discord message or citation id
  - canvas validate: check Obsidian canvas files for structural problems

Static sites are built with wikicord-export.`,
		Version:           buildinfo.Summary(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfg.RootDir, "root", "r", a.cfg.RootDir, "root directory containing markdown notes")
	flags.BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "enable verbose logging")
	flags.StringVar(&a.configPath, "config", a.configPath, "optional YAML config file")
	flags.StringVar(&a.envFile, "env-file", a.envFile, "optional dotenv file loaded before reading WIKICORD_* variables")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored log output (also NO_COLOR)")

	root.AddCommand(newClipCommand(a), newRenderCommand(a), newRefsCommand(a), newCanvasCommand(a))
	return root
}

// Execute runs the command tree against the process streams.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// load layers defaults, the YAML file, the environment, and explicit flags,
// then installs the logger.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	a.cfg = config.Default()
	if err := config.LoadFile(a.configPath, &a.cfg); err != nil {
		return err
	}
	config.ApplyEnvOverrides(&a.cfg)
	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	if err := config.Finalize(&a.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := charmlog.WarnLevel
	if a.cfg.Verbose {
		level = charmlog.DebugLevel
	}
	handler := charmlog.NewWithOptions(a.stderr, charmlog.Options{
		Level:  level,
		Prefix: "wikicord",
	})
	handler.SetStyles(logStyles())
	if a.noColor || os.Getenv("NO_COLOR") != "" {
		handler.SetColorProfile(termenv.Ascii)
	}
	a.logger = slog.New(handler)
	a.logger.Debug("configuration loaded",
		slog.String("version", buildinfo.Summary()),
		slog.String("root", a.cfg.RootDir))
	return nil
}

// logStyles tints level labels with the Discord palette.
func logStyles() *charmlog.Styles {
	styles := charmlog.DefaultStyles()
	label := func(text, color string) lipgloss.Style {
		return lipgloss.NewStyle().SetString(text).Bold(true).MaxWidth(4).Foreground(lipgloss.Color(color))
	}
	styles.Levels[charmlog.DebugLevel] = label("DEBU", "#949ba4")
	styles.Levels[charmlog.InfoLevel] = label("INFO", "#5865f2")
	styles.Levels[charmlog.WarnLevel] = label("WARN", "#f0b232")
	styles.Levels[charmlog.ErrorLevel] = label("ERRO", "#f23f43")
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#f23f43"))
	return styles
}
