package setup

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/knowledgebase"
)

// CLI provides the `setup` subcommands of the MCP server binary.
type CLI struct {
	kb         domain.KnowledgeBaseConfig
	configPath string
	out        io.Writer
}

// NewCLI creates a setup CLI. kb supplies the SQLite path used by seed and
// by claude-desktop --sqlite.
func NewCLI(kb domain.KnowledgeBaseConfig, out io.Writer) *CLI {
	return &CLI{kb: kb, out: out}
}

// WithClaudeConfigPath overrides the detected Claude Desktop config location.
func (c *CLI) WithClaudeConfigPath(path string) *CLI {
	c.configPath = path
	return c
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.showHelp()
		return nil
	}

	switch args[0] {
	case "claude-desktop":
		return c.registerClaudeDesktop(ctx, args[1:])
	case "seed":
		return c.seed(ctx)
	case "status":
		return c.showStatus()
	case "help", "--help", "-h":
		c.showHelp()
		return nil
	default:
		c.showHelp()
		return fmt.Errorf("unknown setup command %q", args[0])
	}
}

func (c *CLI) showHelp() {
	fmt.Fprint(c.out, `
Oncology Therapy MCP Server Setup

Usage:
  mcp-server setup <command> [options]

Commands:
  claude-desktop  Register this server with Claude Desktop
                  --binary PATH   server binary (default: this executable)
                  --sqlite        serve the knowledge base from a local SQLite file
  seed            Create or top up the SQLite knowledge base from the built-in data
  status          Show the Claude Desktop registration and knowledge base state
`)
}

func (c *CLI) claudeConfigPath() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return ClaudeDesktopConfigPath()
}

// registerClaudeDesktop configures Claude Desktop integration.
func (c *CLI) registerClaudeDesktop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claude-desktop", flag.ContinueOnError)
	fs.SetOutput(c.out)
	binary := fs.String("binary", "", "server binary path")
	useSQLite := fs.Bool("sqlite", false, "serve the knowledge base from SQLite")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := Options{BinaryPath: *binary}
	if opts.BinaryPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve server binary: %w", err)
		}
		opts.BinaryPath = execPath
	}
	if *useSQLite {
		if err := c.seed(ctx); err != nil {
			return err
		}
		opts.SQLitePath = c.kb.SQLitePath
	}

	configPath, err := c.claudeConfigPath()
	if err != nil {
		return err
	}
	if err := Register(configPath, opts); err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %s in %s\n", ServerKey, configPath)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.SQLitePath != "" {
		fmt.Fprintf(c.out, "Knowledge base: %s\n", opts.SQLitePath)
	}
	fmt.Fprintln(c.out, "Restart Claude Desktop to load the new configuration.")
	return nil
}

// seed writes the built-in knowledge bases into the SQLite file.
func (c *CLI) seed(ctx context.Context) error {
	if c.kb.SQLitePath == "" {
		return errors.New("knowledge_base.sqlite_path is not set")
	}

	source, err := knowledgebase.OpenSQLiteSource(c.kb.SQLitePath)
	if err != nil {
		return err
	}
	defer source.Close()

	seeded, err := knowledgebase.Seed(ctx, source, knowledgebase.NewEmbeddedSource())
	if err != nil {
		return err
	}

	if len(seeded) == 0 {
		fmt.Fprintf(c.out, "Knowledge base %s is already up to date\n", c.kb.SQLitePath)
		return nil
	}
	names := make([]string, 0, len(seeded))
	for _, cancerType := range seeded {
		names = append(names, string(cancerType))
	}
	fmt.Fprintf(c.out, "Seeded %s into %s\n", strings.Join(names, ", "), c.kb.SQLitePath)
	return nil
}

// showStatus displays the current setup status.
func (c *CLI) showStatus() error {
	configPath, err := c.claudeConfigPath()
	if err != nil {
		return err
	}
	status, err := GetStatus(configPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Claude Desktop config: %s\n", status.ConfigPath)
	if status.Registered {
		fmt.Fprintf(c.out, "Registered: yes (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "Registered: no")
	}
	if status.SQLitePath != "" {
		fmt.Fprintf(c.out, "Knowledge base: %s\n", status.SQLitePath)
	} else {
		fmt.Fprintln(c.out, "Knowledge base: embedded")
	}

	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	return nil
}
