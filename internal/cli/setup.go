package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/gitsrc"
	"github.com/codewandler/relay/internal/notify"
)

var (
	setupHeader  = color.New(color.FgCyan, color.Bold)
	setupSuccess = color.New(color.FgGreen)
	setupError   = color.New(color.FgRed)
	setupDim     = color.New(color.FgHiBlack)
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure backends interactively",
	Long: `Interactive setup wizard for relay backends.

Walks through configuration for the git source, image registry, cluster
target, and the optional Slack and history backends. Only prompts for
backends that aren't already configured.

Examples:
  relay setup`,
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)

		// Load full config (including env vars) to check what's working
		fullCfg, err := config.Load()
		if err != nil {
			setupError.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		// Load file-only config for modifications (so we don't lose env-only values)
		cfg, err := config.LoadFromFile()
		if err != nil {
			setupError.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}

		setupHeader.Println("relay setup")
		fmt.Println()

		configured := 0
		skipped := 0

		// Git source
		if fullCfg.RequireGit() == nil {
			setupSuccess.Print("  Git         ")
			fmt.Println("✓ Already configured")
			skipped++
		} else if setupGit(cfg, reader) {
			configured++
		}

		// Registry
		if fullCfg.RequireRegistry() == nil {
			setupSuccess.Print("  Registry    ")
			fmt.Println("✓ Already configured")
			skipped++
		} else if setupRegistry(cfg, reader) {
			configured++
		}

		// Cluster
		if fullCfg.Cluster.Namespace != "" {
			setupSuccess.Print("  Cluster     ")
			fmt.Println("✓ Already configured")
			skipped++
		} else if setupCluster(cfg, reader) {
			configured++
		}

		// Slack
		if fullCfg.SlackEnabled() {
			setupSuccess.Print("  Slack       ")
			fmt.Println("✓ Already configured")
			skipped++
		} else if setupSlackNotify(cfg, reader) {
			configured++
		}

		// History
		if fullCfg.HistoryEnabled() {
			setupSuccess.Print("  History     ")
			fmt.Println("✓ Already configured")
			skipped++
		} else if setupHistory(cfg, reader) {
			configured++
		}

		fmt.Println()
		if configured > 0 {
			setupSuccess.Printf("Setup complete! Configured %d backend(s).\n", configured)
		} else if skipped > 0 {
			setupSuccess.Println("All backends already configured!")
		} else {
			setupDim.Println("No backends configured.")
		}
		setupDim.Println("Run 'relay doctor' to verify connectivity.")
	},
}

// setupGit prompts for the source remote
func setupGit(cfg *config.Config, reader *bufio.Reader) bool {
	fmt.Println()
	setupHeader.Println("  Git")

	if !promptYesNo(reader, "  Configure the git source?", true) {
		setupDim.Println("  Skipped")
		return false
	}

	cfg.Git.RemoteURL = promptString(reader, "  Remote URL (git@... or https://...)", cfg.Git.RemoteURL)
	if cfg.Git.RemoteURL == "" {
		setupError.Println("  ✗ Remote URL required")
		return false
	}

	repo, err := gitsrc.ParseRemoteURL(cfg.Git.RemoteURL)
	if err != nil {
		setupError.Printf("  ✗ Invalid remote: %v\n", err)
		return false
	}

	cfg.Git.WorkDir = promptString(reader, "  Work dir (empty for temp dirs)", cfg.Git.WorkDir)

	if err := config.Save(cfg); err != nil {
		setupError.Printf("  ✗ Failed to save config: %v\n", err)
		return false
	}

	setupSuccess.Printf("  ✓ %s/%s\n", repo.Owner, repo.Name)
	return true
}

// setupRegistry prompts for registry credentials
func setupRegistry(cfg *config.Config, reader *bufio.Reader) bool {
	fmt.Println()
	setupHeader.Println("  Registry")

	if !promptYesNo(reader, "  Configure the image registry?", true) {
		setupDim.Println("  Skipped")
		return false
	}

	defaultServer := cfg.Registry.Server
	if defaultServer == "" {
		defaultServer = "docker.io"
	}
	cfg.Registry.Server = promptString(reader, fmt.Sprintf("  Registry server [%s]", defaultServer), defaultServer)
	cfg.Registry.Username = promptString(reader, "  Username (empty for anonymous)", cfg.Registry.Username)

	if cfg.Registry.Username != "" {
		password, ok := promptSecret("  Password")
		if !ok {
			return false
		}
		if password != "" {
			cfg.Registry.Password = password
		}
	}

	if err := config.Save(cfg); err != nil {
		setupError.Printf("  ✗ Failed to save config: %v\n", err)
		return false
	}

	setupSuccess.Printf("  ✓ %s\n", cfg.Registry.Server)
	return true
}

// setupCluster prompts for the deployment target
func setupCluster(cfg *config.Config, reader *bufio.Reader) bool {
	fmt.Println()
	setupHeader.Println("  Cluster")

	if !promptYesNo(reader, "  Configure the cluster target?", true) {
		setupDim.Println("  Skipped")
		return false
	}

	setupDim.Println("  Uses your current kubeconfig context for cluster access.")
	defaultNS := cfg.Cluster.Namespace
	if defaultNS == "" {
		defaultNS = "default"
	}
	cfg.Cluster.Namespace = promptString(reader, fmt.Sprintf("  Namespace [%s]", defaultNS), defaultNS)

	if err := config.Save(cfg); err != nil {
		setupError.Printf("  ✗ Failed to save config: %v\n", err)
		return false
	}

	setupSuccess.Printf("  ✓ namespace %s\n", cfg.Cluster.Namespace)
	return true
}

// setupSlackNotify prompts for Slack notification config
func setupSlackNotify(cfg *config.Config, reader *bufio.Reader) bool {
	fmt.Println()
	setupHeader.Println("  Slack")

	if !promptYesNo(reader, "  Configure Slack notifications?", false) {
		setupDim.Println("  Skipped")
		return false
	}

	setupDim.Println("  Create a Slack app at: https://api.slack.com/apps")
	setupDim.Println("  Required bot scope: chat:write")

	cfg.Slack.BotToken = promptString(reader, "  Bot Token (xoxb-...)", cfg.Slack.BotToken)
	cfg.Slack.Channel = promptString(reader, "  Channel (#deploys)", cfg.Slack.Channel)

	if cfg.Slack.BotToken == "" || cfg.Slack.Channel == "" {
		setupError.Println("  ✗ Bot token and channel required")
		return false
	}

	// Test
	client, err := notify.NewClient(cfg.Slack.BotToken, cfg.Slack.Channel)
	if err != nil {
		setupError.Printf("  ✗ Failed to create client: %v\n", err)
		return false
	}

	team, err := client.Check()
	if err != nil {
		setupError.Printf("  ✗ Authentication failed: %v\n", err)
		return false
	}

	if err := config.Save(cfg); err != nil {
		setupError.Printf("  ✗ Failed to save config: %v\n", err)
		return false
	}

	setupSuccess.Printf("  ✓ Connected to %s\n", team)
	return true
}

// setupHistory prompts for the run history database
func setupHistory(cfg *config.Config, reader *bufio.Reader) bool {
	fmt.Println()
	setupHeader.Println("  History")

	if !promptYesNo(reader, "  Configure the run history database?", false) {
		setupDim.Println("  Skipped")
		return false
	}

	cfg.History.Host = promptString(reader, "  MySQL host", cfg.History.Host)
	if cfg.History.Host == "" {
		setupError.Println("  ✗ Host required")
		return false
	}

	portStr := promptString(reader, "  Port [3306]", "3306")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		setupError.Printf("  ✗ Invalid port: %v\n", err)
		return false
	}
	cfg.History.Port = port

	cfg.History.Database = promptString(reader, "  Database", cfg.History.Database)
	cfg.History.Username = promptString(reader, "  Username", cfg.History.Username)

	password, ok := promptSecret("  Password")
	if !ok {
		return false
	}
	if password != "" {
		cfg.History.Password = password
	}

	if cfg.History.Database == "" {
		setupError.Println("  ✗ Database required")
		return false
	}

	if err := config.Save(cfg); err != nil {
		setupError.Printf("  ✗ Failed to save config: %v\n", err)
		return false
	}

	setupSuccess.Printf("  ✓ %s:%d/%s\n", cfg.History.Host, cfg.History.Port, cfg.History.Database)
	return true
}

// promptYesNo asks a yes/no question
func promptYesNo(reader *bufio.Reader, prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}

	fmt.Printf("%s %s: ", prompt, suffix)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultYes
	}
	return input == "y" || input == "yes"
}

// promptString asks for a string input
func promptString(reader *bufio.Reader, prompt, defaultValue string) string {
	fmt.Printf("%s: ", prompt)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// promptSecret reads a value without echoing it
func promptSecret(prompt string) (string, bool) {
	fmt.Printf("%s: ", prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		setupError.Printf("  ✗ Failed to read input: %v\n", err)
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}
