package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"ogwallet.toml", ".ogwallet.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server        string `toml:"server"`
	ClaimantID    string `toml:"claimant_id,omitempty"`
	ClaimantLabel string `toml:"claimant_label,omitempty"`
	Origin        string `toml:"origin,omitempty"`
}

// ServerConfig is the global server configuration (stored in ~/.ogwallet/config.yaml)
type ServerConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var claimantID string
	var claimantLabel string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an ogwallet.toml configuration file in the current directory.

The file stores the server URL and the default claimant used by
'ogwallet verify' when no --claimant flag is given.

EXAMPLES:
  # Create config with default server
  ogwallet config init

  # Create config for a specific server and claimant
  ogwallet config init --server https://og.example.com --claimant 4242 --label alice

  # Overwrite existing config
  ogwallet config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), serverURL, claimantID, claimantLabel, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&claimantID, "claimant", "", "default claimant ID")
	cmd.Flags().StringVar(&claimantLabel, "label", "", "default claimant display label")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (ogwallet.toml), the global config from
~/.ogwallet/config.yaml and the effective values.

EXAMPLES:
  ogwallet config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(out io.Writer, serverURL, claimantID, claimantLabel string, force bool) error {
	if !force {
		for _, name := range projectConfigFiles {
			if _, err := os.Stat(name); err == nil {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
			}
		}
	}

	var b strings.Builder
	b.WriteString("# ogwallet project configuration\n\n")
	fmt.Fprintf(&b, "server = %q\n\n", serverURL)
	b.WriteString("# Default claimant for 'ogwallet verify'\n")
	fmt.Fprintf(&b, "claimant_id = %q\n", claimantID)
	fmt.Fprintf(&b, "claimant_label = %q\n\n", claimantLabel)
	b.WriteString("# Free-form context recorded with each request (channel, guild, ...)\n")
	b.WriteString("# origin = \"cli\"\n")

	path := projectConfigFiles[0]
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(out, "Wrote %s (server %s", path, serverURL)
	if claimantID != "" {
		fmt.Fprintf(out, ", claimant %s", claimantName(claimantID, claimantLabel))
	}
	fmt.Fprintln(out, ")")
	fmt.Fprintln(out, "Store an admin key with 'ogwallet auth login', then run 'ogwallet verify <address>'.")
	return nil
}

func runConfigShow(out io.Writer) error {
	section := func(title string) { fmt.Fprintf(out, "\n%s\n", title) }
	field := func(name, value string) {
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(out, "  %-16s %s\n", name, value)
	}

	fmt.Fprintln(out, "Sources, highest precedence first: flags, environment, project, global, credentials.")

	section("Environment")
	field("OGWALLET_SERVER", os.Getenv("OGWALLET_SERVER"))
	if v := os.Getenv("OGWALLET_API_KEY"); v != "" {
		field("OGWALLET_API_KEY", maskAPIKey(v))
	} else {
		field("OGWALLET_API_KEY", "")
	}

	project, path, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		section("Project config")
		fmt.Fprintln(out, "  (none)")
	case err != nil:
		section("Project config (" + path + ")")
		fmt.Fprintf(out, "  error: %v\n", err)
	default:
		section("Project config (" + path + ")")
		field("server", project.Server)
		field("claimant_id", project.ClaimantID)
		field("claimant_label", project.ClaimantLabel)
		field("origin", project.Origin)
	}

	section("Global config (" + globalConfigPath() + ")")
	if global := loadGlobalConfig(); global != nil {
		field("server", global.Server)
	} else {
		fmt.Fprintln(out, "  (none)")
	}

	section("Credentials (" + credentialsFilePath() + ")")
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err) || (err == nil && len(creds.Servers) == 0):
		fmt.Fprintln(out, "  (none)")
	case err != nil:
		fmt.Fprintf(out, "  error: %v\n", err)
	default:
		servers := make([]string, 0, len(creds.Servers))
		for s := range creds.Servers {
			servers = append(servers, s)
		}
		sort.Strings(servers)
		for _, s := range servers {
			field(s, maskAPIKey(creds.Servers[s].APIKey))
		}
	}

	section("Effective")
	field("server", getServer())
	if key := getAPIKey(); key != "" {
		field("api key", maskAPIKey(key))
	} else {
		field("api key", "")
	}
	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent returns nil for a missing file and warns on parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}

func globalConfigPath() string {
	return filepath.Join(credentialsDir(), "config.yaml")
}

func loadGlobalConfig() *ServerConfig {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil
	}
	var config ServerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil
	}
	return &config
}
