package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/ntunames/internal/config"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"ntunames.toml", ".ntunames.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server       string `toml:"server,omitempty"`
	RPCURL       string `toml:"rpc_url,omitempty"`
	Contract     string `toml:"contract,omitempty"`
	ChainID      int64  `toml:"chain_id,omitempty"`
	Keystore     string `toml:"keystore,omitempty"`
	Journal      string `toml:"journal,omitempty"`
	FailedPolicy string `toml:"failed_policy,omitempty"`
	TickSeconds  int64  `toml:"tick_seconds,omitempty"`
}

// GlobalConfig is the per-user configuration (stored in ~/.ntunames/config.yaml)
type GlobalConfig struct {
	Server   string `yaml:"server,omitempty"`
	RPCURL   string `yaml:"rpc_url,omitempty"`
	Contract string `yaml:"contract,omitempty"`
	ChainID  int64  `yaml:"chain_id,omitempty"`
	Keystore string `yaml:"keystore,omitempty"`
	Journal  string `yaml:"journal,omitempty"`
	// APIKey unlocks the bid journal of a server. It is never read from the
	// project file.
	APIKey string `yaml:"api_key,omitempty"`
}

// Settings is the effective configuration of one invocation.
type Settings struct {
	Server       string
	RPCURL       string
	Contract     string
	ChainID      int64
	Keystore     string
	Journal      string
	FailedPolicy string
	APIKey       string
	// Tick is the countdown interval of status --watch.
	Tick time.Duration
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
	var rpc string
	var keystore string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an ntunames.toml configuration file in the current directory.

EXAMPLES:
  # Create config for the public Sepolia registrar
  ntunames config init

  # Use your own node and keystore
  ntunames config init --rpc http://localhost:8545 --keystore ./keystore/UTC--...

  # Overwrite existing config
  ntunames config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), rpc, keystore, force)
		},
	}

	cmd.Flags().StringVar(&rpc, "rpc", config.DefaultRPCURL, "JSON-RPC node URL")
	cmd.Flags().StringVar(&keystore, "keystore", "", "keystore file of the signing account")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the configuration sources and the effective settings.

Shows the local project config (ntunames.toml) and the global config from ~/.ntunames/config.yaml.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(w io.Writer, rpc, keystore string, force bool) error {
	configPath := projectConfigFiles[0]

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	content := fmt.Sprintf(`# ntunames project configuration

rpc_url = %q
contract = %q
chain_id = %d

# Encrypted keystore of the bidding account. The password is read from
# KEYSTORE_PASSWORD or prompted for.
keystore = %q

# Local bid journal; it keeps the amount and secret of every commitment.
# journal = "./bids.db"

# Read through an ntunames server instead of the node.
# server = "http://localhost:8080"

# How auctions that ended without a bid are treated:
# "ignore-finalized" or "require-unfinalized".
# failed_policy = "ignore-finalized"

# Countdown refresh of 'status --watch', in seconds.
# tick_seconds = 1
`, rpc, config.DefaultContractAddress, config.DefaultChainID, keystore)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Edit %s to set your keystore\n", configPath)
	fmt.Fprintln(w, "  2. Run 'ntunames status <name>.ntu' to look up a domain")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --server, --rpc, --contract, --chain-id, --keystore, --journal, --config")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "2. Environment variables")
	for _, key := range []string{"NTUNAMES_SERVER", "RPC_URL", "CONTRACT_ADDRESS", "CHAIN_ID", "KEYSTORE_PATH", "NTUNAMES_JOURNAL", "AUCTION_FAILED_POLICY", "AUCTION_TICK_SECONDS"} {
		if v := os.Getenv(key); v != "" {
			fmt.Fprintf(w, "   %s=%s\n", key, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", key)
		}
	}
	for _, key := range []string{"KEYSTORE_PASSWORD", "PRIVATE_KEY", "NTUNAMES_API_KEY"} {
		if os.Getenv(key) != "" {
			fmt.Fprintf(w, "   %s=(set)\n", key)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", key)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "3. Local project config (ntunames.toml)")
	project, path, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		fmt.Fprintf(w, "   Loaded from: %s\n", path)
		printField(w, "server", project.Server)
		printField(w, "rpc_url", project.RPCURL)
		printField(w, "contract", project.Contract)
		if project.ChainID != 0 {
			printField(w, "chain_id", strconv.FormatInt(project.ChainID, 10))
		}
		printField(w, "keystore", project.Keystore)
		printField(w, "journal", project.Journal)
		printField(w, "failed_policy", project.FailedPolicy)
		if project.TickSeconds != 0 {
			printField(w, "tick_seconds", strconv.FormatInt(project.TickSeconds, 10))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "4. Global config (%s)\n", globalConfigPath())
	global, err := loadGlobalConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		printField(w, "server", global.Server)
		printField(w, "rpc_url", global.RPCURL)
		printField(w, "contract", global.Contract)
		printField(w, "keystore", global.Keystore)
		printField(w, "journal", global.Journal)
		if global.APIKey != "" {
			printField(w, "api_key", "(set)")
		}
	}
	fmt.Fprintln(w)

	s := loadSettings()
	fmt.Fprintln(w, "Effective configuration:")
	if s.Server != "" {
		fmt.Fprintf(w, "   Server:   %s\n", s.Server)
	}
	fmt.Fprintf(w, "   RPC:      %s\n", s.RPCURL)
	fmt.Fprintf(w, "   Contract: %s\n", s.Contract)
	fmt.Fprintf(w, "   Chain ID: %d\n", s.ChainID)
	if s.Keystore != "" {
		fmt.Fprintf(w, "   Keystore: %s\n", s.Keystore)
	} else {
		fmt.Fprintln(w, "   Keystore: (not set)")
	}
	fmt.Fprintf(w, "   Journal:  %s\n", s.Journal)

	return nil
}

func printField(w io.Writer, name, value string) {
	if value != "" {
		fmt.Fprintf(w, "   %s: %s\n", name, value)
	}
}

// loadSettings resolves every setting from flag, env, project config,
// global config and built-in default, in that order.
func loadSettings() Settings {
	project := loadProjectConfigSilent()
	if project == nil {
		project = &ProjectConfig{}
	}
	global, err := loadGlobalConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load global config: %v\n", err)
		}
		global = &GlobalConfig{}
	}

	return Settings{
		Server:       first(serverURL, os.Getenv("NTUNAMES_SERVER"), project.Server, global.Server),
		RPCURL:       first(rpcURL, os.Getenv("RPC_URL"), project.RPCURL, global.RPCURL, config.DefaultRPCURL),
		Contract:     first(contractAddr, os.Getenv("CONTRACT_ADDRESS"), project.Contract, global.Contract, config.DefaultContractAddress),
		ChainID:      firstInt(chainID, envInt64("CHAIN_ID"), project.ChainID, global.ChainID, config.DefaultChainID),
		Keystore:     first(keystorePath, os.Getenv("KEYSTORE_PATH"), project.Keystore, global.Keystore),
		Journal:      first(journalPath, os.Getenv("NTUNAMES_JOURNAL"), project.Journal, global.Journal, filepath.Join(configDir(), "bids.db")),
		FailedPolicy: first(os.Getenv("AUCTION_FAILED_POLICY"), project.FailedPolicy, config.FailedPolicyIgnoreFinalized),
		APIKey:       first(os.Getenv("NTUNAMES_API_KEY"), global.APIKey),
		Tick:         time.Duration(firstInt(positive(envInt64("AUCTION_TICK_SECONDS")), positive(project.TickSeconds), 1)) * time.Second,
	}
}

func positive(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envInt64(key string) int64 {
	n, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ntunames"
	}
	return filepath.Join(home, ".ntunames")
}

func globalConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil, err
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		cfg, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return cfg, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			cfg, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return cfg, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &cfg, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Parse failures are reported on stderr.
func loadProjectConfigSilent() *ProjectConfig {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return cfg
}
