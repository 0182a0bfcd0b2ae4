// Package cmd contains the CLI wiring for the goftpd application.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"goftpd/server"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	kposflag "github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "goftpd",
	Short: "goftpd FTP server",
	Long:  "goftpd is a sandboxed FTP server for plain-TCP clients.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Create koanf instance
		k := koanf.New(".")

		// Load config file first (lowest priority, except for built-in defaults)
		cfgPath := cmd.Flag("config").Value.String()
		if cfgPath != "" {
			if err := k.Load(kfile.Provider(cfgPath), kyaml.Parser()); err != nil {
				return fmt.Errorf("failed to load config file %s: %w", cfgPath, err)
			}
		} else {
			// Search for config files in standard locations (in order of precedence)
			searchPaths := getConfigSearchPaths()
			extensions := []string{"yaml", "yml", "json"}

			configFound := false
			for _, dir := range searchPaths {
				for _, ext := range extensions {
					configPath := fmt.Sprintf("%s/goftpd.%s", dir, ext)
					if _, err := os.Stat(configPath); err == nil {
						if err := k.Load(kfile.Provider(configPath), kyaml.Parser()); err != nil {
							return fmt.Errorf("failed to load config file %s: %w", configPath, err)
						}
						configFound = true
						break
					}
				}
				if configFound {
					break
				}
			}
		}

		// Load environment variables (prefix GOFTPD) - medium priority,
		// overrides the config file. GOFTPD_LOG_LEVEL maps to log-level.
		if err := k.Load(kenv.Provider("GOFTPD_", ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GOFTPD_")), "_", "-")
		}), nil); err != nil {
			return fmt.Errorf("failed to load env: %w", err)
		}

		// Load command-line flags last (highest priority) - overrides
		// everything. Config keys match the flag names.
		if err := k.Load(kposflag.Provider(cmd.PersistentFlags(), ".", k), nil); err != nil {
			return fmt.Errorf("failed to load flags: %w", err)
		}

		// Unmarshal into typed config
		var cfg server.Config
		if err := k.Unmarshal("", &cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		// Fold repeatable --user flags into the credential map
		users, err := cmd.PersistentFlags().GetStringArray("user")
		if err != nil {
			return fmt.Errorf("failed to read user flags: %w", err)
		}
		for _, entry := range users {
			name, password, ok := strings.Cut(entry, ":")
			if !ok || name == "" {
				return fmt.Errorf("invalid --user %q, expected name:password", entry)
			}
			if cfg.Users == nil {
				cfg.Users = make(map[string]string)
			}
			cfg.Users[name] = password
		}

		srv, err := server.NewServer(&cfg)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return srv.Start()
	},
}

// getConfigSearchPaths returns the directories to search for config files, in order of precedence.
// The order is: current directory, $HOME/.goftpd/, /etc/goftpd/
func getConfigSearchPaths() []string {
	paths := []string{"."}

	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, home+"/.goftpd")
	}

	paths = append(paths, "/etc/goftpd")

	return paths
}

// RegisterFlags registers persistent flags for the root command. This replaces an init() function
// to satisfy the linter rule against init usage and allows callers to control ordering.
func RegisterFlags() {
	pf := rootCmd.PersistentFlags()
	pf.IntP("port", "p", server.DefaultPort, "Control port to listen on")
	pf.StringP("root", "r", "", "Sandbox root directory to serve")
	pf.StringP("config", "c", "", "Configuration file path")
	pf.String("listen-address", server.DefaultListenAddress, "IP address to bind the control listener to")
	pf.String("banner-name", server.DefaultBannerName, "Name shown in the 220 welcome banner")
	pf.Int("pasv-port-min", 0, "Lowest passive-mode data port (0 = ephemeral)")
	pf.Int("pasv-port-max", 0, "Highest passive-mode data port (0 = ephemeral)")
	pf.Int("max-sessions", 0, "Maximum concurrent sessions (0 = unlimited)")
	pf.Duration("idle-timeout", server.DefaultIdleTimeout, "Control-channel read/write timeout")
	pf.Duration("data-timeout", server.DefaultDataTimeout, "Data-channel establishment timeout")
	pf.StringArray("user", nil, "Credential in name:password form (repeatable)")

	// Logging
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-output", "stdout", "Log output (stdout, stderr, syslog, or a file path)")
}

// Execute sets the version and runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}
