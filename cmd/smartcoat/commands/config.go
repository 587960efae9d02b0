package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
)

// ConfigCmd manages smartcoat configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage smartcoat configuration",
	Long: `Display and manage smartcoat configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (SMARTCOAT_* prefix)
2. Project config (./smartcoat.toml or ./config.toml, searches up directories)
3. User config (~/.smartcoat/smartcoat.toml or ~/.smartcoat/config.toml)
4. System config (/etc/smartcoat/config.toml)
5. Default values

Examples:
  smartcoat config show                    # Show current configuration
  smartcoat config show --format json     # Show configuration in JSON format
  smartcoat config path                    # Print the user config file path
  smartcoat config set solver.strategy construction
  smartcoat config validate                # Validate current configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current smartcoat configuration from all sources",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if path == "" {
			return errors.New("could not determine home directory")
		}
		fmt.Println(path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the user config file",
	Long: `Write one section.key value to the user config file, preserving
everything else in it.

Examples:
  smartcoat config set solver.strategy local-search
  smartcoat config set solver.workers 4
  smartcoat config set coating.default_changeover_minutes 15
  smartcoat config set server.port 8080`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current smartcoat configuration is valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "configuration validation failed")
		}
		fmt.Println("✓ Configuration is valid")
		return nil
	},
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configPathCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# smartcoat configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# smartcoat configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	// Typed keys get validated before anything is written
	var err error
	switch key {
	case "solver.strategy":
		if _, perr := sequence.ParseStrategy(value); perr != nil {
			return perr
		}
		err = config.UpdateSolverStrategy(value)
	case "solver.workers":
		workers, perr := strconv.Atoi(value)
		if perr != nil {
			return errors.Newf("solver.workers needs an integer, got %q", value)
		}
		err = config.UpdateSolverWorkers(workers)
	case "coating.default_changeover_minutes":
		minutes, perr := strconv.Atoi(value)
		if perr != nil {
			return errors.Newf("coating.default_changeover_minutes needs an integer, got %q", value)
		}
		err = config.UpdateDefaultChangeover(minutes)
	default:
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			return errors.Newf("key must be section.key, got %q", key)
		}
		err = config.UpdateUserSetting(parts[0], parts[1], parseSettingValue(value))
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Set %s = %s in %s\n", key, value, config.GetUserConfigPath())
	return nil
}

// parseSettingValue keeps ints and bools typed in the TOML file instead of
// writing everything as strings
func parseSettingValue(value string) interface{} {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
