package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/gsdump/internal/config"
)

// configCmd represents the config command group
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after merging defaults, the config file and
GSDUMP_* environment variables. Key material is redacted.

Examples:
  gsdump config show
  gsdump config show -c gsdump.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := showConfig(cfg, cmd.OutOrStdout()); err != nil {
			exitWithError("failed to print config", err)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func showConfig(cfg *config.Config, w io.Writer) error {
	shown := *cfg
	if shown.SRTP.Key != "" {
		shown.SRTP.Key = "<redacted>"
	}
	if shown.SRTP.Salt != "" {
		shown.SRTP.Salt = "<redacted>"
	}
	data, err := yaml.Marshal(map[string]any{"gsdump": shown})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
