// Package commands implements the CLI commands for negotiator.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealbroker/negotiator/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "negotiator",
	Short:   "Drive the negotiation pipeline from the command line",
	Version: version.String(),
	Long: `negotiator is a manual driver for the negotiation pipeline: it exercises
process and generateInitialEmail against a configured LLM provider for
testing and smoke-checking. It is not a supported product surface.

Examples:
  # Draft the first outreach email for an order
  negotiator draft --order order.json

  # Run one negotiation turn
  negotiator negotiate --order order.json --rules @rules.txt \
      --message "We can offer $4.50/unit, MOQ 500, NET 30."`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.negotiator.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")

	rootCmd.PersistentFlags().String("primary-provider", "claude", "primary LLM provider: claude or openai")
	rootCmd.PersistentFlags().String("primary-model", "", "primary provider model (provider default if unset)")
	rootCmd.PersistentFlags().String("fallback-provider", "", "fallback LLM provider: claude or openai (disabled if unset)")
	rootCmd.PersistentFlags().String("fallback-model", "", "fallback provider model")
	rootCmd.PersistentFlags().Int("max-retries-per-provider", 3, "retry attempts per provider before failing over")
	rootCmd.PersistentFlags().Int("retry-delay-ms", 1000, "fixed delay between retries, in milliseconds")
	rootCmd.PersistentFlags().Int("orchestrator-max-iterations", 2, "bound on orchestrator synthesis rounds (follow-up rounds are at most one fewer)")
	rootCmd.PersistentFlags().Int("expert-max-tokens", 0, "max output tokens per expert call (0 = provider default)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().String("format", "json", "output format: json, yaml")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("primary_provider", rootCmd.PersistentFlags().Lookup("primary-provider"))
	_ = viper.BindPFlag("primary_model", rootCmd.PersistentFlags().Lookup("primary-model"))
	_ = viper.BindPFlag("fallback_provider", rootCmd.PersistentFlags().Lookup("fallback-provider"))
	_ = viper.BindPFlag("fallback_model", rootCmd.PersistentFlags().Lookup("fallback-model"))
	_ = viper.BindPFlag("max_retries_per_provider", rootCmd.PersistentFlags().Lookup("max-retries-per-provider"))
	_ = viper.BindPFlag("retry_delay_ms", rootCmd.PersistentFlags().Lookup("retry-delay-ms"))
	_ = viper.BindPFlag("orchestrator_max_iterations", rootCmd.PersistentFlags().Lookup("orchestrator-max-iterations"))
	_ = viper.BindPFlag("expert_max_tokens", rootCmd.PersistentFlags().Lookup("expert-max-tokens"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".negotiator")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("NEGOTIATOR")
	viper.AutomaticEnv()

	_ = viper.BindEnv("primary_api_key", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("fallback_api_key", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")

	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
