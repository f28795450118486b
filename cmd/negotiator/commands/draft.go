package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealbroker/negotiator/internal/logger"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft the first outreach email for an order context",
	Long:  `draft calls generateInitialEmail for a given order context and prints the subject/body.`,
	RunE:  runDraft,
}

func init() {
	rootCmd.AddCommand(draftCmd)

	flags := draftCmd.Flags()
	flags.String("order", "", "path to order context JSON (required)")
	_ = draftCmd.MarkFlagRequired("order")
}

func runDraft(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{Debug: viper.GetBool("debug"), Quiet: viper.GetBool("quiet")})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orderPath, _ := cmd.Flags().GetString("order")
	oc, err := loadOrderContext(orderPath)
	if err != nil {
		logError("failed to load order context: %v", err)
		return err
	}

	pipeline, err := buildPipeline()
	if err != nil {
		logError("failed to build pipeline: %v", err)
		return err
	}

	email, err := pipeline.GenerateInitialEmail(ctx, oc)
	if err != nil {
		logError("failed to generate initial email: %v", err)
		return err
	}

	return writeResult(cmd, email)
}
