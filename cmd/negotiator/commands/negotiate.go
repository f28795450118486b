package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealbroker/negotiator"
	"github.com/dealbroker/negotiator/internal/config"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/order"
	"github.com/dealbroker/negotiator/internal/output"
	"github.com/dealbroker/negotiator/internal/quote"
)

var negotiateCmd = &cobra.Command{
	Use:   "negotiate",
	Short: "Run one negotiation turn against a supplier message",
	Long: `negotiate feeds a supplier message, order context, and negotiation
rules through the pipeline's process call and prints the resulting
AgentDecision.`,
	RunE: runNegotiate,
}

func init() {
	rootCmd.AddCommand(negotiateCmd)

	flags := negotiateCmd.Flags()
	flags.String("order", "", "path to order context JSON (required)")
	flags.String("message", "", "supplier message (reads stdin if unset)")
	flags.String("rules", "", "negotiation rules text, or @path to read from a file")
	flags.String("triggers", "", "escalation triggers text, or @path to read from a file")
	flags.String("instructions", "", "merchant standing instructions, or @path to read from a file")
	flags.String("target-terms", "", "merchant's target terms for a counter-offer, or @path to read from a file")
	flags.String("history", "", "path to a file with prior conversation text, formatted [AGENT]/[SUPPLIER] per line")
	flags.String("prior-extraction", "", "path to prior ExtractedQuoteData JSON")

	_ = negotiateCmd.MarkFlagRequired("order")
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{Debug: viper.GetBool("debug"), Quiet: viper.GetBool("quiet")})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orderPath, _ := cmd.Flags().GetString("order")
	oc, err := loadOrderContext(orderPath)
	if err != nil {
		logError("failed to load order context: %v", err)
		return err
	}

	message, _ := cmd.Flags().GetString("message")
	if message == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			logError("failed to read supplier message from stdin: %v", err)
			return err
		}
		message = string(raw)
	}

	rules, err := resolveTextFlag(cmd, "rules")
	if err != nil {
		return err
	}
	triggers, err := resolveTextFlag(cmd, "triggers")
	if err != nil {
		return err
	}
	instructions, err := resolveTextFlag(cmd, "instructions")
	if err != nil {
		return err
	}
	targetTerms, err := resolveTextFlag(cmd, "target-terms")
	if err != nil {
		return err
	}

	history, err := readOptionalFile(cmd, "history")
	if err != nil {
		logError("failed to read conversation history: %v", err)
		return err
	}

	priorExtraction, err := loadPriorExtraction(cmd)
	if err != nil {
		logError("failed to load prior extraction: %v", err)
		return err
	}

	pipeline, err := buildPipeline()
	if err != nil {
		logError("failed to build pipeline: %v", err)
		return err
	}

	decision := pipeline.Process(ctx, negotiator.Request{
		SupplierMessage:      message,
		NegotiationRules:     rules,
		EscalationTriggers:   triggers,
		OrderContext:         oc,
		ConversationHistory:  history,
		PriorExtractedData:   priorExtraction,
		MerchantInstructions: instructions,
		TargetTerms:          targetTerms,
	})

	return writeResult(cmd, decision)
}

func buildPipeline() (*negotiator.Pipeline, error) {
	cfg := config.Load()

	primary, err := config.BuildProvider(cfg.PrimaryProvider)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	if primary == nil {
		return nil, fmt.Errorf("no primary provider configured (set --primary-provider)")
	}

	fallback, err := config.BuildProvider(cfg.FallbackProvider)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}

	return negotiator.New(primary, fallback, cfg.ServiceConfig(), cfg.OrchestratorMaxIter, cfg.ExpertMaxTokens), nil
}

func loadOrderContext(path string) (order.Context, error) {
	raw, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads a user-specified input file
	if err != nil {
		return order.Context{}, err
	}
	var oc order.Context
	if err := json.Unmarshal(raw, &oc); err != nil {
		return order.Context{}, fmt.Errorf("invalid order context JSON: %w", err)
	}
	return oc, nil
}

func loadPriorExtraction(cmd *cobra.Command) (*quote.Data, error) {
	path, _ := cmd.Flags().GetString("prior-extraction")
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads a user-specified input file
	if err != nil {
		return nil, err
	}
	var d quote.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("invalid prior extraction JSON: %w", err)
	}
	return &d, nil
}

// resolveTextFlag reads a flag's value directly, or, when prefixed with
// "@", reads it from the named file instead.
func resolveTextFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if len(v) > 0 && v[0] == '@' {
		raw, err := os.ReadFile(v[1:]) //#nosec G304 -- CLI tool reads a user-specified input file
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return string(raw), nil
	}
	return v, nil
}

func readOptionalFile(cmd *cobra.Command, flagName string) (string, error) {
	path, _ := cmd.Flags().GetString(flagName)
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads a user-specified input file
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeResult(cmd *cobra.Command, data any) error {
	outFile := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logError("failed to create output file: %v", err)
			return err
		}
		defer func() { _ = f.Close() }()
		outFile = f
	}

	formatStr, _ := cmd.Flags().GetString("format")
	writer, err := output.NewWriter(outFile, output.Format(formatStr))
	if err != nil {
		logError("failed to create output writer: %v", err)
		return err
	}
	defer func() { _ = writer.Close() }()

	if err := writer.Write(data); err != nil {
		logError("failed to write result: %v", err)
		return err
	}
	return nil
}
