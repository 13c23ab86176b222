package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"holiday-status-api/internal/app"
	"holiday-status-api/internal/config"
	"holiday-status-api/internal/logging"
	"holiday-status-api/internal/models"
	"holiday-status-api/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "holidayctl",
		Short:         "Operator tools for the holiday status API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCheckCmd(), newNormalizeCmd(), newSnapshotCmd(), newTriggerCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "console"), nil
}

func newCheckCmd() *cobra.Command {
	var (
		city    string
		lastIQ  float64
		lastTH  float64
		store   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask the configured model about today's closures and print the raw and normalized reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if city == "" {
				city = cfg.DefaultCity
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var rc models.RefreshContext
			if cmd.Flags().Changed("last-iq") {
				rc.LastIQ = &lastIQ
			}
			if cmd.Flags().Changed("last-th") {
				rc.LastTH = &lastTH
			}

			if store {
				a, err := app.Build(ctx, cfg, logger, nil)
				if err != nil {
					return err
				}
				defer a.Close()
				result, err := a.Service.RefreshFromModel(ctx, city, &rc)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}

			// a dry run never connects to the configured cache or bucket
			dry := *cfg
			dry.CacheBackend = "memory"
			dry.S3BucketName = ""
			a, err := app.Build(ctx, &dry, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			check, err := a.Service.CheckModel(ctx, city, &rc)
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), a.Service.Provider(), check)
			return printJSON(cmd.OutOrStdout(), check.Result)
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "city to check (default DEFAULT_CITY)")
	cmd.Flags().Float64Var(&lastIQ, "last-iq", 0, "last air-quality index to hint the model with")
	cmd.Flags().Float64Var(&lastTH, "last-th", 0, "last closure threshold to hint the model with")
	cmd.Flags().BoolVar(&store, "store", false, "write the result to the configured cache and publisher")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "overall deadline")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var sources int

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a saved model reply read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			result := services.NewNormalizer(nil).NormalizeReply(string(raw), sources)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&sources, "sources", 0, "fallback sourcesCount when the reply has none")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var city string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the latest published snapshot for a city from S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.S3BucketName == "" {
				return fmt.Errorf("S3_BUCKET_NAME is not set")
			}
			if city == "" {
				city = cfg.DefaultCity
			}

			awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load AWS config: %w", err)
			}
			publisher := services.NewS3Publisher(s3.NewFromConfig(awsCfg), cfg.S3BucketName, awsCfg.Region, nil)

			result, err := publisher.DownloadLatest(cmd.Context(), city)
			if err != nil {
				return err
			}
			if updated := result.UpdatedTime(); !updated.IsZero() {
				fmt.Fprintf(cmd.ErrOrStderr(), "updated %s ago\n", time.Since(updated).Round(time.Second))
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "city to read (default DEFAULT_CITY)")
	return cmd
}

func newTriggerCmd() *cobra.Command {
	var city string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Invoke the deployed holiday API function to refresh a city",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.HolidayAPIFunctionName == "" {
				return fmt.Errorf("HOLIDAY_API_FUNCTION_NAME is not set")
			}
			if city == "" {
				city = cfg.DefaultCity
			}

			awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load AWS config: %w", err)
			}
			trigger := services.NewRefreshTrigger(lambdaclient.NewFromConfig(awsCfg), cfg.HolidayAPIFunctionName, cfg.AdminToken)

			resp, err := trigger.Trigger(cmd.Context(), city)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %d\n%s\n", resp.StatusCode, resp.Body)
			return nil
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "city to refresh (default DEFAULT_CITY)")
	return cmd
}

func printCheck(out io.Writer, provider services.ModelProvider, check *services.ModelCheck) {
	fmt.Fprintf(out, "provider: %s model: %s (%s)\n", provider.Name(), app.ProviderModel(provider), check.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "news documents: %d\n", len(check.News))
	if op, ok := provider.(*services.OpenAIProvider); ok {
		fmt.Fprintf(out, "tokens: %d (~$%.6f)\n", check.Generation.TokensUsed, op.EstimateCost(check.Generation.TokensUsed))
	}
	for i, uri := range check.Generation.SourceURIs {
		fmt.Fprintf(out, "source %d: %s\n", i+1, uri)
	}
	fmt.Fprintf(out, "\n--- raw reply ---\n%s\n\n--- normalized ---\n", check.Generation.Text)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
