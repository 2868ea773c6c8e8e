package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"glass-voice/internal/app"
	"glass-voice/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	useAWS     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "voicectl",
		Short:         "Glass order voice assistant",
		Long:          "voicectl drives the glass-order conversation engine: chat with it from the terminal, serve it over HTTP and WebSocket, or read journaled conversations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ./voice.{yaml,toml,json})")
	rootCmd.PersistentFlags().BoolVar(&opts.useAWS, "aws", false, "load AWS credentials for parameter store secrets and the DynamoDB journal")

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(opts),
		newServeCmd(opts),
		newHistoryCmd(opts),
	)
	return rootCmd
}

// build loads configuration and wires the application. Logs go to logOut so
// they stay out of the command's own output.
func (o *rootOptions) build(ctx context.Context, logOut io.Writer, forceAWS bool) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Log, logOut)

	var awsCfg *aws.Config
	if o.useAWS || forceAWS {
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &loaded
	}
	return app.New(ctx, cfg, awsCfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
