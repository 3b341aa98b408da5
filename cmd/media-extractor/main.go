// Package main is the entry point for the media extractor server and CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"media-extractor-go/internal/app"
	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/urlutil"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "media-extractor",
		Short:        "Resolve video host embed pages into playable streams",
		Version:      version,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, newExtractCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := setup()
			if err != nil {
				return err
			}
			defer application.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}
}

func newExtractCmd() *cobra.Command {
	var (
		name      string
		extractor string
		headers   []string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "extract <url>...",
		Short: "Extract streams from one or more embed URLs and print them as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdrs, err := parseHeaderFlags(headers)
			if err != nil {
				return err
			}

			application, err := setup()
			if err != nil {
				return err
			}
			defer application.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := interfaces.ExtractOptions{
				Headers:       hdrs,
				ForceRefresh:  force,
				QualityPrefix: name,
			}
			result, err := extract(ctx, application, extractor, args, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "quality label prefix (defaults to the host name with several URLs)")
	cmd.Flags().StringVar(&extractor, "extractor", "", "force a registered extractor by name (single URL only)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header as key=value (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "discard cached key material before extracting")

	return cmd
}

func setup() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	application, err := app.New(cfg, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func extract(ctx context.Context, application *app.App, extractor string, urls []string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	if len(urls) == 1 {
		return application.Ctx.Service.ExtractWith(ctx, extractor, urls[0], opts)
	}
	if extractor != "" {
		return nil, fmt.Errorf("--extractor applies to a single URL")
	}
	return application.Ctx.Service.ExtractServers(ctx, serversFor(urls, opts.QualityPrefix), opts)
}

// serversFor names each URL after its host unless a name was given.
func serversFor(urls []string, name string) []types.ServerSource {
	servers := make([]types.ServerSource, 0, len(urls))
	for _, u := range urls {
		n := name
		if n == "" {
			n = urlutil.Host(u)
		}
		servers = append(servers, types.ServerSource{Name: n, URL: u})
	}
	return servers
}

func parseHeaderFlags(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", v)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
