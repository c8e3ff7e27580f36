package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/kyc-ledger/internal/app"
	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/spf13/cobra"
)

// env is what every command needs from the outside world.
type env struct {
	// build wires the application. offline skips the extraction service.
	build func(ctx context.Context, offline bool) (*app.App, error)
	stdin io.Reader
}

func defaultEnv() *env {
	return &env{
		build: func(ctx context.Context, offline bool) (*app.App, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			opts := []app.Option{app.WithRunTracking()}
			if offline {
				opts = append(opts, app.Offline())
			}
			return app.Build(ctx, cfg, opts...)
		},
		stdin: os.Stdin,
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "kyc",
		Short:         "Analyze KYC documents and manage the client ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newAnalyzeCmd(e),
		newExtractCmd(e, "assets"),
		newExtractCmd(e, "liabilities"),
		newClientsCmd(e),
		newSummaryCmd(e),
		newNetWorthCmd(e),
		newReconcileCmd(e),
		newExportCmd(e),
		newImportCmd(e),
		newUploadCmd(e),
		newRunsCmd(e),
	)
	return root
}

// withApp builds the application for one command invocation.
func withApp(cmd *cobra.Command, e *env, offline bool, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := e.build(ctx, offline)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(logger.WithContext(ctx, a.Log), a)
}

// readDocument loads a local file, a gs:// object or stdin ("-").
func readDocument(ctx context.Context, e *env, a *app.App, source string) (string, error) {
	switch {
	case source == "-":
		data, err := io.ReadAll(e.stdin)
		return string(data), err
	case strings.HasPrefix(source, "gs://"):
		client, err := a.Storage(ctx)
		if err != nil {
			return "", err
		}
		return gcsstore.NewDocuments(client).Fetch(ctx, source)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", source, err)
		}
		return string(data), nil
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
