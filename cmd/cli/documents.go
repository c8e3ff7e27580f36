package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/app"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(e *env) *cobra.Command {
	var (
		name   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file|gs://uri|-> ...",
		Short: "Run the full analysis pipeline on one or more text documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, false, func(ctx context.Context, a *app.App) error {
				failed := 0
				for _, src := range args {
					text, err := readDocument(ctx, e, a, src)
					if err != nil {
						return err
					}
					docName := name
					if docName == "" || len(args) > 1 {
						docName = pipeline.DocumentNameFromURI(src)
					}

					result := a.Analyzer.AnalyzeDocument(ctx, text, docName)
					if result.Failed() {
						failed++
					}
					if outDir == "" {
						if err := printJSON(cmd.OutOrStdout(), result); err != nil {
							return err
						}
						continue
					}
					if err := writeResult(outDir, result); err != nil {
						return err
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(args))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "document name reported on the result (single document only)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write <base>_<timestamp>_result.json files to this directory instead of stdout")
	return cmd
}

func writeResult(dir string, result domain.DocumentAnalysisResult) error {
	at := result.CompletedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	path := filepath.Join(dir, pipeline.ResultObjectName("", result.DocumentName, at))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return printJSON(f, result)
}

func newExtractCmd(e *env, kind string) *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "extract-" + kind + " <client-key> <file|gs://uri|->",
		Short: "Extract " + kind + " from a document into one client's record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, false, func(ctx context.Context, a *app.App) error {
				key := domain.ClientKey(args[0])
				text, err := readDocument(ctx, e, a, args[1])
				if err != nil {
					return err
				}
				docName := pipeline.DocumentNameFromURI(args[1])
				category := pipeline.ParseCategoryLabel(docType)

				var out interface{}
				if kind == "assets" {
					out, err = a.Analyzer.IngestAssets(ctx, key, text, docName, category)
				} else {
					out, err = a.Analyzer.IngestLiabilities(ctx, key, text, docName, category)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document category, e.g. BankableAssets or Mortgages")
	return cmd
}

func newUploadCmd(e *env) *cobra.Command {
	var bucket, object string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a local text document to GCS for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				if bucket == "" {
					bucket = a.Config.DocumentsBucket
				}
				if bucket == "" {
					return fmt.Errorf("--bucket or DOCUMENTS_BUCKET is required")
				}
				if object == "" {
					object = filepath.Base(args[0])
				}
				client, err := a.Storage(ctx)
				if err != nil {
					return err
				}
				if err := gcsstore.UploadFile(ctx, client, bucket, object, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), gcsstore.URI(bucket, object))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "destination bucket (defaults to DOCUMENTS_BUCKET)")
	cmd.Flags().StringVar(&object, "object", "", "object name (defaults to the file name)")
	return cmd
}
