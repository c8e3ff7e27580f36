package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dvloznov/kyc-ledger/internal/app"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/networth"
	"github.com/spf13/cobra"
)

func newClientsCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List every client in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				summaries, err := a.Ledger.Summaries(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					if summaries == nil {
						summaries = []domain.ClientSummary{}
					}
					return printJSON(cmd.OutOrStdout(), summaries)
				}
				return printClients(cmd.OutOrStdout(), summaries)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printClients(w io.Writer, summaries []domain.ClientSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT ID\tNAME\tASSETS\tLIABILITIES\tNET WORTH\tDOCS\tMERGES")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			s.ClientID, s.ClientName,
			s.TotalAssets.StringFixed(2), s.TotalLiabilities.StringFixed(2), s.NetWorth.StringFixed(2),
			s.DocumentsProcessed, s.MergesCount)
	}
	return tw.Flush()
}

func newSummaryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <client-key>",
		Short: "Show one client's ledger summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				s, err := a.Ledger.Summary(ctx, domain.ClientKey(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func newNetWorthCmd(e *env) *cobra.Command {
	var (
		all     bool
		offline bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "net-worth [client-key ...]",
		Short: "Compute net worth for clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("give at least one client key or --all")
			}
			return withApp(cmd, e, offline, func(ctx context.Context, a *app.App) error {
				keys := make([]domain.ClientKey, 0, len(args))
				for _, k := range args {
					keys = append(keys, domain.ClientKey(k))
				}
				if all {
					var err error
					if keys, err = a.Ledger.Keys(ctx); err != nil {
						return err
					}
				}

				results := a.NetWorth.ComputeMany(ctx, keys)
				var firstErr error
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Key, r.Err)
						if firstErr == nil {
							firstErr = r.Err
						}
					}
				}

				var err error
				if asJSON {
					out := make(map[domain.ClientKey]domain.NetWorthSummary, len(results))
					for _, r := range results {
						out[r.Key] = r.Summary
					}
					err = printJSON(cmd.OutOrStdout(), out)
				} else {
					err = printNetWorth(cmd.OutOrStdout(), results)
				}
				if err != nil {
					return err
				}
				return firstErr
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "compute every client in the ledger")
	cmd.Flags().BoolVar(&offline, "offline", false, "use ledger totals only, without the extraction service")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printNetWorth(w io.Writer, results []networth.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT ID\tNAME\tASSETS\tLIABILITIES\tNET WORTH\tCOMPLETENESS\tNOTE")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key, s.ClientName,
			domain.FormatAmount(s.TotalAssets, s.Currency),
			domain.FormatAmount(s.TotalLiabilities, s.Currency),
			domain.FormatAmount(s.NetWorth, s.Currency),
			s.DataCompleteness, s.Error)
	}
	return tw.Flush()
}

func newReconcileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Merge client records that share a normalized name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				merged, err := a.Ledger.Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merged %d records\n", merged)
				return nil
			})
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of the whole ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				snap, err := a.Ledger.Export(ctx)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return ledger.WriteSnapshot(cmd.OutOrStdout(), snap)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := ledger.WriteSnapshot(f, snap); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d clients to %s\n", snap.ClientCount, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to stdout)")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Load a ledger snapshot, replacing records with the same key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				var r io.Reader = e.stdin
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				snap, err := ledger.ReadSnapshot(r)
				if err != nil {
					return err
				}
				n, err := a.Ledger.Import(ctx, snap)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d clients\n", n)
				return nil
			})
		},
	}
}

func newRunsCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent analysis runs recorded in BigQuery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, true, func(ctx context.Context, a *app.App) error {
				if a.Runs == nil {
					return fmt.Errorf("BIGQUERY_PROJECT is not configured")
				}
				runs, err := a.Runs.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN ID\tDOCUMENT\tSTATUS\tSTARTED\tNET WORTH")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.RunID, r.DocumentName, r.Status, r.StartedTS.Format("2006-01-02 15:04:05"), r.CombinedNetWorth.StringVal)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to show")
	return cmd
}
