package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/ingestion"
	"token-sentinel/internal/pipeline"
)

var (
	checkChain   string
	checkCreator string
)

var checkCmd = &cobra.Command{
	Use:   "check <address>...",
	Short: "Evaluate tokens once through the full pipeline",
	Long: `Evaluate one or more token addresses through the same ledger, providers,
filter and notifier as the server, then print the outcome of each.

Tokens already present in the ledger are reported as skipped.`,
	Example: `  sentinel check --chain solana So11111111111111111111111111111111111111112
  sentinel check --chain base 0xabcdef0123456789abcdef0123456789abcdef01`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkChain, "chain", "solana", "Chain of the given addresses")
	checkCmd.Flags().StringVar(&checkCreator, "creator", "", "Creator address, used for the dev holding share")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cands, err := manualCandidates(domain.ParseChain(checkChain), checkCreator, args)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	batch := a.orchestrator.EvaluateBatch(ctx, cands)
	printResults(batch)
	return nil
}

func manualCandidates(chain domain.Chain, creator string, addrs []string) ([]*domain.CandidateToken, error) {
	out := make([]*domain.CandidateToken, 0, len(addrs))
	for _, raw := range addrs {
		addr, err := ingestion.CanonicalAddress(chain, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.CandidateToken{
			Chain:          chain,
			Address:        addr,
			CreatorAddress: ingestion.CanonicalCreator(chain, creator),
			Source:         domain.SourceManual,
		})
	}
	return out, nil
}

func printResults(batch *pipeline.BatchResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tOUTCOME\tMISSING\tFAILED\tDURATION")
	for _, r := range batch.Results {
		var missing, failed []string
		if r.Filter != nil {
			for _, m := range r.Filter.MissingMetrics {
				missing = append(missing, string(m))
			}
			for _, c := range r.Filter.FailedChecks() {
				failed = append(failed, fmt.Sprintf("%s=%s", c.Metric, c.Actual))
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Candidate.Address,
			r.Outcome,
			dash(strings.Join(missing, ",")),
			dash(strings.Join(failed, ",")),
			r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
	fmt.Printf("\nbatch %s: %d tokens in %s\n", batch.ID, len(batch.Results), batch.Duration.Round(time.Millisecond))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
