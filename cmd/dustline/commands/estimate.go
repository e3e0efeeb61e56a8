package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dustline/internal/config"
	"github.com/dustline/internal/types"
)

// EstimateCmd estimates the tracing cost for one address
var EstimateCmd = &cobra.Command{
	Use:   "estimate <address>",
	Short: "Estimate the cost of tracing funds from an address",
	Long: `Walk the transaction graph around an address, attribute what it finds and
price the trace. The result is printed as JSON.

Flags override the DUSTLINE_* environment defaults.

Examples:
  dustline estimate bc1q...                        # Forward, depth 5, 500 nodes
  dustline estimate bc1q... --direction backward   # Where did the funds come from
  dustline estimate bc1q... --thorough             # Query WalletExplorer for every address`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

var (
	depthFlag            int
	nodeLimitFlag        int
	directionFlag        string
	thoroughFlag         bool
	noWalletExplorerFlag bool
	arkhamKeyFlag        string
	timeoutFlag          time.Duration
	compactFlag          bool
)

func init() {
	registerEstimateFlags(EstimateCmd)
}

func registerEstimateFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&depthFlag, "depth", 5, fmt.Sprintf("Maximum hops from the address (%d-%d)", config.MinDepth, config.MaxDepth))
	cmd.Flags().IntVar(&nodeLimitFlag, "node-limit", 500, fmt.Sprintf("Maximum transactions to fetch (%d-%d)", config.MinNodeLimit, config.MaxNodeLimit))
	cmd.Flags().StringVar(&directionFlag, "direction", string(types.DirectionForward), "Traversal direction: forward, backward or both")
	cmd.Flags().BoolVar(&thoroughFlag, "thorough", false, "Query WalletExplorer for every address instead of a sample")
	cmd.Flags().BoolVar(&noWalletExplorerFlag, "no-walletexplorer", false, "Skip the WalletExplorer attribution tier")
	cmd.Flags().StringVar(&arkhamKeyFlag, "arkham-key", "", "Arkham API key (overrides DUSTLINE_ARKHAM_KEY)")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Abort the analysis after this long (0 for no limit)")
	cmd.Flags().BoolVar(&compactFlag, "compact", false, "Print compact JSON")
}

// analysisConfig applies explicitly set flags over the configured defaults
func analysisConfig(cmd *cobra.Command, defaults config.AnalysisConfig) config.AnalysisConfig {
	a := defaults
	flags := cmd.Flags()
	if flags.Changed("depth") {
		a.Depth = depthFlag
	}
	if flags.Changed("node-limit") {
		a.NodeLimit = nodeLimitFlag
	}
	if flags.Changed("direction") {
		a.Direction = types.Direction(directionFlag)
	}
	if flags.Changed("thorough") {
		a.Thorough = thoroughFlag
	}
	if flags.Changed("no-walletexplorer") {
		a.WalletExplorerEnabled = !noWalletExplorerFlag
	}
	return a
}

func runEstimate(cmd *cobra.Command, args []string) error {
	analysis := analysisConfig(cmd, cfg.Analysis)
	if err := analysis.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	rt, err := newStack(ctx, arkhamKeyFlag)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.analysis.Analyze(ctx, args[0], analysis)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compactFlag {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
