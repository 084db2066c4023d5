package handlers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"techdigest/internal/pipeline"
)

// NewGatherCmd creates the gather command
func NewGatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gather",
		Short: "Fetch active feeds and store new articles",
		Long: `Fetch every active source, decode up to the per-feed limit of items,
categorize them, and insert any article whose URL is not already stored.

A source that fails to fetch or parse is logged and skipped.

Example:
  techdigest gather`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), cmd.OutOrStdout(), stageGather)
		},
	}
}

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Score and summarize unscored articles",
		Long: `Score up to one batch of unscored articles, newest first, and summarize
those relevant enough to be mailed. Calls to the LLM are spaced by
ai.throttle_interval.

Example:
  techdigest process`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), cmd.OutOrStdout(), stageProcess)
		},
	}
}

// NewSendCmd creates the send command
func NewSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Mail subscribers whose schedule is due today",
		Long: `Evaluate each active subscriber's schedule and mail a digest of unsent,
relevant articles to those who are due and have not been mailed today.

Set email.transport to "log" to exercise delivery without an SMTP relay.

Example:
  techdigest send`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), cmd.OutOrStdout(), stageSend)
		},
	}
}

// NewRunCmd creates the run command, which executes all stages in order
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run gather, process, and send in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd.Context(), cmd.OutOrStdout(), stageAll)
		},
	}
}

func runStage(ctx context.Context, w io.Writer, which stage) error {
	rt, err := setup(ctx, which)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := rt.pipeline

	switch which {
	case stageGather:
		result, err := p.Gather(ctx)
		if err != nil {
			return err
		}
		printIngest(w, result)
	case stageProcess:
		result, err := p.Process(ctx)
		if err != nil {
			return err
		}
		printRelevance(w, result)
	case stageSend:
		result, err := p.Send(ctx)
		if err != nil {
			return err
		}
		printDelivery(w, result)
	default:
		result, err := p.RunAll(ctx)
		printIngest(w, result.Ingest)
		printRelevance(w, result.Relevance)
		printDelivery(w, result.Delivery)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✅ Pipeline finished in %s", result.Duration.Round(time.Millisecond))))
	}

	return nil
}

func printIngest(w io.Writer, r pipeline.IngestResult) {
	printSummary(w, "📥 Gather",
		field{"Sources", r.SourcesProcessed},
		field{"Failed sources", count(r.SourcesFailed, true)},
		field{"Items seen", r.CandidatesSeen},
		field{"New articles", okStyle.Render(fmt.Sprint(r.ArticlesInserted))},
	)
}

func printRelevance(w io.Writer, r pipeline.RelevanceResult) {
	printSummary(w, "🧠 Process",
		field{"Candidates", r.Candidates},
		field{"Scored", r.Processed},
		field{"Summarized", r.Summarized},
		field{"LLM errors", count(r.OracleErrors, true)},
		field{"Not stored", count(r.Failed, true)},
	)
}

func printDelivery(w io.Writer, r pipeline.DeliveryResult) {
	printSummary(w, "📬 Send",
		field{"Subscribers", r.Users},
		field{"Delivered", okStyle.Render(fmt.Sprint(r.Delivered))},
		field{"Already sent", r.AlreadySent},
		field{"Not due", r.NotDue},
		field{"Nothing to send", r.Empty},
		field{"Failed", count(r.Failed, true)},
	)
}
