package handlers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"techdigest/internal/core"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show newsletter deliveries for a day",
		Long: `List every delivery attempt recorded for a calendar day in the schedule
timezone, newest first.

Examples:
  techdigest status
  techdigest status --date 2024-01-08`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "delivery date as YYYY-MM-DD (default today)")

	return cmd
}

func runStatus(ctx context.Context, w io.Writer, date string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	if date == "" {
		date = core.DeliveryDate(time.Now().In(cfg.Location()))
	} else if _, err := time.Parse(core.DateLayout, date); err != nil {
		return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
	}

	db, err := openDatabase(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer db.Close()

	deliveries, err := db.Deliveries().ListByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to list deliveries: %w", err)
	}

	printDeliveries(w, date, deliveries)
	return nil
}

var (
	emailCol  = lipgloss.NewStyle().Width(32)
	statusCol = lipgloss.NewStyle().Width(10)
	countCol  = lipgloss.NewStyle().Width(10)
)

func printDeliveries(w io.Writer, date string, deliveries []core.NewsletterDelivery) {
	fmt.Fprintln(w, titleStyle.Render("📬 Deliveries for "+date))
	if len(deliveries) == 0 {
		fmt.Fprintln(w, "No deliveries recorded")
		return
	}

	fmt.Fprintln(w, headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		emailCol.Render("Subscriber"), statusCol.Render("Status"), countCol.Render("Articles"), "Detail")))

	sent, failed := 0, 0
	for _, d := range deliveries {
		status := statusCol.Render(string(d.Status))
		detail := ""
		switch d.Status {
		case core.DeliverySent:
			status = okStyle.Inherit(statusCol).Render(string(d.Status))
			if d.SentAt != nil {
				detail = d.SentAt.In(time.Local).Format("15:04:05")
			}
			sent++
		case core.DeliveryFailed:
			status = errStyle.Inherit(statusCol).Render(string(d.Status))
			if d.ErrorMessage != nil {
				detail = *d.ErrorMessage
			}
			failed++
		}

		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
			emailCol.Render(d.UserEmail), status, countCol.Render(fmt.Sprint(d.ArticleCount)), detail))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sent: %d | Failed: %d | Total: %d\n", sent, failed, len(deliveries))
}
