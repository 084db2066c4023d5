package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"techdigest/internal/core"
	"techdigest/internal/email"
	"techdigest/internal/persistence"
	"techdigest/internal/schedule"
)

// Outcome is what happened to one user in a delivery pass
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeNotDue      Outcome = "not_due"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFailed      Outcome = "failed"
)

// ErrSentNotRecorded marks a delivery whose mail went out but whose sent rows could not be stored
var ErrSentNotRecorded = errors.New("newsletter sent but not recorded")

// DeliveryResult summarizes one delivery pass
type DeliveryResult struct {
	Users       int
	Delivered   int
	AlreadySent int
	NotDue      int
	Empty       int
	Failed      int
}

// Deliverer sends digests to users who are due and records the outcome
type Deliverer struct {
	db       persistence.Database
	selector *Selector
	mailer   Mailer
	template *email.EmailTemplate
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

// NewDeliverer creates the delivery stage. loc is the calendar used for schedules and the daily fence.
func NewDeliverer(db persistence.Database, mailer Mailer, loc *time.Location, log *slog.Logger) *Deliverer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{
		db:       db,
		selector: NewSelector(db),
		mailer:   mailer,
		template: email.GetDefaultEmailTemplate(),
		loc:      loc,
		log:      log.With("component", "delivery"),
		now:      time.Now,
	}
}

// Run evaluates every active user once
func (d *Deliverer) Run(ctx context.Context) (DeliveryResult, error) {
	var result DeliveryResult

	users, err := d.db.Users().ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list users: %w", err)
	}
	result.Users = len(users)

	now := d.now()
	d.log.Info("Starting delivery", "users", len(users), "date", core.DeliveryDate(now.In(d.loc)))

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := d.DeliverUser(ctx, user, now)
		switch outcome {
		case OutcomeSent:
			result.Delivered++
		case OutcomeNotDue:
			result.NotDue++
		case OutcomeAlreadySent:
			result.AlreadySent++
		case OutcomeEmpty:
			result.Empty++
		case OutcomeFailed:
			result.Failed++
			d.log.Error("Delivery failed", "user", user.Email, "error", err)
		}
	}

	d.log.Info("Delivery complete",
		"delivered", result.Delivered,
		"already_sent", result.AlreadySent,
		"not_due", result.NotDue,
		"empty", result.Empty,
		"failed", result.Failed)

	return result, nil
}

// DeliverUser runs the per-day state machine for one user: not attempted, then sent or failed.
// A user who already has a sent row for today, or who has nothing to read, is left untouched.
func (d *Deliverer) DeliverUser(ctx context.Context, user core.User, now time.Time) (Outcome, error) {
	today := now.In(d.loc)
	if !schedule.IsDueToday(user, today) {
		return OutcomeNotDue, nil
	}
	date := core.DeliveryDate(today)

	sent, err := d.db.Deliveries().HasSent(ctx, user.Email, date)
	if err != nil {
		return d.fail(ctx, user, date, today, err)
	}
	if sent {
		d.log.Debug("Already delivered today", "user", user.Email, "date", date)
		return OutcomeAlreadySent, nil
	}

	articles, err := d.selector.Select(ctx, user, today)
	if err != nil {
		return d.fail(ctx, user, date, today, err)
	}
	if len(articles) == 0 {
		d.log.Info("No new articles for user", "user", user.Email)
		return OutcomeEmpty, nil
	}

	subject, err := email.GenerateSubject(d.template, today)
	if err != nil {
		return d.fail(ctx, user, date, today, err)
	}
	html, err := email.RenderHTMLEmail(email.NewDigestData(d.template, user, articles, today), d.template)
	if err != nil {
		return d.fail(ctx, user, date, today, err)
	}

	if err := d.mailer.Send(ctx, user.Email, subject, html); err != nil {
		return d.fail(ctx, user, date, today, err)
	}

	if err := d.record(ctx, user, articles, date, today); err != nil {
		// the mail is out; a failed row leaves the user unfenced and the next run mails again
		d.log.Error("Newsletter sent but not recorded",
			"user", user.Email,
			"date", date,
			"articles", len(articles),
			"error", err)
		return d.fail(ctx, user, date, today, fmt.Errorf("%w: %w", ErrSentNotRecorded, err))
	}

	d.log.Info("Newsletter sent", "user", user.Email, "articles", len(articles))
	return OutcomeSent, nil
}

// record writes the sent articles and the sent delivery row in one transaction
func (d *Deliverer) record(ctx context.Context, user core.User, articles []core.Article, date string, now time.Time) error {
	tx, err := d.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range articles {
		if _, err := tx.SentArticles().CreateIfAbsent(ctx, &core.SentArticle{
			ArticleID:     a.ID,
			UserEmail:     user.Email,
			SentAt:        now,
			TopicCategory: a.TopicCategory,
			ArticleTitle:  a.Title,
		}); err != nil {
			return err
		}
	}

	sentAt := now
	if err := tx.Deliveries().Create(ctx, &core.NewsletterDelivery{
		UserEmail:    user.Email,
		DeliveryDate: date,
		ArticleCount: len(articles),
		Status:       core.DeliverySent,
		CreatedAt:    now,
		SentAt:       &sentAt,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delivery: %w", err)
	}
	return nil
}

// fail stores a failed delivery row carrying cause. No sent articles are recorded.
func (d *Deliverer) fail(ctx context.Context, user core.User, date string, now time.Time, cause error) (Outcome, error) {
	msg := cause.Error()
	if err := d.db.Deliveries().Create(ctx, &core.NewsletterDelivery{
		UserEmail:    user.Email,
		DeliveryDate: date,
		ArticleCount: 0,
		Status:       core.DeliveryFailed,
		ErrorMessage: &msg,
		CreatedAt:    now,
	}); err != nil {
		d.log.Error("Failed to record delivery failure", "user", user.Email, "error", err)
	}
	return OutcomeFailed, fmt.Errorf("deliver to %s: %w", user.Email, cause)
}
