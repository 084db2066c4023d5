package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"techdigest/internal/core"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const onConflictDoNothing = "ON CONFLICT (%s) DO NOTHING"

func execInsertIfAbsent(ctx context.Context, c conn, builder sq.InsertBuilder) (bool, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build insert: %w", err)
	}
	result, err := c.query().ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sqlSourceRepo implements SourceRepository
type sqlSourceRepo struct {
	conn
}

var sourceColumns = []string{"id", "name", "url", "source_type", "category", "keywords", "active", "created_at", "updated_at"}

func (r *sqlSourceRepo) CreateIfAbsent(ctx context.Context, source *core.Source) (bool, error) {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	if source.Type == "" {
		source.Type = core.SourceTypeFeed
	}
	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	builder := r.sb().Insert("sources").
		Columns(sourceColumns...).
		Values(source.ID, source.Name, source.URL, string(source.Type), source.Category,
			stringList(source.Keywords), source.Active, source.CreatedAt.UTC(), source.UpdatedAt).
		Suffix(fmt.Sprintf(onConflictDoNothing, "url"))

	inserted, err := execInsertIfAbsent(ctx, r.conn, builder)
	if err != nil {
		return false, fmt.Errorf("failed to insert source %s: %w", source.URL, err)
	}
	return inserted, nil
}

func (r *sqlSourceRepo) ListActive(ctx context.Context) ([]core.Source, error) {
	return r.list(ctx, sq.Eq{"active": true})
}

func (r *sqlSourceRepo) List(ctx context.Context) ([]core.Source, error) {
	return r.list(ctx, nil)
}

func (r *sqlSourceRepo) list(ctx context.Context, where sq.Sqlizer) ([]core.Source, error) {
	builder := r.sb().Select(sourceColumns...).From("sources").OrderBy("name ASC", "id ASC")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var (
			s          core.Source
			sourceType string
			category   sql.NullString
			keywords   stringList
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &sourceType, &category, &keywords, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		s.Type = core.SourceType(sourceType)
		s.Category = category.String
		s.Keywords = keywords
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// sqlArticleRepo implements ArticleRepository
type sqlArticleRepo struct {
	conn
}

var articleColumns = []string{
	"id", "title", "url", "content", "summary", "source_id", "source_name",
	"published_date", "gathered_at", "relevance_score", "topic_category", "created_at",
}

func (r *sqlArticleRepo) CreateIfAbsent(ctx context.Context, article *core.Article) (bool, error) {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	article.GatheredAt = utc(article.GatheredAt)
	article.PublishedAt = utc(article.PublishedAt)
	if article.CreatedAt.IsZero() {
		article.CreatedAt = article.GatheredAt
	}

	var score interface{}
	if article.RelevanceScore != nil {
		score = *article.RelevanceScore
	}
	var summary interface{}
	if article.Summary != nil {
		summary = *article.Summary
	}

	builder := r.sb().Insert("articles").
		Columns(articleColumns...).
		Values(article.ID, article.Title, article.URL, article.Content, summary,
			nullableString(article.SourceID), article.SourceName, article.PublishedAt,
			article.GatheredAt, score, article.TopicCategory, article.CreatedAt.UTC()).
		Suffix(fmt.Sprintf(onConflictDoNothing, "url"))

	inserted, err := execInsertIfAbsent(ctx, r.conn, builder)
	if err != nil {
		return false, fmt.Errorf("failed to insert article %s: %w", article.URL, err)
	}
	return inserted, nil
}

func (r *sqlArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *sqlArticleRepo) GetByURL(ctx context.Context, url string) (*core.Article, error) {
	return r.getOne(ctx, sq.Eq{"url": url})
}

func (r *sqlArticleRepo) getOne(ctx context.Context, where sq.Sqlizer) (*core.Article, error) {
	query, args, err := r.sb().Select(articleColumns...).From("articles").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	article, err := scanArticle(r.query().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

func (r *sqlArticleRepo) ListUnscored(ctx context.Context, limit int) ([]core.Article, error) {
	builder := r.sb().Select(articleColumns...).From("articles").
		Where(sq.Eq{"relevance_score": nil}).
		OrderBy("gathered_at DESC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.list(ctx, builder)
}

func (r *sqlArticleRepo) SetRelevance(ctx context.Context, id string, score float64, summary *string) (bool, error) {
	var summaryValue interface{}
	if summary != nil {
		summaryValue = *summary
	}

	query, args, err := r.sb().Update("articles").
		Set("relevance_score", score).
		Set("summary", summaryValue).
		Where(sq.Eq{"id": id, "relevance_score": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.query().ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update article %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqlArticleRepo) ListCandidates(ctx context.Context, q CandidateQuery) ([]core.Article, error) {
	builder := r.sb().Select(articleColumns...).From("articles").
		Where(sq.GtOrEq{"relevance_score": q.MinScore}).
		Where(sq.GtOrEq{"gathered_at": q.GatheredFrom.UTC()}).
		OrderBy("relevance_score DESC", "id ASC")
	if len(q.ExcludeIDs) > 0 {
		builder = builder.Where(sq.NotEq{"id": q.ExcludeIDs})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return r.list(ctx, builder)
}

func (r *sqlArticleRepo) Count(ctx context.Context) (int, error) {
	query, args, err := r.sb().Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var n int
	if err := r.query().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

func (r *sqlArticleRepo) list(ctx context.Context, builder sq.SelectBuilder) ([]core.Article, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (core.Article, error) {
	var (
		a         core.Article
		summary   sql.NullString
		sourceID  sql.NullString
		score     sql.NullFloat64
		published sql.NullTime
		category  sql.NullString
	)
	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &summary, &sourceID, &a.SourceName,
		&published, &a.GatheredAt, &score, &category, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	if summary.Valid {
		s := summary.String
		a.Summary = &s
	}
	if score.Valid {
		v := score.Float64
		a.RelevanceScore = &v
	}
	if published.Valid {
		a.PublishedAt = published.Time.UTC()
	}
	a.SourceID = sourceID.String
	a.TopicCategory = category.String
	a.GatheredAt = a.GatheredAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// sqlUserRepo implements UserRepository
type sqlUserRepo struct {
	conn
}

var userColumns = []string{
	"id", "email", "name", "topics", "frequency", "delivery_day", "delivery_time",
	"article_count", "active", "created_at", "updated_at",
}

func (r *sqlUserRepo) CreateIfAbsent(ctx context.Context, user *core.User) (bool, error) {
	if err := user.Validate(); err != nil {
		return false, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.ArticleCount == 0 {
		user.ArticleCount = core.DefaultArticleCount
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	var day interface{}
	if user.DeliveryDay != nil {
		day = int64(*user.DeliveryDay)
	}

	builder := r.sb().Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Email, user.Name, stringList(user.Topics), string(user.Frequency), day,
			nullableString(user.DeliveryTime), user.ArticleCount, user.Active, user.CreatedAt.UTC(), user.UpdatedAt).
		Suffix(fmt.Sprintf(onConflictDoNothing, "email"))

	inserted, err := execInsertIfAbsent(ctx, r.conn, builder)
	if err != nil {
		return false, fmt.Errorf("failed to insert user %s: %w", user.Email, err)
	}
	return inserted, nil
}

func (r *sqlUserRepo) ListActive(ctx context.Context) ([]core.User, error) {
	query, args, err := r.sb().Select(userColumns...).From("users").
		Where(sq.Eq{"active": true}).
		OrderBy("email ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *sqlUserRepo) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	query, args, err := r.sb().Select(userColumns...).From("users").Where(sq.Eq{"email": email}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	user, err := scanUser(r.query().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u            core.User
		topics       stringList
		frequency    string
		day          sql.NullInt64
		deliveryTime sql.NullString
		name         sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &name, &topics, &frequency, &day, &deliveryTime,
		&u.ArticleCount, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.Name = name.String
	u.Topics = topics
	u.Frequency = core.Frequency(frequency)
	if day.Valid && day.Int64 >= 0 && day.Int64 <= 6 {
		wd := time.Weekday(day.Int64)
		u.DeliveryDay = &wd
	}
	u.DeliveryTime = trimClock(deliveryTime.String)
	return u, nil
}

// trimClock reduces "09:00:00" from a TIME column to "09:00"
func trimClock(s string) string {
	if len(s) > 5 && s[2] == ':' {
		return s[:5]
	}
	return s
}

// sqlSentArticleRepo implements SentArticleRepository
type sqlSentArticleRepo struct {
	conn
}

func (r *sqlSentArticleRepo) CreateIfAbsent(ctx context.Context, sent *core.SentArticle) (bool, error) {
	builder := r.sb().Insert("sent_articles").
		Columns("id", "article_id", "user_email", "sent_at", "topic_category", "article_title").
		Values(uuid.NewString(), sent.ArticleID, sent.UserEmail, utc(sent.SentAt), sent.TopicCategory, sent.ArticleTitle).
		Suffix(fmt.Sprintf(onConflictDoNothing, "article_id, user_email"))

	inserted, err := execInsertIfAbsent(ctx, r.conn, builder)
	if err != nil {
		return false, fmt.Errorf("failed to record sent article %s for %s: %w", sent.ArticleID, sent.UserEmail, err)
	}
	return inserted, nil
}

func (r *sqlSentArticleRepo) ArticleIDsForUser(ctx context.Context, email string) ([]string, error) {
	query, args, err := r.sb().Select("article_id").From("sent_articles").
		Where(sq.Eq{"user_email": email}).
		OrderBy("article_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent articles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sent article: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// sqlDeliveryRepo implements DeliveryRepository
type sqlDeliveryRepo struct {
	conn
}

var deliveryColumns = []string{"id", "user_email", "delivery_date", "article_count", "status", "error_message", "created_at", "sent_at"}

func (r *sqlDeliveryRepo) Create(ctx context.Context, d *core.NewsletterDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = utc(d.CreatedAt)

	var errMsg interface{}
	if d.ErrorMessage != nil {
		errMsg = *d.ErrorMessage
	}
	var sentAt interface{}
	if d.SentAt != nil {
		sentAt = d.SentAt.UTC()
	}

	query, args, err := r.sb().Insert("newsletter_deliveries").
		Columns(deliveryColumns...).
		Values(d.ID, d.UserEmail, d.DeliveryDate, d.ArticleCount, string(d.Status), errMsg, d.CreatedAt, sentAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.query().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert delivery for %s: %w", d.UserEmail, err)
	}
	return nil
}

func (r *sqlDeliveryRepo) HasSent(ctx context.Context, email, date string) (bool, error) {
	query, args, err := r.sb().Select("1").From("newsletter_deliveries").
		Where(sq.Eq{"user_email": email, "delivery_date": date, "status": string(core.DeliverySent)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = r.query().QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check delivery for %s: %w", email, err)
	}
	return true, nil
}

func (r *sqlDeliveryRepo) ListByDate(ctx context.Context, date string) ([]core.NewsletterDelivery, error) {
	return r.list(ctx, r.sb().Select(deliveryColumns...).From("newsletter_deliveries").
		Where(sq.Eq{"delivery_date": date}).
		OrderBy("created_at DESC", "id ASC"))
}

func (r *sqlDeliveryRepo) ListByUser(ctx context.Context, email string, limit int) ([]core.NewsletterDelivery, error) {
	builder := r.sb().Select(deliveryColumns...).From("newsletter_deliveries").
		Where(sq.Eq{"user_email": email}).
		OrderBy("created_at DESC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.list(ctx, builder)
}

func (r *sqlDeliveryRepo) list(ctx context.Context, builder sq.SelectBuilder) ([]core.NewsletterDelivery, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []core.NewsletterDelivery
	for rows.Next() {
		var (
			d      core.NewsletterDelivery
			date   dateValue
			status string
			errMsg sql.NullString
			sentAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.UserEmail, &date, &d.ArticleCount, &status, &errMsg, &d.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.DeliveryDate = date.s
		d.Status = core.DeliveryStatus(status)
		if errMsg.Valid {
			msg := errMsg.String
			d.ErrorMessage = &msg
		}
		if sentAt.Valid {
			t := sentAt.Time.UTC()
			d.SentAt = &t
		}
		d.CreatedAt = d.CreatedAt.UTC()
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
