package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"techdigest/internal/core"
)

// NewsletterConfig is the seed file listing feeds and subscribers
type NewsletterConfig struct {
	RSSSources []SeedSource `yaml:"rss_sources" validate:"dive"`
	Users      []SeedUser   `yaml:"users" validate:"dive"`
}

// SeedSource is one feed entry in the seed file
type SeedSource struct {
	Name     string `yaml:"name" validate:"required"`
	URL      string `yaml:"url" validate:"required,url"`
	Category string `yaml:"category"`
	Type     string `yaml:"type"`
	Active   bool   `yaml:"active"`
}

// SeedUser is one subscriber entry in the seed file
type SeedUser struct {
	Email        string   `yaml:"email" validate:"required,email"`
	Name         string   `yaml:"name"`
	Topics       []string `yaml:"topics"`
	Frequency    string   `yaml:"frequency"`
	DeliveryDay  string   `yaml:"delivery_day"`
	DeliveryTime string   `yaml:"delivery_time" validate:"omitempty,datetime=15:04"`
	ArticleCount int      `yaml:"article_count" validate:"omitempty,min=3,max=15"`
}

// LoadNewsletterConfig reads and parses a seed file
func LoadNewsletterConfig(path string) (*NewsletterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read newsletter config %s: %w", path, err)
	}
	return ParseNewsletterConfig(data)
}

// ParseNewsletterConfig parses seed file YAML
func ParseNewsletterConfig(data []byte) (*NewsletterConfig, error) {
	var nc NewsletterConfig
	if err := yaml.Unmarshal(data, &nc); err != nil {
		return nil, fmt.Errorf("%w: invalid newsletter config: %v", core.ErrConfiguration, err)
	}
	return &nc, nil
}

var seedValidator = newSeedValidator()

func newSeedValidator() *validator.Validate {
	v := validator.New()
	// Report YAML key names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every entry and reports all problems at once
func (nc *NewsletterConfig) Validate() error {
	err := seedValidator.Struct(nc)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: invalid newsletter config: %v", core.ErrConfiguration, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "NewsletterConfig.")
		problems = append(problems, fmt.Sprintf("%s %s", field, describe(fe)))
	}
	return fmt.Errorf("%w: invalid newsletter config:\n- %s", core.ErrConfiguration, strings.Join(problems, "\n- "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "datetime":
		return fmt.Sprintf("%q is not a HH:MM time", fe.Value())
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// SeedSources returns the active seed sources. Inactive entries are not seeded.
func (nc *NewsletterConfig) SeedSources() []core.Source {
	var sources []core.Source
	for _, s := range nc.RSSSources {
		if !s.Active {
			continue
		}
		sourceType := core.SourceTypeAggregator
		if strings.EqualFold(s.Type, string(core.SourceTypeFeed)) {
			sourceType = core.SourceTypeFeed
		}
		var keywords []string
		if s.Category != "" {
			keywords = []string{s.Category}
		}
		sources = append(sources, core.Source{
			Name:     s.Name,
			URL:      s.URL,
			Type:     sourceType,
			Category: s.Category,
			Keywords: keywords,
			Active:   true,
		})
	}
	return sources
}

// SeedUsers converts seed users to store records
func (nc *NewsletterConfig) SeedUsers() []core.User {
	users := make([]core.User, 0, len(nc.Users))
	for _, u := range nc.Users {
		user := core.User{
			Email:        strings.TrimSpace(u.Email),
			Name:         u.Name,
			Topics:       u.Topics,
			Frequency:    core.Frequency(strings.ToLower(u.Frequency)),
			DeliveryTime: u.DeliveryTime,
			ArticleCount: u.ArticleCount,
			Active:       true,
		}
		if u.DeliveryDay != "" {
			day := ParseWeekday(u.DeliveryDay)
			user.DeliveryDay = &day
		}
		users = append(users, user)
	}
	return users
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a weekday name to its ordinal. Unknown names map to Monday.
func ParseWeekday(name string) time.Weekday {
	if day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]; ok {
		return day
	}
	return core.DefaultDeliveryDay
}
