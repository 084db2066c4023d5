package categorization

import "strings"

// Categorizer maps article text to a topic label with keyword rules
type Categorizer struct {
	categories   []Category
	defaultLabel string
}

// NewCategorizer creates a categorizer over the given rules, falling back to DefaultCategories
func NewCategorizer(categories []Category) *Categorizer {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}

	normalized := make([]Category, len(categories))
	for i, cat := range categories {
		keywords := make([]string, len(cat.Keywords))
		for j, kw := range cat.Keywords {
			keywords[j] = strings.ToLower(kw)
		}
		normalized[i] = Category{Name: cat.Name, Icon: cat.Icon, Keywords: keywords}
	}

	return &Categorizer{
		categories:   normalized,
		defaultLabel: DefaultLabel,
	}
}

// Categorize returns the first category whose keywords occur in title or content.
// Matching is a case-insensitive substring test; "ai" matches inside "said".
func (c *Categorizer) Categorize(title, content string) string {
	text := strings.ToLower(title + " " + content)

	for _, cat := range c.categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				return cat.Name
			}
		}
	}

	return c.defaultLabel
}

// Categories returns the rules in precedence order.
func (c *Categorizer) Categories() []Category {
	return c.categories
}
