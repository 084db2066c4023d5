package categorization

// DefaultLabel is assigned when no rule matches.
const DefaultLabel = "General Streaming Industry"

// Category is one keyword rule in the ordered rule table
type Category struct {
	Name     string
	Icon     string
	Keywords []string // Lowercase substrings; any match selects the category
}

// DefaultCategories returns the rule table in precedence order. Earlier rules win.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "Gen AI in Content",
			Icon:     "🤖",
			Keywords: []string{"ai", "artificial intelligence", "machine learning"},
		},
		{
			Name:     "Dubbing Technology",
			Icon:     "🎙️",
			Keywords: []string{"dub", "localization", "translation"},
		},
		{
			Name:     "Production Tools",
			Icon:     "🎬",
			Keywords: []string{"production", "post-production", "editing"},
		},
		{
			Name:     "Streaming Platforms",
			Icon:     "📺",
			Keywords: []string{"netflix", "disney", "amazon", "prime"},
		},
	}
}

// GetCategoryByName returns a category by its name, or nil if not found
func GetCategoryByName(name string, categories []Category) *Category {
	for _, cat := range categories {
		if cat.Name == name {
			return &cat
		}
	}
	return nil
}

// IconFor returns the icon for a label, with a generic icon for the default label.
func IconFor(name string) string {
	if cat := GetCategoryByName(name, DefaultCategories()); cat != nil {
		return cat.Icon
	}
	return "📌"
}
