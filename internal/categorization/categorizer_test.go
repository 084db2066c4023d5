package categorization

import "testing"

func TestCategorize(t *testing.T) {
	c := NewCategorizer(nil)

	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{"gen ai keyword", "Machine Learning for Studios", "", "Gen AI in Content"},
		{"case insensitive", "ARTIFICIAL INTELLIGENCE", "", "Gen AI in Content"},
		{"dubbing", "New dubbing workflow", "", "Dubbing Technology"},
		{"localization in content", "Studio news", "Localization costs drop", "Dubbing Technology"},
		{"production", "Post-production budgets", "", "Production Tools"},
		{"platform", "Netflix subscriber growth", "", "Streaming Platforms"},
		{"default", "Quarterly results", "Revenue grew by ten percent", DefaultLabel},
		{"empty", "", "", DefaultLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Categorize(tt.title, tt.content); got != tt.want {
				t.Errorf("Categorize(%q, %q) = %q, want %q", tt.title, tt.content, got, tt.want)
			}
		})
	}
}

func TestCategorizeRuleOrder(t *testing.T) {
	c := NewCategorizer(nil)

	// Matches both the dubbing and platform rules; dubbing is earlier.
	if got := c.Categorize("Netflix expands dubbing", ""); got != "Dubbing Technology" {
		t.Errorf("Expected Dubbing Technology, got %s", got)
	}

	// "said" contains "ai", so the first rule wins over the platform rule.
	if got := c.Categorize("Netflix said", ""); got != "Gen AI in Content" {
		t.Errorf("Expected Gen AI in Content, got %s", got)
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	c := NewCategorizer(nil)
	first := c.Categorize("Editing suites", "Cloud editing tools")
	for i := 0; i < 10; i++ {
		if got := c.Categorize("Editing suites", "Cloud editing tools"); got != first {
			t.Fatalf("Expected stable result %q, got %q", first, got)
		}
	}
}

func TestCustomCategories(t *testing.T) {
	c := NewCategorizer([]Category{{Name: "Go", Keywords: []string{"GOROUTINE"}}})

	if got := c.Categorize("Leaking goroutines", ""); got != "Go" {
		t.Errorf("Expected Go, got %s", got)
	}
	if got := c.Categorize("Threads", ""); got != DefaultLabel {
		t.Errorf("Expected default label, got %s", got)
	}
}

func TestIconFor(t *testing.T) {
	if IconFor("Streaming Platforms") != "📺" {
		t.Errorf("Expected platform icon, got %s", IconFor("Streaming Platforms"))
	}
	if IconFor(DefaultLabel) != "📌" {
		t.Errorf("Expected fallback icon, got %s", IconFor(DefaultLabel))
	}
}
