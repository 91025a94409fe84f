package bookmark

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		check func(t *testing.T, id, title string, authors []string)
	}{
		{
			name:  "numeric id",
			input: map[string]any{"id": float64(1234), "title": "T"},
			check: func(t *testing.T, id, title string, authors []string) {
				if id != "1234" {
					t.Errorf("ID = %q, want %q", id, "1234")
				}
			},
		},
		{
			name:  "single author string",
			input: map[string]any{"id": "p1", "authors": "Solo Author"},
			check: func(t *testing.T, id, title string, authors []string) {
				if len(authors) != 1 || authors[0] != "Solo Author" {
					t.Errorf("Authors = %v, want [Solo Author]", authors)
				}
			},
		},
		{
			name:  "non-string title",
			input: map[string]any{"id": "p1", "title": map[string]any{"en": "T"}},
			check: func(t *testing.T, id, title string, authors []string) {
				if title != "" {
					t.Errorf("Title = %q, want empty", title)
				}
				if authors == nil || len(authors) != 0 {
					t.Errorf("Authors = %v, want empty slice", authors)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Normalize(tt.input)
			tt.check(t, b.ID, b.Title, b.Authors)
		})
	}
}
