package textutil

import "testing"

func TestSanitizePlain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text passes through", "please deliver after 6pm", "please deliver after 6pm"},
		{"strips markup", "<script>alert(1)</script>leave at the door", "leave at the door"},
		{"strips tags keeps text", "<b>fragile</b> items", "fragile items"},
		{"collapses whitespace", "  ring   the\tbell \n twice ", "ring the bell twice"},
		{"unescapes entities", "cash &amp; carry", "cash & carry"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePlain(tt.input); got != tt.want {
				t.Errorf("SanitizePlain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizePlainMax(t *testing.T) {
	if got := SanitizePlainMax("a very long delivery note", 6); got != "a very" {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := SanitizePlainMax("short", 0); got != "short" {
		t.Errorf("max 0 should not truncate, got %q", got)
	}
	if got := SanitizePlainMax("short", 100); got != "short" {
		t.Errorf("unexpected result %q", got)
	}
}
