package extract

import (
	"strings"
	"testing"
)

// TestMarkdownText_StripsSyntax verifies formatting is removed but content kept.
func TestMarkdownText_StripsSyntax(t *testing.T) {
	input := `# Billing FAQ

Refunds are processed within **14 days** of a request.

## Contact

See [support](https://example.com/support) for details.

` + "```" + `
curl -X POST /refunds
` + "```" + `
`

	out, err := Text("text/markdown", []byte(input))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}

	for _, want := range []string{
		"Billing FAQ",
		"Refunds are processed within 14 days of a request.",
		"support",
		"curl -X POST /refunds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"# ", "**", "](", "```"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("Output still contains markdown syntax %q:\n%s", unwanted, out)
		}
	}
}

// TestText_PlainPassthrough verifies non-markdown content is untouched.
func TestText_PlainPassthrough(t *testing.T) {
	raw := "line one\nline two # not a heading\n"
	out, err := Text("text/plain", []byte(raw))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if out != raw {
		t.Errorf("Plain text altered: %q", out)
	}
}

func TestMediaType(t *testing.T) {
	cases := map[string]string{
		"notes.md":   "text/markdown",
		"Guide.MD":   "text/markdown",
		"readme.txt": "text/plain",
		"data.csv":   "text/csv",
		"unknown":    "text/plain",
	}
	for name, want := range cases {
		if got := MediaType(name); got != want {
			t.Errorf("MediaType(%q) = %q, want %q", name, got, want)
		}
	}
}
