package listings

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/types"
)

// MaxPromptChars bounds the listing body embedded in a completion prompt.
const MaxPromptChars = 8000

// RenderForPrompt renders a listing as Markdown for a completion prompt. The HTML
// body is preferred because it keeps list structure; the plain description is the
// fallback.
func RenderForPrompt(l types.JobListing) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", l.Title)
	if l.Company != "" {
		fmt.Fprintf(&sb, "Company: %s\n", l.Company)
	}
	if l.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", l.Location)
	}
	if l.Salary != nil {
		fmt.Fprintf(&sb, "Salary: %.0f %s\n", *l.Salary, l.Currency)
	}
	sb.WriteString("\n")

	body := l.Description
	if l.DescriptionHTML != "" {
		if md, err := htmltomarkdown.ConvertString(l.DescriptionHTML); err == nil && strings.TrimSpace(md) != "" {
			body = md
		}
	}
	sb.WriteString(logging.Truncate(body, MaxPromptChars))
	return sb.String()
}
