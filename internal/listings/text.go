package listings

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLineRun = regexp.MustCompile(`\n\n\n+`)
)

// CleanText normalizes line endings, collapses runs of spaces inside lines and
// limits blank lines to one, keeping bullet and heading lines intact.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := strings.Join(lines, "\n")
	result = blankLineRun.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	for _, bullet := range []string{"• ", "· ", "* "} {
		if strings.HasPrefix(trimmed, bullet) {
			trimmed = "- " + strings.TrimSpace(strings.TrimPrefix(trimmed, bullet))
			break
		}
	}
	return spaceRun.ReplaceAllString(trimmed, " ")
}

// blockElements end a line when converting HTML to text.
const blockElements = "p, div, li, br, h1, h2, h3, h4, h5, h6, tr, section, article, ul, ol"

// HTMLToText converts a posting's HTML body to plain text. List items become
// "- " bullets and block elements become line breaks.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, form, nav, footer").Remove()
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return CleanText(doc.Text()), nil
}
