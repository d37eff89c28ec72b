package listings

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_Valid(t *testing.T) {
	salary := 95000.0
	raw := RawPosting{
		SourceID:    "gh-42",
		Title:       "  Senior   Go Engineer ",
		Company:     " Acme ",
		Location:    "Berlin,   Germany",
		Description: "Build   services.\r\n\r\n\r\n\r\n• Go\n• Postgres",
		URL:         "https://jobs.example.com/42",
		PostedAt:    "2026-02-20",
		Salary:      &salary,
		Currency:    "eur",
	}

	l, err := Normalize("greenhouse", raw, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "Senior Go Engineer", l.Title)
	assert.Equal(t, "Acme", l.Company)
	assert.Equal(t, "Berlin, Germany", l.Location)
	assert.Equal(t, "Build services.\n\n- Go\n- Postgres", l.Description)
	assert.Equal(t, "EUR", l.Currency)
	require.NotNil(t, l.Salary)
	assert.Equal(t, 95000.0, *l.Salary)
	require.NotNil(t, l.PostedAt)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), *l.PostedAt)
	assert.Equal(t, ListingID("greenhouse", "gh-42", raw.URL), l.ID)
	assert.Equal(t, fixedNow, l.CreatedAt)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawPosting
		field string
	}{
		{"empty title", RawPosting{Title: "  ", URL: "https://x.example/1"}, "title"},
		{"missing url", RawPosting{Title: "Engineer"}, "url"},
		{"relative url", RawPosting{Title: "Engineer", URL: "/jobs/1"}, "url"},
		{"non http url", RawPosting{Title: "Engineer", URL: "mailto:jobs@example.com"}, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize("feed", tt.raw, fixedNow)
			require.Error(t, err)

			var normErr *NormalizeError
			require.True(t, errors.As(err, &normErr))
			assert.Equal(t, tt.field, normErr.Field)
			assert.Equal(t, "feed", normErr.Source)
		})
	}
}

func TestNormalize_HTMLFallbackAndBestEffortFields(t *testing.T) {
	zero := 0.0
	raw := RawPosting{
		Title:           "Data Engineer",
		URL:             "https://x.example/de",
		DescriptionHTML: "<div><p>We use <b>Spark</b>.</p><ul><li>Python</li><li>SQL</li></ul><script>alert(1)</script></div>",
		PostedAt:        "last week",
		Salary:          &zero,
	}

	l, err := Normalize("feed", raw, fixedNow)
	require.NoError(t, err)
	assert.Contains(t, l.Description, "We use Spark.")
	assert.Contains(t, l.Description, "- Python")
	assert.Contains(t, l.Description, "- SQL")
	assert.NotContains(t, l.Description, "alert")
	assert.Nil(t, l.PostedAt, "unparseable dates are dropped")
	assert.Nil(t, l.Salary, "non-positive salaries are dropped")
}

func TestParsePosted_Layouts(t *testing.T) {
	for _, v := range []string{"2026-02-20T10:00:00Z", "2026-02-20 10:00:00", "Fri, 20 Feb 2026 10:00:00 GMT", "Feb 20, 2026"} {
		got := parsePosted(v)
		require.NotNil(t, got, v)
		assert.Equal(t, 2026, got.Year(), v)
		assert.Equal(t, time.February, got.Month(), v)
	}
}

func TestListingID_Stable(t *testing.T) {
	a := ListingID("Lever", "1", "https://a")
	assert.Equal(t, a, ListingID("lever", "1", "https://b"), "source id wins over url")
	assert.NotEqual(t, a, ListingID("lever", "2", "https://a"))
	assert.Equal(t, ListingID("feed", "", "https://a"), ListingID("feed", "", " https://a "))
}
