// Package reporting renders valuation reports into shareable documents and
// persists them to object storage.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/pkg/errors"
)

// Format selects the report output format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat normalizes a format string, defaulting to HTML.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown
	case "json":
		return FormatJSON
	default:
		return FormatHTML
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/html; charset=utf-8"
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	default:
		return "html"
	}
}

// ReportData is the template binding for one rendered report.
type ReportData struct {
	Title       string
	VIN         string
	Vehicle     string
	Status      string
	BaseValue   float64
	BaseSource  string
	FinalValue  float64
	Confidence  int
	RangeLow    int
	RangeHigh   int
	Adjustments []domain.Adjustment
	Listings    []domain.MarketListing
	Explanation string
	GeneratedAt time.Time
}

const htmlTemplateSrc = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2rem auto; max-width: 52rem; color: #1a1a1a; }
h1 { font-size: 1.5rem; border-bottom: 2px solid #2c5282; padding-bottom: .5rem; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #e2e8f0; }
th { background: #f7fafc; }
.final { font-size: 1.8rem; font-weight: 700; color: #2c5282; }
.negative { color: #c53030; }
.positive { color: #276749; }
.muted { color: #718096; font-size: .85rem; }
</style>
</head>
<body>
<h1>{{ .Title }}</h1>
{{ if .VIN }}<p class="muted">VIN {{ .VIN }}</p>{{ end }}
<p class="final">{{ dollars .FinalValue }}</p>
<p>Range {{ dollarsInt .RangeLow }} to {{ dollarsInt .RangeHigh }} &middot; confidence {{ .Confidence }}/100</p>
<table>
<tr><th>Base value ({{ .BaseSource }})</th><td>{{ dollars .BaseValue }}</td></tr>
{{ range .Adjustments }}<tr><th>{{ .Factor }}</th><td class="{{ impactClass .Impact }}">{{ signedDollars .Impact }}</td></tr>
{{ end }}<tr><th>Final value</th><td>{{ dollars .FinalValue }}</td></tr>
</table>
{{ if .Listings }}<h2>Comparable listings ({{ len .Listings }})</h2>
<table>
<tr><th>Source</th><th>Price</th><th>Mileage</th></tr>
{{ range .Listings }}<tr><td>{{ .Source }}</td><td>{{ dollars .Price }}</td><td>{{ if .Mileage }}{{ miles .Mileage }}{{ else }}&mdash;{{ end }}</td></tr>
{{ end }}</table>{{ end }}
<p>{{ .Explanation }}</p>
<p class="muted">Generated {{ .GeneratedAt.Format "2006-01-02 15:04 UTC" }}</p>
</body>
</html>
`

const markdownTemplateSrc = `# {{ .Title }}

{{ if .VIN }}VIN: {{ .VIN }}
{{ end }}
**Estimated value: {{ dollars .FinalValue }}** (range {{ dollarsInt .RangeLow }} to {{ dollarsInt .RangeHigh }}, confidence {{ .Confidence }}/100)

| Factor | Impact |
| --- | --- |
| Base value ({{ .BaseSource }}) | {{ dollars .BaseValue }} |
{{ range .Adjustments }}| {{ .Factor }} | {{ signedDollars .Impact }} |
{{ end }}| Final value | {{ dollars .FinalValue }} |

{{ .Explanation }}

Generated {{ .GeneratedAt.Format "2006-01-02 15:04 UTC" }}
`

// TemplateEngine renders ReportData in the supported formats.  Templates are
// parsed once at construction.
type TemplateEngine struct {
	html     *template.Template
	markdown *texttemplate.Template
}

// NewTemplateEngine parses the built-in templates.
func NewTemplateEngine() (*TemplateEngine, error) {
	htmlFuncs := template.FuncMap(templateFuncs())
	h, err := template.New("report.html").Funcs(htmlFuncs).Parse(htmlTemplateSrc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to parse html template")
	}
	m, err := texttemplate.New("report.md").Funcs(templateFuncs()).Parse(markdownTemplateSrc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to parse markdown template")
	}
	return &TemplateEngine{html: h, markdown: m}, nil
}

// Render produces the document bytes for the requested format.
func (e *TemplateEngine) Render(data *ReportData, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to encode report json")
		}
	case FormatMarkdown:
		if err := e.markdown.Execute(&buf, data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to render markdown report")
		}
	default:
		if err := e.html.Execute(&buf, data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeReportRenderFailed, "failed to render html report")
		}
	}
	return buf.Bytes(), nil
}

// BuildReportData maps a completed valuation onto the template binding.
func BuildReportData(dto *appvaluation.ValuationDTO) (*ReportData, error) {
	if dto == nil || dto.Report == nil {
		return nil, errors.New(errors.ErrCodeReportRenderFailed, "valuation has no report")
	}
	r := dto.Report
	vehicleName := strings.TrimSpace(fmt.Sprintf("%d %s %s %s",
		dto.Facts.Year, dto.Facts.Make, dto.Facts.Model, dto.Facts.Trim))
	return &ReportData{
		Title:       "Vehicle Valuation Report: " + vehicleName,
		VIN:         dto.Facts.VIN,
		Vehicle:     vehicleName,
		Status:      dto.Status,
		BaseValue:   r.BaseValue,
		BaseSource:  string(r.BaseValueSource),
		FinalValue:  r.FinalValue,
		Confidence:  r.ConfidenceScore,
		RangeLow:    r.PriceRange.Low,
		RangeHigh:   r.PriceRange.High,
		Adjustments: r.Adjustments,
		Listings:    r.UsedListings,
		Explanation: r.Explanation,
		GeneratedAt: r.GeneratedAt,
	}, nil
}

func templateFuncs() map[string]any {
	return map[string]any{
		"dollars": func(v float64) string {
			return "$" + groupThousands(int(v))
		},
		"dollarsInt": func(v int) string {
			return "$" + groupThousands(v)
		},
		"signedDollars": func(v int) string {
			if v < 0 {
				return "-$" + groupThousands(-v)
			}
			return "+$" + groupThousands(v)
		},
		"miles": func(v *int) string {
			if v == nil {
				return ""
			}
			return groupThousands(*v) + " mi"
		},
		"impactClass": func(v int) string {
			if v < 0 {
				return "negative"
			}
			return "positive"
		},
	}
}

func groupThousands(v int) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	rem := len(s) % 3
	if rem > 0 {
		b.WriteString(s[:rem])
	}
	for i := rem; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
