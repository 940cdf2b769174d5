// Package certificate renders a finalized record and its recent history as a
// plain-text detection certificate.
package certificate

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/history"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

const width = 72

// Profile is the certificate holder as shown on the document.
type Profile struct {
	Name  string
	Email string
}

// Document is a rendered certificate.
type Document struct {
	ID       string
	Filename string
	Body     []byte
}

var (
	printer = message.NewPrinter(language.English)
	upper   = cases.Upper(language.English)
	title   = cases.Title(language.English)
)

// NewID returns an id of the form MG-<unix ms>-<9 upper-case hex digits>.
func NewID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("MG-%d-%s", now.UnixMilli(), strings.ToUpper(hex[:9]))
}

// Filename is MicroGuard_<Type>_Certificate_<YYYY-MM-DD>.txt for the record's UTC date.
func Filename(rec domain.DetectionRecord) string {
	return fmt.Sprintf("MicroGuard_%s_Certificate_%s.txt", rec.Category.DisplayName(), rec.Timestamp.UTC().Format("2006-01-02"))
}

// Render builds the certificate for rec. priors may hold any of the actor's
// records; only up to three distinct same-category ones are listed under it.
func Render(rec domain.DetectionRecord, priors []domain.DetectionRecord, profile Profile, now time.Time) Document {
	id := NewID(now)
	rows := append([]domain.DetectionRecord{rec}, history.ForCertificate(rec, priors)...)

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = "User"
	}

	var b bytes.Buffer
	rule := strings.Repeat("=", width)
	b.WriteString(rule + "\n")
	center(&b, "MICROGUARD")
	center(&b, "Microplastic Detection Certificate")
	b.WriteString(rule + "\n\n")

	center(&b, "This is to certify that")
	center(&b, title.String(name))
	if profile.Email != "" {
		center(&b, profile.Email)
	}
	center(&b, "has completed a microplastic detection test with the following results:")
	b.WriteString("\n")

	fmt.Fprintf(&b, "  Detection Type:  %s Sample Analysis\n", rec.Category.DisplayName())
	fmt.Fprintf(&b, "  Concentration:   %s\n", level(rec.Reading.Level))
	fmt.Fprintf(&b, "  Risk:            %s RISK\n", upper.String(string(rec.Classification.Tier)))
	fmt.Fprintf(&b, "  Next Test:       %s\n\n", rec.NextTestDate.UTC().Format("Jan 2, 2006"))

	if s := strings.TrimSpace(rec.Classification.Summary); s != "" {
		fmt.Fprintf(&b, "  Summary: %s\n", s)
	}
	if s := strings.TrimSpace(rec.Classification.Impact); s != "" {
		fmt.Fprintf(&b, "  Health Impact: %s\n", s)
	}
	if len(rec.Classification.Remedies) > 0 {
		b.WriteString("  Recommended Actions:\n")
		for i, r := range rec.Classification.Remedies {
			fmt.Fprintf(&b, "    %d. %s\n", i+1, r)
		}
	}
	b.WriteString("\n  Recent Test History:\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "  Date\tType\tLevel\tRisk")
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format("Jan 2, 2006"),
			r.Category.DisplayName(),
			level(r.Reading.Level),
			upper.String(string(r.Classification.Tier)))
	}
	_ = tw.Flush()

	b.WriteString("\n" + strings.Repeat("-", width) + "\n")
	fmt.Fprintf(&b, "  Certificate ID: %s\n", id)
	fmt.Fprintf(&b, "  Issue Date:     %s\n", rec.Timestamp.UTC().Format("January 2, 2006 15:04 MST"))
	b.WriteString("  Digitally Verified\n\n")
	center(&b, "This certificate is generated by MicroGuard AI-Powered Detection System")
	center(&b, "For verification, quote the Certificate ID")

	return Document{ID: id, Filename: Filename(rec), Body: b.Bytes()}
}

func level(v float64) string {
	return printer.Sprintf("%v%%", v)
}

func center(b *bytes.Buffer, s string) {
	if pad := (width - len(s)) / 2; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(s + "\n")
}
