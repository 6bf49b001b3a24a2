// Package output renders certificates, trust lists and stored entries for
// the terminal.
package output

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/popsu/covidpass/internal/claims"
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/store"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/verify"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	valueColor   = color.New(color.FgWhite)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

// Options control how values are printed.
type Options struct {
	JSON    bool
	Verbose bool
}

// Printer writes human readable or JSON output.
type Printer struct {
	w    io.Writer
	opts Options
	// now anchors relative times.
	now func() time.Time
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer, opts Options) *Printer {
	return &Printer{w: w, opts: opts, now: time.Now}
}

// WithNow returns a copy of p anchoring relative times at now.
func (p *Printer) WithNow(now time.Time) *Printer {
	cp := *p
	cp.now = func() time.Time { return now }
	return &cp
}

// CertificateJSON is the JSON form of a checked certificate.
type CertificateJSON struct {
	Source      string               `json:"source,omitempty"`
	Verified    bool                 `json:"verified"`
	Outcome     string               `json:"outcome"`
	Message     string               `json:"message,omitempty"`
	Expired     bool                 `json:"expired"`
	Issuer      string               `json:"issuer"`
	IssuedAt    time.Time            `json:"issuedAt"`
	Expiration  time.Time            `json:"expiration"`
	Record      *claims.HealthRecord `json:"record"`
	Result      *verify.Result       `json:"result,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
	Certificate string               `json:"raw,omitempty"`
}

// BuildCertificateJSON returns the JSON form of cert read from source.
func BuildCertificateJSON(source string, cert *dgc.Certificate, verbose bool) CertificateJSON {
	out := CertificateJSON{
		Source:     source,
		Verified:   cert.Verified(),
		Outcome:    "unverified",
		Issuer:     cert.Claims.Issuer,
		IssuedAt:   cert.Claims.IssuedAt,
		Expiration: cert.Claims.Expiration,
		Record:     cert.Record,
		Warnings:   cert.Warnings,
	}
	if cert.Result != nil {
		out.Outcome = cert.Result.Outcome.String()
		out.Message = cert.Result.Outcome.Describe()
		out.Expired = cert.Result.Expired
		if verbose {
			out.Result = cert.Result
		}
	}
	if verbose {
		out.Certificate = cert.Raw
	}
	return out
}

// PrintCertificate prints a decoded certificate and, when it was checked,
// its verification status. Content of unverified certificates is marked.
func (p *Printer) PrintCertificate(source string, cert *dgc.Certificate) {
	if p.opts.JSON {
		PrintJSON(p.w, BuildCertificateJSON(source, cert, p.opts.Verbose))
		return
	}

	title := "EU Digital COVID Certificate"
	if source != "" {
		title += " " + dimColor.Sprint(source)
	}
	headerColor.Fprintln(p.w, title)
	headerColor.Fprintln(p.w, strings.Repeat("─", 50))

	p.printStatus(cert)

	r := cert.Record
	p.section("Holder")
	p.kv("Name", r.Name.Full(), 1)
	if r.Name.ForenameStandardized != "" || r.Name.SurnameStandardized != "" {
		p.kv("Standardized", strings.TrimSpace(r.Name.ForenameStandardized+" "+r.Name.SurnameStandardized), 1)
	}
	p.kv("Date of birth", r.DateOfBirth, 1)

	for i, v := range r.Vaccinations {
		p.section(fmt.Sprintf("Vaccination %d", i+1))
		p.kv("Disease", v.Disease.String(), 1)
		p.kv("Dose", fmt.Sprintf("%d of %d", v.DoseNumber, v.TotalSeriesOfDoses), 1)
		p.kv("Date", v.Date, 1)
		p.kv("Vaccine", v.VaccineOrProphylaxis.String(), 1)
		p.kv("Product", v.MedicinalProduct.String(), 1)
		p.kv("Manufacturer", v.Manufacturer.String(), 1)
		p.kv("Country", v.Country.String(), 1)
		p.kv("Issuer", v.CertificateIssuer, 1)
		p.kv("Identifier", v.UniqueCertificateIdentifier, 1)
	}
	for i, t := range r.Tests {
		p.section(fmt.Sprintf("Test %d", i+1))
		p.kv("Disease", t.Disease.String(), 1)
		p.kv("Type", t.TestType.String(), 1)
		if t.TestName != "" {
			p.kv("Name", t.TestName, 1)
		}
		if t.TestDevice.Code != "" {
			p.kv("Device", t.TestDevice.String(), 1)
		}
		p.kv("Collected", t.SampleCollected, 1)
		p.kv("Result", t.Result.String(), 1)
		if t.TestingCentre != "" {
			p.kv("Centre", t.TestingCentre, 1)
		}
		p.kv("Country", t.Country.String(), 1)
		p.kv("Issuer", t.CertificateIssuer, 1)
		p.kv("Identifier", t.UniqueCertificateIdentifier, 1)
	}
	for i, rec := range r.Recoveries {
		p.section(fmt.Sprintf("Recovery %d", i+1))
		p.kv("Disease", rec.Disease.String(), 1)
		p.kv("First positive", rec.FirstPositiveResultDate, 1)
		p.kv("Valid", rec.CertificateValidFrom+" to "+rec.CertificateValidUntil, 1)
		p.kv("Country", rec.Country.String(), 1)
		p.kv("Issuer", rec.CertificateIssuer, 1)
		p.kv("Identifier", rec.UniqueCertificateIdentifier, 1)
	}

	p.section("Certificate")
	p.kv("Issuing country", cert.Claims.Issuer, 1)
	p.kv("Issued", cert.Claims.IssuedAt.Format(time.RFC3339), 1)
	rel := dimColor.Sprintf(" (%s)", p.relativeTime(cert.Claims.Expiration))
	if cert.Result != nil && cert.Result.Expired {
		warnColor.Fprintf(p.w, "  ⚠ Expired: %s%s\n", cert.Claims.Expiration.Format(time.RFC3339), rel)
	} else {
		p.kv("Expires", cert.Claims.Expiration.Format(time.RFC3339)+rel, 1)
	}

	if len(cert.Warnings) > 0 {
		p.section("Warnings")
		for _, w := range cert.Warnings {
			warnColor.Fprintf(p.w, "  ⚠ %s\n", w)
		}
	}

	fmt.Fprintln(p.w)
}

func (p *Printer) printStatus(cert *dgc.Certificate) {
	p.section("Verification")
	res := cert.Result
	if res == nil {
		warnColor.Fprintln(p.w, "  ⚠ NOT VERIFIED: signature was not checked")
		return
	}
	if cert.Verified() {
		successColor.Fprintln(p.w, "  ✓ VERIFIED")
	} else {
		errorColor.Fprintln(p.w, "  ✗ UNVERIFIED: content below cannot be trusted")
	}
	dimColor.Fprintf(p.w, "  %s\n", res.Outcome.Describe())
	if res.Outcome == verify.Expired || (res.Expired && res.Signature != verify.Valid) {
		dimColor.Fprintf(p.w, "  Signature: %s\n", res.Signature)
	}

	if !p.opts.Verbose {
		return
	}
	p.kv("Algorithm", res.Algorithm.String(), 1)
	if len(res.KeyID) > 0 {
		p.kv("Key ID", hex.EncodeToString(res.KeyID), 1)
	}
	p.kv("Keys tried", fmt.Sprint(res.Candidates), 1)
	if res.SignedBy != nil && res.SignedBy.Subject != "" {
		p.kv("Signed by", res.SignedBy.Subject, 1)
	}
	p.kv("Checked at", res.CheckedAt.Format(time.RFC3339), 1)
}

// PrintTrustList prints the keys of tl and the problems found loading it.
func (p *Printer) PrintTrustList(tl *trustlist.TrustList, report trustlist.LoadReport) {
	if p.opts.JSON {
		out := map[string]any{
			"keys":    tl.Keys(),
			"added":   report.Added,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}
		if len(report.Errors) > 0 {
			errs := make([]map[string]any, 0, len(report.Errors))
			for _, e := range report.Errors {
				errs = append(errs, map[string]any{"line": e.Line, "error": e.Err.Error()})
			}
			out["errors"] = errs
		}
		PrintJSON(p.w, out)
		return
	}

	headerColor.Fprintf(p.w, "Trust List (%d keys)\n", tl.Len())
	headerColor.Fprintln(p.w, strings.Repeat("─", 50))
	for i, k := range tl.Keys() {
		dimColor.Fprintf(p.w, "  [%d] ", i+1)
		labelColor.Fprintf(p.w, "%s ", hex.EncodeToString(k.KeyID))
		fmt.Fprintf(p.w, "%s %s\n", k.Type, k.Source)
		if k.Subject != "" {
			dimColor.Fprintf(p.w, "      %s\n", k.Subject)
			if p.opts.Verbose {
				dimColor.Fprintf(p.w, "      valid %s to %s\n", k.NotBefore.Format(time.DateOnly), k.NotAfter.Format(time.DateOnly))
			}
		}
	}
	if report.Failed > 0 {
		p.section(fmt.Sprintf("Skipped entries (%d)", report.Failed))
		for _, e := range report.Errors {
			warnColor.Fprintf(p.w, "  ⚠ line %d: %v\n", e.Line, e.Err)
		}
	}
	fmt.Fprintln(p.w)
}

// PrintEntries prints stored certificates.
func (p *Printer) PrintEntries(entries []store.Entry) {
	if p.opts.JSON {
		if entries == nil {
			entries = []store.Entry{}
		}
		PrintJSON(p.w, entries)
		return
	}

	headerColor.Fprintf(p.w, "Stored certificates (%d)\n", len(entries))
	headerColor.Fprintln(p.w, strings.Repeat("─", 50))
	for _, e := range entries {
		labelColor.Fprintf(p.w, "  %s ", e.ID)
		fmt.Fprintf(p.w, "%s (%s) ", e.FullName, e.DateOfBirth)
		c := successColor
		if e.Outcome != verify.Valid.String() {
			c = errorColor
		}
		c.Fprintln(p.w, e.Outcome)
		dimColor.Fprintf(p.w, "      issued by %s, expires %s\n", e.Issuer, e.Expiration.Format(time.DateOnly))
	}
}

// PrintError prints an error message.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", errorColor.Sprint("Error:"), msg)
}

func (p *Printer) section(title string) {
	fmt.Fprintln(p.w)
	headerColor.Fprintf(p.w, "┌ %s\n", title)
}

func (p *Printer) kv(key, value string, indent int) {
	prefix := strings.Repeat("  ", indent)
	labelColor.Fprintf(p.w, "%s%s: ", prefix, key)
	valueColor.Fprintln(p.w, value)
}

// relativeTime returns "in X units" for future times and "X units ago"
// for past ones.
func (p *Printer) relativeTime(t time.Time) string {
	d := t.Sub(p.now())
	if d < 0 {
		return formatDuration(-d) + " ago"
	}
	return "in " + formatDuration(d)
}

func formatDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= 730*day:
		return fmt.Sprintf("%d years", int(d/(365*day)))
	case d >= 60*day:
		return fmt.Sprintf("%d months", int(d/(30*day)))
	case d >= 2*day:
		return fmt.Sprintf("%d days", int(d/day))
	case d >= day:
		return "1 day"
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= time.Hour:
		return "1 hour"
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "1 minute"
	}
}
