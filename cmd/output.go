package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"mediagrab/internal/media"
	"mediagrab/internal/quota"
)

var isTerminal = term.IsTerminal

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// printer renders command results. Styling is applied only when writing
// to a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func stdout() *printer {
	return &printer{w: os.Stdout, styled: isTerminal(int(os.Stdout.Fd()))}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) field(name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(p.w, "  %s %s\n", p.render(mutedStyle, fmt.Sprintf("%-10s", name+":")), value)
}

func (p *printer) response(dir string, r *media.Response) {
	if r.Kind == media.Instructions {
		fmt.Fprintln(p.w, p.render(warnStyle, "Could not fetch "+r.SourceURL))
		p.field("reason", r.ProcessingReason)
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, r.Instructions)
		return
	}

	title := r.Title
	if title == "" {
		title = r.Filename
	}
	status := p.render(okStyle, "fetched")
	if r.FromCache {
		status = p.render(accentStyle, "cached")
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(titleStyle, title), status)
	p.field("id", r.ID)
	p.field("platform", r.Platform.String())
	p.field("kind", string(r.Kind))
	if r.ResolvedQuality != "" {
		q := r.ResolvedQuality
		if r.RequestedQuality != "" && r.RequestedQuality != r.ResolvedQuality {
			q += p.render(mutedStyle, " (asked "+r.RequestedQuality+")")
		}
		p.field("quality", q)
	}
	if r.Platform == media.TikTok && !r.WatermarkFree {
		p.field("note", p.render(warnStyle, "may carry a watermark"))
	}
	p.field("size", formatBytes(r.SizeBytes))
	if r.DownloadRef != nil {
		p.field("file", dir+string(os.PathSeparator)+*r.DownloadRef)
	}
	p.field("save as", r.Filename)
	for _, alt := range r.AlternateFiles {
		p.field(alt.Label, dir+string(os.PathSeparator)+alt.Path)
	}
	if len(r.AvailableQualities) > 0 {
		p.field("available", strings.Join(r.AvailableQualities, " "))
	}
	for _, a := range r.Attempts {
		debugf("attempt %s: %s in %s %s", a.Strategy, a.Outcome, a.Elapsed.Round(time.Millisecond), a.Message)
	}
}

func (p *printer) history(entries []media.Artifact) {
	if len(entries) == 0 {
		fmt.Fprintln(p.w, "No downloads found.")
		return
	}
	if !p.styled {
		for _, a := range entries {
			fmt.Fprintf(p.w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				a.ID, a.CreatedAt.Format(time.RFC3339), a.Platform, a.Kind, a.SizeBytes, a.Status, a.Title)
		}
		return
	}
	for _, a := range entries {
		title := a.Title
		if title == "" {
			title = a.SourceURL
		}
		line := fmt.Sprintf("%s  %s", p.render(titleStyle, title), p.render(mutedStyle, a.ID))
		if a.Status != media.Completed {
			line += " " + p.render(warnStyle, string(a.Status))
		}
		fmt.Fprintln(p.w, line)
		fmt.Fprintf(p.w, "  %s\n", p.render(mutedStyle, fmt.Sprintf("%s · %s · %s · %s",
			a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Platform, a.Kind, formatBytes(a.SizeBytes))))
	}
}

func (p *printer) quota(r quota.Record) {
	fmt.Fprintln(p.w, p.render(titleStyle, r.Identity))
	p.field("role", string(r.Role))
	p.field("used", formatBytes(r.Usage))
	p.field("limit", formatLimit(r.Limit))
}

func formatLimit(limit int64) string {
	if limit == quota.Unlimited {
		return "unlimited"
	}
	return formatBytes(uint64(limit))
}

// formatBytes renders n with binary units, e.g. 1.5 GiB.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
