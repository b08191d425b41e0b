// Package output renders cmd/bur's command results as a table, JSON,
// or YAML, depending on the user's --output flag.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format is one of the renderings a Printer supports.
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a --output flag value, defaulting to FormatTable
// for anything unrecognized.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer renders command results in its configured Format.
type Printer struct {
	format  Format
	writer  io.Writer
	noColor bool
}

func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

func (p *Printer) SetWriter(w io.Writer) { p.writer = w }

// Print renders data as JSON or YAML, whichever p.format names;
// callers that also support a table rendering check p.format
// themselves first and only fall back to Print for JSON/YAML.
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		return p.printJSON(data)
	case FormatYAML:
		return p.printYAML(data)
	default:
		return p.printJSON(data)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// ModuleRow is one row of `bur module list`'s table output.
type ModuleRow struct {
	Path          string `json:"path" yaml:"path"`
	LatestVersion int    `json:"latest_version" yaml:"latest_version"`
	Updated       string `json:"updated" yaml:"updated"`
}

func (p *Printer) PrintModules(rows []ModuleRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No modules published")
		return nil
	}
	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "PATH\tLATEST VERSION\tUPDATED"))
	for _, row := range rows {
		fmt.Fprintf(w, "%s\tv%d\t%s\n", p.Colorize(Cyan, row.Path), row.LatestVersion, row.Updated)
	}
	return w.Flush()
}

// ModuleVersionRow is one row of `bur module get --all-versions`.
type ModuleVersionRow struct {
	Path     string `json:"path" yaml:"path"`
	Version  int    `json:"version" yaml:"version"`
	CodeHash string `json:"code_hash" yaml:"code_hash"`
	Created  string `json:"created" yaml:"created"`
}

func (p *Printer) PrintModuleVersions(rows []ModuleVersionRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No versions found")
		return nil
	}
	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "VERSION\tCODE HASH\tCREATED"))
	for _, row := range rows {
		fmt.Fprintf(w, "v%d\t%s\t%s\n", row.Version, row.CodeHash, row.Created)
	}
	return w.Flush()
}

// ModuleDetail is `bur module get <path>`'s full-detail rendering.
type ModuleDetail struct {
	Path     string `json:"path" yaml:"path"`
	Version  int    `json:"version" yaml:"version"`
	CodeHash string `json:"code_hash" yaml:"code_hash"`
	Source   string `json:"source" yaml:"source"`
	Created  string `json:"created" yaml:"created"`
}

func (p *Printer) PrintModuleDetail(d ModuleDetail) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(d)
	}
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Path:"), p.Colorize(Cyan, d.Path))
	fmt.Fprintf(p.writer, "  %s v%d\n", p.Colorize(Gray, "Version:"), d.Version)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Code Hash:"), d.CodeHash)
	fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "Created:"), d.Created)
	fmt.Fprintf(p.writer, "  %s\n%s\n", p.Colorize(Gray, "Source:"), d.Source)
	return nil
}

// ExecuteResult is `bur run`/`bur compile`'s result rendering.
type ExecuteResult struct {
	Path       string `json:"path" yaml:"path"`
	Success    bool   `json:"success" yaml:"success"`
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Result     string `json:"result,omitempty" yaml:"result,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

func (p *Printer) PrintExecuteResult(r ExecuteResult) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(r)
	}
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Module:"), r.Path)
	fmt.Fprintf(p.writer, "%s %d ms\n", p.Colorize(Bold, "Duration:"), r.DurationMs)
	if !r.Success {
		fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Error:"), p.Colorize(Red, r.Error))
		return nil
	}
	fmt.Fprintf(p.writer, "%s %s = %s\n", p.Colorize(Bold, "Export:"), p.Colorize(Green, r.Kind), r.Result)
	return nil
}

func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintln(p.writer, p.Colorize(Green, "✓ ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintln(p.writer, p.Colorize(Red, "✗ ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Warning(format string, args ...interface{}) {
	fmt.Fprintln(p.writer, p.Colorize(Yellow, "⚠ ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintln(p.writer, p.Colorize(Blue, "ℹ ")+fmt.Sprintf(format, args...))
}
