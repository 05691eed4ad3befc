package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/tsserver"
)

// Color modes accepted by --color.
const (
	colorAuto = "auto"
	colorOn   = "on"
	colorOff  = "off"
)

// printer writes diagnostics and command results to the output stream. It is
// safe for concurrent use.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	root string

	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	pathColor    *color.Color
}

func newPrinter(out io.Writer, root, mode string) *printer {
	p := &printer{
		out:          out,
		root:         root,
		errorColor:   color.New(color.FgRed, color.Bold),
		warningColor: color.New(color.FgYellow, color.Bold),
		infoColor:    color.New(color.FgBlue),
		pathColor:    color.New(color.Bold),
	}

	enabled := colorEnabled(out, mode)
	for _, c := range []*color.Color{p.errorColor, p.warningColor, p.infoColor, p.pathColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func colorEnabled(out io.Writer, mode string) bool {
	switch mode {
	case colorOn:
		return true
	case colorOff:
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// displayPath shows file resources relative to the workspace root.
func (p *printer) displayPath(uri editor.URI) string {
	path := uri.FSPath()
	if path == "" {
		return uri.String()
	}
	if p.root != "" {
		if rel, err := filepath.Rel(p.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

func (p *printer) categoryColor(category string) *color.Color {
	switch category {
	case "error":
		return p.errorColor
	case "warning":
		return p.warningColor
	default:
		return p.infoColor
	}
}

// diagnostics prints one report: a line per diagnostic, or a single ok line
// when the report is empty so consumers can clear earlier results.
func (p *printer) diagnostics(uri editor.URI, ev tsserver.DiagnosticEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.pathColor.Sprint(p.displayPath(uri))
	if len(ev.Diagnostics) == 0 {
		fmt.Fprintf(p.out, "%s: %s ok\n", path, ev.Kind)
		return
	}

	for _, d := range ev.Diagnostics {
		label := p.categoryColor(d.Category).Sprint(d.Category)
		if d.Code != 0 {
			label += fmt.Sprintf(" TS%d", d.Code)
		}
		fmt.Fprintf(p.out, "%s:%d:%d: %s: %s\n", path, d.Start.Line, d.Start.Offset, label, d.Text)
	}
}

// commandResult prints the outcome of a command sent on behalf of the editor.
func (p *printer) commandResult(command string, resp *tsserver.Response, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		fmt.Fprintf(p.out, "command %s: %s: %v\n", command, p.errorColor.Sprint("failed"), err)
		return
	}
	body := "null"
	if resp != nil && len(resp.Body) > 0 {
		body = string(resp.Body)
	}
	fmt.Fprintf(p.out, "command %s: ok %s\n", command, body)
}

// serverEvent prints tsserver lifecycle changes.
func (p *printer) serverEvent(ev tsserver.SupervisorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.warningColor.Sprint(ev.Type.String())
	switch ev.Type {
	case tsserver.SupervisorEventRecovered:
		status = p.infoColor.Sprint(ev.Type.String())
	case tsserver.SupervisorEventFailed:
		status = p.errorColor.Sprint(ev.Type.String())
	}

	line := fmt.Sprintf("tsserver: %s (attempt %d)", status, ev.Attempt)
	if ev.Error != nil {
		line += ": " + ev.Error.Error()
	}
	fmt.Fprintln(p.out, line)
}
