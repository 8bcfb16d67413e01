package compiler

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"evsc/pkg/ident"
)

// Diagnostic is an error produced while compiling user input. Span and File
// are optional; a zero Span means the failure has no useful location.
type Diagnostic struct {
	Msg  string
	Span Span
	File string
}

func (d *Diagnostic) Error() string {
	if d.File != "" {
		return fmt.Sprintf("%s: %s", d.File, d.Msg)
	}
	return d.Msg
}

// errorf builds a spanned Diagnostic. The file name is attached later, at the
// top-level-declaration boundary where it is known.
func errorf(span Span, format string, args ...any) *Diagnostic {
	return &Diagnostic{Msg: fmt.Sprintf(format, args...), Span: span}
}

var (
	warnLabel = color.New(color.FgYellow, color.Bold).Sprint("warning:")
	errLabel  = color.New(color.FgRed, color.Bold).Sprint("error:")
)

// Reporter pretty-prints diagnostics and accumulates warnings.
// Warnings never interrupt compilation; errors abort the declaration that
// raised them.
type Reporter struct {
	out      io.Writer
	files    map[string]string // file name -> source text, for span resolution
	warnings int
	idents   *ident.Interner
}

func NewReporter(out io.Writer, in *ident.Interner) *Reporter {
	return &Reporter{out: out, files: make(map[string]string), idents: in}
}

// AddFile registers a file's source text so spans into it resolve to
// line:column positions.
func (r *Reporter) AddFile(name, src string) {
	r.files[name] = src
}

// Warnings returns the number of warnings reported so far.
func (r *Reporter) Warnings() int { return r.warnings }

// Warnf reports a non-fatal warning.
func (r *Reporter) Warnf(file string, span Span, format string, args ...any) {
	r.warnings++
	fmt.Fprintf(r.out, "%s%s %s\n", r.position(file, span), warnLabel, fmt.Sprintf(format, args...))
}

// Report prints an error. Diagnostics are printed with their resolved
// position; any other error is printed as-is.
func (r *Reporter) Report(err error) {
	if d, ok := err.(*Diagnostic); ok {
		fmt.Fprintf(r.out, "%s%s %s\n", r.position(d.File, d.Span), errLabel, d.Msg)
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", errLabel, err)
}

// position renders "file:line:col: " for a span, or as much of that as is
// known.
func (r *Reporter) position(file string, span Span) string {
	if file == "" {
		return ""
	}
	src, ok := r.files[file]
	if !ok || span == (Span{}) {
		return file + ": "
	}
	line, col := locate(src, span.Start)
	return fmt.Sprintf("%s:%d:%d: ", file, line, col)
}

// locate converts a byte offset into 1-based line and column numbers.
func locate(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndexByte(before, '\n')
	return line, col
}
