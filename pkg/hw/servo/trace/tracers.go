package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Recorder keeps every trace in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	traces []*Trace
	// oldest traces are dropped past this many, 0 means unbounded
	limit int
}

func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) SaveTrace(t *Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.traces = append(r.traces, t)
	if r.limit > 0 && len(r.traces) > r.limit {
		r.traces = r.traces[len(r.traces)-r.limit:]
	}
}

func (r *Recorder) Traces() []*Trace {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Trace(nil), r.traces...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.traces = nil
}

var (
	colorTime      = color.New(color.FgHiBlack)
	colorSource    = color.New(color.FgMagenta)
	colorOperation = color.New(color.FgYellow, color.Bold)
	colorOperands  = color.New(color.FgCyan)
	colorResult    = color.New(color.FgGreen)
	colorError     = color.New(color.FgRed, color.Bold)
)

// ConsoleTracer prints traces, one per line. Colors are used only when
// writing to a terminal.
type ConsoleTracer struct {
	mu      sync.Mutex
	out     io.Writer
	colors  bool
	verbose bool
	dumper  *spew.ConfigState
}

func NewConsoleTracer(out io.Writer, verbose bool) *ConsoleTracer {
	colors := false
	if file, ok := out.(*os.File); ok {
		colors = term.IsTerminal(int(file.Fd()))
	}

	return &ConsoleTracer{
		out:     out,
		colors:  colors,
		verbose: verbose,
		dumper: &spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisablePointerMethods:   true,
			DisableCapacities:       true,
			SortKeys:                true,
		},
	}
}

func (c *ConsoleTracer) paint(style *color.Color, s string) string {
	if !c.colors || s == "" {
		return s
	}
	return style.Sprint(s)
}

func (c *ConsoleTracer) SaveTrace(t *Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffer := strings.Builder{}

	if !t.Time.IsZero() {
		buffer.WriteString(c.paint(colorTime, t.Time.Format("15:04:05.000")))
		buffer.WriteByte(' ')
	}

	if t.Source != "" {
		fmt.Fprintf(&buffer, "%v#%d ", c.paint(colorSource, t.Source), t.Seq)
	}

	buffer.WriteString(c.paint(colorOperation, t.Operation))
	if operands := t.joinOperands(); operands != "" {
		buffer.WriteByte(' ')
		buffer.WriteString(c.paint(colorOperands, operands))
	}

	if t.Error != nil {
		buffer.WriteByte(' ')
		buffer.WriteString(c.paint(colorError, t.resultString()))
	} else if result := t.resultString(); result != "" {
		buffer.WriteByte(' ')
		buffer.WriteString(c.paint(colorResult, result))
	}

	if t.Elapsed > 0 {
		fmt.Fprintf(&buffer, " (%v)", t.Elapsed)
	}

	buffer.WriteByte('\n')

	if c.verbose {
		for _, detail := range t.Details {
			buffer.WriteString(c.dumper.Sdump(detail))
		}
	}

	io.WriteString(c.out, buffer.String())
}
