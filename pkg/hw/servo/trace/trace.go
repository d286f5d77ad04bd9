// Package trace records the traffic handled by an emulated bus. Decorators
// wrap bus components and report every call to a Tracer.
package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/Manu343726/servoemu/pkg/utils"
)

// Trace is one request handled by a traced component
type Trace struct {
	// per source, starting at 1
	Seq       uint64
	Time      time.Time
	Source    string
	Elapsed   time.Duration
	Operation string
	Operands  map[string]string
	Result    string
	Error     error
	// values dumped by verbose tracers
	Details []any
}

func (t *Trace) resultString() string {
	if t.Error != nil {
		return fmt.Sprintf("error: %v", t.Error.Error())
	} else if len(t.Result) > 0 {
		return fmt.Sprintf("result: %v", t.Result)
	} else {
		return ""
	}
}

func (t *Trace) joinOperands() string {
	fields := make([]string, 0, len(t.Operands))

	for _, name := range utils.SortedKeys(t.Operands) {
		fields = append(fields, fmt.Sprintf("%v: %v", name, t.Operands[name]))
	}

	return strings.Join(fields, ", ")
}

func (t *Trace) String() string {
	fields := make([]string, 0, 4)

	for _, field := range []string{t.Source, t.Operation, t.joinOperands(), t.resultString()} {
		if field != "" {
			fields = append(fields, field)
		}
	}

	return strings.Join(fields, " ")
}

type Tracer interface {
	SaveTrace(t *Trace)
}
