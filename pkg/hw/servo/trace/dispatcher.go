package trace

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/utils"
)

type tracedDispatcher struct {
	bus.Dispatcher
	name   string
	tracer Tracer
	seq    atomic.Uint64
	clock  func() time.Time
}

// MakeTracedDispatcher reports every request handled by impl, and its
// response, to tracer. Traces carry name as their source.
func MakeTracedDispatcher(impl bus.Dispatcher, name string, tracer Tracer) bus.Dispatcher {
	return &tracedDispatcher{
		Dispatcher: impl,
		name:       name,
		tracer:     tracer,
		clock:      time.Now,
	}
}

// Middleware adapts MakeTracedDispatcher to emulator.WithMiddleware
func Middleware(name string, tracer Tracer) func(bus.Dispatcher) bus.Dispatcher {
	return func(impl bus.Dispatcher) bus.Dispatcher {
		return MakeTracedDispatcher(impl, name, tracer)
	}
}

func (t *tracedDispatcher) Dispatch(request protocol.Packet) (*protocol.Packet, error) {
	start := t.clock()
	response, err := t.Dispatcher.Dispatch(request)

	trace := &Trace{
		Seq:       t.seq.Add(1),
		Time:      start,
		Source:    t.name,
		Elapsed:   t.clock().Sub(start),
		Operation: request.Instruction.String(),
		Operands: map[string]string{
			"id":     fmt.Sprint(request.ID),
			"params": utils.FormatHexBytes(request.Params),
		},
		Error:   err,
		Details: []any{request},
	}

	if response != nil {
		trace.Result = fmt.Sprintf("status %d [%v]", byte(response.Instruction), utils.FormatHexBytes(response.Params))
		trace.Details = append(trace.Details, *response)
	} else if err == nil {
		trace.Result = "no response"
	}

	t.tracer.SaveTrace(trace)

	return response, err
}
