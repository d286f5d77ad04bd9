package emulator

import (
	"log/slog"
	"sync/atomic"
)

// Stats counts what happened on the bus since the emulator was created
type Stats struct {
	BytesReceived   uint64
	FramesDecoded   uint64
	MalformedFrames uint64
	// requests that got no response: rejected, addressed to absent servos or unknown
	Unanswered uint64

	ResponsesSent      uint64
	ResponsesDropped   uint64
	ResponsesTimedOut  uint64
	ResponsesCorrupted uint64
	ResponsesDelayed   uint64
	// delayed responses lost on shutdown
	ResponsesDiscarded uint64
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("bytes_received", s.BytesReceived),
		slog.Uint64("frames_decoded", s.FramesDecoded),
		slog.Uint64("malformed_frames", s.MalformedFrames),
		slog.Uint64("unanswered", s.Unanswered),
		slog.Uint64("responses_sent", s.ResponsesSent),
		slog.Uint64("responses_dropped", s.ResponsesDropped),
		slog.Uint64("responses_timed_out", s.ResponsesTimedOut),
		slog.Uint64("responses_corrupted", s.ResponsesCorrupted),
		slog.Uint64("responses_delayed", s.ResponsesDelayed),
		slog.Uint64("responses_discarded", s.ResponsesDiscarded),
	)
}

type counters struct {
	bytesReceived      atomic.Uint64
	framesDecoded      atomic.Uint64
	malformedFrames    atomic.Uint64
	unanswered         atomic.Uint64
	responsesSent      atomic.Uint64
	responsesDropped   atomic.Uint64
	responsesTimedOut  atomic.Uint64
	responsesCorrupted atomic.Uint64
	responsesDelayed   atomic.Uint64
	responsesDiscarded atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		BytesReceived:      c.bytesReceived.Load(),
		FramesDecoded:      c.framesDecoded.Load(),
		MalformedFrames:    c.malformedFrames.Load(),
		Unanswered:         c.unanswered.Load(),
		ResponsesSent:      c.responsesSent.Load(),
		ResponsesDropped:   c.responsesDropped.Load(),
		ResponsesTimedOut:  c.responsesTimedOut.Load(),
		ResponsesCorrupted: c.responsesCorrupted.Load(),
		ResponsesDelayed:   c.responsesDelayed.Load(),
		ResponsesDiscarded: c.responsesDiscarded.Load(),
	}
}
