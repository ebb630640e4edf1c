package dmr

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/local-rag-engine/pkg/chat"
)

// builtinStopPatterns are chat-template artifacts small local models leak
// into their output when the serving layer's own stop handling misses them.
var builtinStopPatterns = []string{
	"User:",
	"Assistant:",
	"<|im_end|>",
	"<|endoftext|>",
	"<|end|>",
	"\nQuestion:",
}

// guardConfig tunes the client-side output guard wrapped around every DMR
// completion stream. The repetition thresholds are heuristics against the
// degenerate loops small local models fall into; they are grouped here so a
// caller with a better-behaved model can relax them.
type guardConfig struct {
	stops         []string
	repWindows    []int
	repHistory    int
	repMinRepeats int
	repCheckEvery int
	repMinTokens  int
}

func defaultGuardConfig(userStops []string) guardConfig {
	stops := make([]string, 0, len(userStops)+len(builtinStopPatterns))
	stops = append(stops, userStops...)
	stops = append(stops, builtinStopPatterns...)
	return guardConfig{
		stops:         stops,
		repWindows:    []int{30, 50, 80},
		repHistory:    300,
		repMinRepeats: 3,
		repCheckEvery: 50,
		repMinTokens:  100,
	}
}

func (c guardConfig) maxStopLen() int {
	n := 0
	for _, s := range c.stops {
		n = max(n, len(s))
	}
	return n
}

// guardedStream decorates a chat.MessageStream with stop-sequence truncation
// and runaway-repetition detection. Content that could still grow into a
// stop sequence is held back until the next chunk disambiguates it, so a
// stop split across chunk boundaries is still caught; the held tail is
// flushed if the stream ends without completing it. Tool-call and usage
// chunks pass through untouched. When the guard trips, the underlying
// stream is closed so the server stops decoding.
type guardedStream struct {
	inner chat.MessageStream
	cfg   guardConfig

	emitted   strings.Builder
	pending   string
	tokens    int
	stopped   bool
	closed    bool
	maxStop   int
}

func newGuardedStream(inner chat.MessageStream, cfg guardConfig) chat.MessageStream {
	return &guardedStream{inner: inner, cfg: cfg, maxStop: cfg.maxStopLen()}
}

func (g *guardedStream) Recv() (chat.MessageStreamResponse, error) {
	if g.stopped {
		return chat.MessageStreamResponse{}, io.EOF
	}

	resp, err := g.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) && g.pending != "" {
			// The held-back tail never completed into a stop sequence.
			out := g.pending
			g.pending = ""
			g.emitted.WriteString(out)
			g.halt()
			return chat.MessageStreamResponse{
				Choices: []chat.MessageStreamChoice{{
					Delta:        chat.MessageDelta{Content: out},
					FinishReason: chat.FinishReasonStop,
				}},
			}, nil
		}
		return resp, err
	}

	for i := range resp.Choices {
		choice := &resp.Choices[i]
		if choice.Delta.Content == "" {
			continue
		}
		out, done := g.feed(choice.Delta.Content)
		choice.Delta.Content = out
		if done {
			choice.FinishReason = chat.FinishReasonStop
			g.halt()
			break
		}
	}
	return resp, nil
}

// feed runs one content delta through the guard, returning the content safe
// to surface and whether generation should end here.
func (g *guardedStream) feed(delta string) (out string, done bool) {
	g.tokens++
	buf := g.pending + delta

	// A completed stop sequence ends the stream with the match truncated
	// from the output.
	stopAt := -1
	for _, s := range g.cfg.stops {
		if i := strings.Index(buf, s); i >= 0 && (stopAt < 0 || i < stopAt) {
			stopAt = i
		}
	}
	if stopAt >= 0 {
		g.pending = ""
		out = buf[:stopAt]
		g.emitted.WriteString(out)
		slog.Debug("DMR output guard matched stop sequence", "emitted_len", g.emitted.Len())
		return out, true
	}

	// Hold back the longest tail that is still a prefix of some stop
	// sequence; it is emitted later once a following chunk rules it out.
	hold := 0
	limit := min(len(buf), g.maxStop-1)
	for n := limit; n > 0 && hold == 0; n-- {
		tail := buf[len(buf)-n:]
		for _, s := range g.cfg.stops {
			if strings.HasPrefix(s, tail) {
				hold = n
				break
			}
		}
	}
	out = buf[:len(buf)-hold]
	g.pending = buf[len(buf)-hold:]
	g.emitted.WriteString(out)

	if g.repeating() {
		slog.Debug("DMR output guard detected repetition", "tokens", g.tokens, "emitted_len", g.emitted.Len())
		return out, true
	}
	return out, false
}

// repeating reports whether the tail of the output is looping: a
// 30/50/80-char suffix appearing at least 3 times within the trailing
// history window, checked every repCheckEvery tokens once repMinTokens have
// been produced.
func (g *guardedStream) repeating() bool {
	if g.tokens < g.cfg.repMinTokens || (g.tokens-g.cfg.repMinTokens)%g.cfg.repCheckEvery != 0 {
		return false
	}
	text := g.emitted.String()
	hist := text
	if len(hist) > g.cfg.repHistory {
		hist = hist[len(hist)-g.cfg.repHistory:]
	}
	for _, w := range g.cfg.repWindows {
		if len(text) < w {
			continue
		}
		suffix := text[len(text)-w:]
		if strings.Count(hist, suffix) >= g.cfg.repMinRepeats {
			return true
		}
	}
	return false
}

// halt marks the stream exhausted and releases the underlying connection so
// the server observes the drop and stops decoding.
func (g *guardedStream) halt() {
	g.stopped = true
	if !g.closed {
		g.closed = true
		g.inner.Close()
	}
}

func (g *guardedStream) Close() {
	if !g.closed {
		g.closed = true
		g.inner.Close()
	}
}
