package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "herald/internal/transport"
)

// chatTextLimit stays under Discord's 2000 character message cap.
const (
	chatTextLimit  = 1900
	chatFieldLimit = 400
	chatQueueSize  = 256
)

type chatLine struct {
	channelID string
	text      string
}

// chatSink is a zerolog.LevelWriter that queues formatted lines for a
// background sender. Writes never block; a full queue drops the line.
type chatSink struct {
	sender kit.Sender
	queue  chan chatLine

	mu       sync.Mutex
	target   string
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newChatSink(sender kit.Sender) *chatSink {
	return &chatSink{
		sender:   sender,
		queue:    make(chan chatLine, chatQueueSize),
		minLevel: zerolog.WarnLevel,
	}
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()
}

func (c *chatSink) setTarget(channelID string) {
	c.mu.Lock()
	c.target = strings.TrimSpace(channelID)
	c.mu.Unlock()
}

// start launches the sender goroutine once. It reports false without a sender.
func (c *chatSink) start() bool {
	if c.sender == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return true
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-c.queue:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			// Send errors are dropped; logging them would loop back here.
			_, _ = c.sender.Send(sctx, ln.channelID, kit.OutgoingMessage{Content: ln.text})
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	target, lim, minLevel := c.target, c.limiter, c.minLevel
	c.mu.Unlock()

	if target == "" || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatChatJSON(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatLine{channelID: target, text: text}:
	default:
	}
	return len(p), nil
}

// formatChatJSON renders a zerolog JSON line as Markdown:
//
//	**[WARN]** message
//	- key=value
func formatChatJSON(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), chatTextLimit)
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	if lvl != "" {
		fmt.Fprintf(&b, "**[%s]** ", strings.ToUpper(lvl))
	}
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), chatFieldLimit))
	}
	return truncate(b.String(), chatTextLimit)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	suffix := ""
	if n >= 10 {
		n -= 3
		suffix = "..."
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + suffix
}
