package text

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// messageOverhead approximates the role and framing tokens a chat API adds
// around each message.
const messageOverhead = 4

// Counter counts the tokens in a piece of text.
type Counter interface {
	Count(s string) int
}

// EstimateTokens provides a simple ballpark token count that works
// reasonably well across different models.
func EstimateTokens(s string) int {
	return len(s)/3 + 5
}

// HeuristicCounter counts with EstimateTokens.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(s string) int { return EstimateTokens(s) }

// TiktokenCounter counts with the cl100k_base encoding. The encoding is
// loaded on first use; if it cannot be loaded the counter falls back to
// EstimateTokens.
type TiktokenCounter struct {
	logger *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenCounter returns a lazily initialized tiktoken counter.
func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TiktokenCounter{logger: logger.Named("tokenizer")}
}

func (c *TiktokenCounter) Count(s string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tokenizer unavailable, using estimate", zap.Error(err))
			return
		}
		c.enc = enc
	})

	if c.enc == nil {
		return EstimateTokens(s)
	}

	return len(c.enc.Encode(s, nil, nil))
}

// Window selects the most recent messages that fit a token budget.
type Window struct {
	MaxTokens int
	Counter   Counter
}

// NewWindow returns a window with the given budget. A nil counter uses
// EstimateTokens.
func NewWindow(maxTokens int, counter Counter) *Window {
	if counter == nil {
		counter = HeuristicCounter{}
	}

	return &Window{MaxTokens: maxTokens, Counter: counter}
}

// Select returns the index of the oldest message to keep. reserved is the
// budget already spent on content sent with every request. The newest
// message is always kept, even when it alone exceeds the budget.
func (w *Window) Select(messages []string, reserved int) int {
	if len(messages) == 0 {
		return 0
	}

	used := reserved
	start := len(messages) - 1
	used += w.Counter.Count(messages[start]) + messageOverhead

	for i := start - 1; i >= 0; i-- {
		cost := w.Counter.Count(messages[i]) + messageOverhead
		if used+cost > w.MaxTokens {
			break
		}
		used += cost
		start = i
	}

	return start
}
