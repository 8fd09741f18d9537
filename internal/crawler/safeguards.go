package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/seo_audit/internal/analyzer"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// processSafely wraps process with panic recovery. A panic after the
// entry was budgeted still produces a result carrying an error issue, so
// one bad page never takes the run down.
func (c *Crawler) processSafely(fetchCtx, dispatchCtx context.Context, entry types.FrontierEntry) {
	reserved := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.panics.Add(1)
		c.logger.Error("recovered panic while processing URL",
			zap.String("url", entry.URL.String()),
			zap.Int("depth", entry.Depth),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))

		if !reserved {
			return
		}
		msg := fmt.Sprintf("panic during processing: %v", r)
		result := &types.PageResult{
			URL:        entry.URL,
			FinalURL:   entry.URL,
			Depth:      entry.Depth,
			Seq:        entry.Seq,
			FetchError: msg,
			CrawledAt:  time.Now(),
			Issues: []types.Issue{{
				Code:     analyzer.CodePanic,
				Message:  msg,
				Severity: types.SeverityError,
				URL:      entry.URL,
			}},
		}
		c.analyzed.Add(1)
		c.observer.PageAnalyzed(result)
		c.frontier.Mark(entry.URL, types.StateAnalyzed)
	}()

	c.process(fetchCtx, dispatchCtx, &entry, &reserved)
}
