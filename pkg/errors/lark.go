package errors

import (
	"fmt"
	"time"

	"github.com/go-lark/lark"
	"moff.io/wallet-bridge/pkg/log"
)

type larkReporter struct {
	bot   *lark.Bot
	limit *rateLimiter
}

// NewLarkReporter posts reported errors to a lark webhook. Errors raised from
// the same call site are posted at most once per silent window.
func NewLarkReporter(webhook string, silent time.Duration) {
	if webhook == "" {
		log.Warn("empty lark webhook found, skipping lark reporter initialization.")
		return
	}
	Register(&larkReporter{
		bot:   lark.NewNotificationBot(webhook),
		limit: newRateLimiter(silent),
	})
	log.Info("lark error reporter initialized.")
}

func (r *larkReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := callers()
	limited, stats := r.limit.allow(stacks.key(2))
	if limited {
		return
	}
	pb := lark.NewPostBuilder()
	pb.Title("wallet-bridge error")
	pb.TextTag(fmt.Sprintf("Last Report: %v", formatReportTime(stats.lastReportTime)), 1, true)
	pb.TextTag(fmt.Sprintf("\nSuppressed Since Last Report: %v", stats.suppressed), 1, true)
	pb.TextTag(fmt.Sprintf("\nMessage: %v", err.Error()), 1, true)
	pb.TextTag("\nStacks:", 1, true)
	for _, s := range stacks.fullStack() {
		pb.TextTag(fmt.Sprintf("\n    %s", s), 1, true)
	}
	if _, err := r.bot.PostNotificationV2(lark.OutcomingMessage{
		MsgType: "post",
		Content: lark.MessageContent{
			Post: pb.Render(),
		},
	}); err != nil {
		log.Error(WithStack(err))
	}
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006.01.02 15:04")
}
