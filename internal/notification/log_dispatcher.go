package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// LogDispatcher writes notifications to the log instead of publishing them
type LogDispatcher struct {
	site SiteContext
	log  *logger.Logger
}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher(site SiteContext, log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{site: site, log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, recipient, templateKey string, data map[string]any) error {
	msg := newMessage(d.site, recipient, templateKey, data)
	d.log.InfoContext(ctx, "Notification",
		zap.String("message_id", msg.ID),
		zap.String("template", templateKey),
		zap.String("recipient", recipient),
		zap.Any("context", msg.Context),
	)
	return nil
}
