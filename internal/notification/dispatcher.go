// Package notification publishes templated notifications for the mailer.
// Rendering and delivery happen outside this service.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher sends one templated notification to one recipient
type Dispatcher interface {
	Send(ctx context.Context, recipient, templateKey string, data map[string]any) error
}

// SiteContext is merged into every notification's template context
type SiteContext struct {
	SiteName string
	SiteURL  string
}

func (s SiteContext) merge(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+2)
	out["site_name"] = s.SiteName
	out["site_url"] = s.SiteURL
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Message is the payload published for the mailer
type Message struct {
	ID          string         `json:"id"`
	TemplateKey string         `json:"template"`
	Recipient   string         `json:"recipient"`
	Context     map[string]any `json:"context"`
	CreatedAt   time.Time      `json:"created_at"`
}

func newMessage(site SiteContext, recipient, templateKey string, data map[string]any) *Message {
	return &Message{
		ID:          uuid.New().String(),
		TemplateKey: templateKey,
		Recipient:   recipient,
		Context:     site.merge(data),
		CreatedAt:   time.Now().UTC(),
	}
}

// Recorder keeps sent messages in memory. Err, when set, fails every send.
type Recorder struct {
	Site SiteContext
	Err  error

	mu       sync.Mutex
	messages []*Message
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the message unless Err is set
func (r *Recorder) Send(ctx context.Context, recipient, templateKey string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, newMessage(r.Site, recipient, templateKey, data))
	return nil
}

// Messages returns a copy of everything sent so far
func (r *Recorder) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.messages...)
}

// ByTemplate returns the messages sent with templateKey
func (r *Recorder) ByTemplate(templateKey string) []*Message {
	var out []*Message
	for _, m := range r.Messages() {
		if m.TemplateKey == templateKey {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets recorded messages
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
