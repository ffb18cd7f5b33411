package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// Notifier maps domain events to notifications and sends them
type Notifier struct {
	dispatcher     Dispatcher
	officialEmails []string
	loc            *time.Location
	log            *logger.Logger
}

// NewNotifier creates a new Notifier. loc formats times in template contexts.
func NewNotifier(d Dispatcher, officialEmails []string, loc *time.Location, log *logger.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{dispatcher: d, officialEmails: officialEmails, loc: loc, log: log}
}

// Dispatcher returns the underlying dispatcher
func (n *Notifier) Dispatcher() Dispatcher {
	return n.dispatcher
}

// Publish sends every notification the domain event implies. Individual
// failures do not stop the remaining sends; they are joined into one
// TransientDependencyError.
func (n *Notifier) Publish(ctx context.Context, evt domain.DomainEvent, zone *domain.ContractZone) error {
	data := EventContext(evt.Event, zone, n.loc)

	var errs []error
	send := func(recipients []string, templateKey string) {
		for _, to := range recipients {
			err := n.dispatcher.Send(ctx, to, templateKey, data)
			metrics.RecordNotification(ctx, templateKey, err)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	var contacts []string
	if zone != nil {
		contacts = zone.ContactEmails()
	}
	organizer := nonEmpty(evt.Event.OrganizerEmail)

	switch evt.Type {
	case domain.DomainEventCreated:
		if len(contacts) == 0 {
			n.log.WarnContext(ctx, "No contact emails for contract zone",
				zap.Bool("integrity_warning", true),
				zap.Int64("zone_id", evt.Event.ContractZoneID),
				zap.String("event_id", evt.Event.ID.String()),
			)
		}
		send(contacts, domain.NotificationEventCreated)
		send(n.officialEmails, domain.NotificationEventCreated)
		send(organizer, domain.NotificationEventReceived)
	case domain.DomainEventApproved:
		send(organizer, domain.NotificationEventApprovedToOrganizer)
		send(contacts, domain.NotificationEventApprovedToContractor)
		send(n.officialEmails, domain.NotificationEventApprovedToOfficial)
	default:
		return nil
	}

	if len(errs) > 0 {
		return &domain.TransientDependencyError{Op: "notify " + string(evt.Type), Err: errors.Join(errs...)}
	}
	return nil
}

// EventContext is the template context for event notifications
func EventContext(e *domain.Event, zone *domain.ContractZone, loc *time.Location) map[string]any {
	data := map[string]any{
		"event_id":             e.ID.String(),
		"event_name":           e.Name,
		"event_state":          string(e.State),
		"start_time":           e.StartTime.In(loc).Format("02.01.2006 15:04"),
		"end_time":             e.EndTime.In(loc).Format("02.01.2006 15:04"),
		"organizer_first_name": e.OrganizerFirstName,
		"organizer_last_name":  e.OrganizerLastName,
		"organizer_email":      e.OrganizerEmail,
		"organizer_phone":      e.OrganizerPhone,
		"location":             []float64{e.Location.Lon, e.Location.Lat},
	}
	if zone != nil {
		data["contract_zone"] = zone.Name
		data["contract_zone_id"] = zone.ID
	}
	return data
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
