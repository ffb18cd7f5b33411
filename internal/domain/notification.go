package domain

// Notification template keys
const (
	NotificationEventCreated                 = "event_created"
	NotificationEventReceived                = "event_received"
	NotificationEventApprovedToOrganizer     = "event_approved_to_organizer"
	NotificationEventApprovedToContractor    = "event_approved_to_contractor"
	NotificationEventApprovedToOfficial      = "event_approved_to_official"
	NotificationEventReminder                = "event_reminder"
	NotificationEventPendingApprovalReminder = "event_pending_approval_reminder"
)
