package coordinator

import (
	"errors"
	"fmt"

	"sales_crm_backend/internal/notification/inapp"
)

// FollowUpError reports the outcome of each write of a non-transactional
// follow-up schedule. Notification is set when the first write succeeded.
type FollowUpError struct {
	Notification    *inapp.Notification
	NotificationErr error
	LeadErr         error
}

func (e *FollowUpError) Error() string {
	switch {
	case e.NotificationErr != nil:
		return fmt.Sprintf("schedule follow-up: create notification: %v", e.NotificationErr)
	case e.LeadErr != nil:
		return fmt.Sprintf("schedule follow-up: notification created, update lead: %v", e.LeadErr)
	default:
		return "schedule follow-up failed"
	}
}

func (e *FollowUpError) Unwrap() []error {
	var errs []error
	if e.NotificationErr != nil {
		errs = append(errs, e.NotificationErr)
	}
	if e.LeadErr != nil {
		errs = append(errs, e.LeadErr)
	}
	return errs
}

// ErrClosed is returned by SetUser after Close.
var ErrClosed = errors.New("coordinator closed")
