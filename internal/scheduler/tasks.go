package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskFollowUpReminder = "notification:followup_reminder"

type FollowUpReminderPayload struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
}

func NewFollowUpReminderTask(payload FollowUpReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpReminder, data), nil
}

func ParseFollowUpReminderPayload(task *asynq.Task) (FollowUpReminderPayload, error) {
	var payload FollowUpReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpReminderPayload{}, fmt.Errorf("parse %s payload: %w", TaskFollowUpReminder, err)
	}
	return payload, nil
}
