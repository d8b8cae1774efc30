package domain

import "time"

// NotificationPreference is the single per-user mute switch. A missing row
// reads as enabled.
type NotificationPreference struct {
	UserID               string    `json:"user_id" dynamodbav:"user_id"`
	NotificationsEnabled bool      `json:"notifications_enabled" dynamodbav:"notifications_enabled"`
	UpdatedAt            time.Time `json:"updated" dynamodbav:"updated_at"`
}

// DefaultPreference is returned for users that never toggled mute.
func DefaultPreference(userID string) *NotificationPreference {
	return &NotificationPreference{UserID: userID, NotificationsEnabled: true}
}

// Muted reports whether the user silenced all notifications.
func (p *NotificationPreference) Muted() bool { return !p.NotificationsEnabled }

type UpdatePreferenceRequest struct {
	NotificationsEnabled *bool `json:"notifications_enabled" validate:"required"`
}
