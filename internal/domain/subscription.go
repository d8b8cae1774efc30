package domain

import (
	"strings"
	"time"
)

// snsEndpointPrefix marks endpoints that are SNS platform application endpoint ARNs.
const snsEndpointPrefix = "arn:aws:sns:"

// PushSubscription is one device push channel. At most one row exists per Endpoint.
type PushSubscription struct {
	EndpointHash string    `json:"-" dynamodbav:"endpoint_hash"`
	Endpoint     string    `json:"endpoint" dynamodbav:"endpoint"`
	P256dhKey    string    `json:"p256dh_key" dynamodbav:"p256dh_key"`
	AuthKey      string    `json:"auth_key" dynamodbav:"auth_key"`
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// IsSNS reports whether the endpoint addresses an SNS platform endpoint instead of a browser push service.
func (s *PushSubscription) IsSNS() bool {
	return strings.HasPrefix(s.Endpoint, snsEndpointPrefix)
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// SaveSubscriptionRequest mirrors the browser PushSubscription.toJSON() shape.
type SaveSubscriptionRequest struct {
	Endpoint string           `json:"endpoint" validate:"required,max=2048"`
	Keys     SubscriptionKeys `json:"keys"`
}

type RemoveSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// PushPayload is the message contract between the push sender and the push
// delivery worker. Unknown fields are ignored on decode.
type PushPayload struct {
	Title              string `json:"title,omitempty"`
	Body               string `json:"body,omitempty"`
	URL                string `json:"url,omitempty"`
	NotificationID     any    `json:"notificationId,omitempty"`
	Tag                string `json:"tag,omitempty"`
	Renotify           bool   `json:"renotify,omitempty"`
	RequireInteraction bool   `json:"requireInteraction,omitempty"`
}
