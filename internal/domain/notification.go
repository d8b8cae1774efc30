package domain

import (
	"net/url"
	"time"
)

// EntityTypeContentItem is the only entity type that produces a deep link.
const EntityTypeContentItem = "content_item"

// Notification is a persisted in-app notification. ReadAt is nil while unread
// and, once set, is never cleared.
type Notification struct {
	ID          int64      `json:"id" dynamodbav:"notification_id"`
	RecipientID string     `json:"recipient_id" dynamodbav:"recipient_id"`
	EntityType  *string    `json:"entity_type" dynamodbav:"entity_type,omitempty"`
	EntityID    *string    `json:"entity_id" dynamodbav:"entity_id,omitempty"`
	CommentID   *string    `json:"comment_id" dynamodbav:"comment_id,omitempty"`
	Title       string     `json:"title" dynamodbav:"title"`
	Body        string     `json:"body" dynamodbav:"body"`
	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at"`
	ReadAt      *time.Time `json:"read_at" dynamodbav:"read_at,omitempty"`
	// CreatedAtNs is the sort key of the recipient index.
	CreatedAtNs int64 `json:"-" dynamodbav:"created_at_ns"`
}

// IsRead reports whether read_at has been set.
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// Link returns the in-app deep link for the notification subject, e.g.
// /content?item=42&comment=7. Only content items are linkable.
func (n *Notification) Link() (string, bool) {
	if n.EntityType == nil || *n.EntityType != EntityTypeContentItem || n.EntityID == nil || *n.EntityID == "" {
		return "", false
	}
	link := "/content?item=" + url.QueryEscape(*n.EntityID)
	if n.CommentID != nil && *n.CommentID != "" {
		link += "&comment=" + url.QueryEscape(*n.CommentID)
	}
	return link, true
}

// NotificationView is the JSON shape returned to clients: the record plus its derived link.
type NotificationView struct {
	Notification
	Link string `json:"link,omitempty"`
}

// NewNotificationView attaches the derived deep link.
func NewNotificationView(n Notification) NotificationView {
	link, _ := n.Link()
	return NotificationView{Notification: n, Link: link}
}

type CreateNotificationRequest struct {
	RecipientID string  `json:"recipient_id" validate:"required"`
	EntityType  *string `json:"entity_type" validate:"omitempty,max=64"`
	EntityID    *string `json:"entity_id" validate:"omitempty,max=128"`
	CommentID   *string `json:"comment_id" validate:"omitempty,max=128"`
	Title       string  `json:"title" validate:"required,max=200"`
	Body        string  `json:"body" validate:"max=2000"`
}

// Summary is the server-computed seed for the presentation layer at page load.
type Summary struct {
	UnreadCount int  `json:"unread_count"`
	IsMuted     bool `json:"is_muted"`
}
