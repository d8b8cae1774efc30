package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestLink_ContentItemWithComment(t *testing.T) {
	n := Notification{EntityType: strPtr(EntityTypeContentItem), EntityID: strPtr("42"), CommentID: strPtr("7")}
	link, ok := n.Link()
	assert.True(t, ok)
	assert.Equal(t, "/content?item=42&comment=7", link)
}

func TestLink_ContentItemWithoutComment(t *testing.T) {
	n := Notification{EntityType: strPtr(EntityTypeContentItem), EntityID: strPtr("42")}
	link, ok := n.Link()
	assert.True(t, ok)
	assert.Equal(t, "/content?item=42", link)
}

func TestLink_OtherEntityType_NoLink(t *testing.T) {
	n := Notification{EntityType: strPtr("campaign"), EntityID: strPtr("42"), CommentID: strPtr("7")}
	link, ok := n.Link()
	assert.False(t, ok)
	assert.Empty(t, link)
}

func TestLink_MissingEntity_NoLink(t *testing.T) {
	n := Notification{}
	_, ok := n.Link()
	assert.False(t, ok)

	n.EntityType = strPtr(EntityTypeContentItem)
	_, ok = n.Link()
	assert.False(t, ok)
}

func TestLink_EscapesIdentifiers(t *testing.T) {
	n := Notification{EntityType: strPtr(EntityTypeContentItem), EntityID: strPtr("a b&c")}
	link, ok := n.Link()
	assert.True(t, ok)
	assert.Equal(t, "/content?item=a+b%26c", link)
}

func TestNewNotificationView_AttachesLink(t *testing.T) {
	v := NewNotificationView(Notification{ID: 1, EntityType: strPtr(EntityTypeContentItem), EntityID: strPtr("5")})
	assert.Equal(t, "/content?item=5", v.Link)
	assert.Equal(t, int64(1), v.ID)
}

func TestPushSubscription_IsSNS(t *testing.T) {
	assert.True(t, (&PushSubscription{Endpoint: "arn:aws:sns:us-east-1:123:endpoint/GCM/app/abc"}).IsSNS())
	assert.False(t, (&PushSubscription{Endpoint: "https://fcm.googleapis.com/fcm/send/abc"}).IsSNS())
}
