package pubengine

import "time"

// Notification is a single monitored-item data-change or event notification
// harvested from a NotificationSource.
type Notification struct {
	MonitoredItemID uint32
	Value           interface{}
	Timestamp       time.Time
}

// NotificationSource is the external per-monitored-item data source
// attached to a Subscription (§6 of the contract it implements).
type NotificationSource interface {
	// HasPendingNotifications reports whether data is waiting to be
	// harvested.
	HasPendingNotifications() bool
	// HarvestNotifications returns up to max queued notifications (0 means
	// all of them) and reports whether more remain after the harvest.
	HarvestNotifications(max int) (notifications []Notification, morePending bool)
}

// NotificationDataItem is implemented by the two kinds of payload a
// NotificationMessage can carry.
type NotificationDataItem interface {
	isNotificationData()
}

// DataChangeNotification carries the notifications harvested from
// monitored items during one publish cycle.
type DataChangeNotification struct {
	Items []Notification
}

func (DataChangeNotification) isNotificationData() {}

// StatusChangeNotification reports that a subscription's status has
// changed, e.g. closed with BadTimeout on lifetime expiry.
type StatusChangeNotification struct {
	Status         StatusCode
	SubscriptionID uint32
}

func (StatusChangeNotification) isNotificationData() {}

// SubscriptionAcknowledgement is one entry of a PublishRequest's
// subscriptionAcknowledgements array.
type SubscriptionAcknowledgement struct {
	SubscriptionID uint32
	SequenceNumber uint64
}

// PublishRequest is the already-decoded client request the transport layer
// hands to Engine.OnPublishRequest.
type PublishRequest struct {
	RequestHandle                uint32
	TimeoutHint                  time.Duration // 0 means no timeout
	SubscriptionAcknowledgements []SubscriptionAcknowledgement
}

// ResponseHeader is the common header of PublishResponse and ServiceFault.
type ResponseHeader struct {
	ServiceResult StatusCode
	RequestHandle uint32
	Timestamp     time.Time
}

// NotificationMessage is the payload of one PublishResponse.
type NotificationMessage struct {
	SequenceNumber   uint64
	PublishTime      time.Time
	NotificationData []NotificationDataItem
}

// PublishResponse is returned to the client either because a subscription
// had data/keep-alive to send, or because a closed subscription's final
// StatusChangeNotification was delivered.
type PublishResponse struct {
	Header                   ResponseHeader
	SubscriptionID           uint32
	AvailableSequenceNumbers []uint64
	MoreNotifications        bool
	NotificationMessage      NotificationMessage
	Results                  []StatusCode
	DiagnosticInfos          []struct{}
}

// ServiceFault is a bare response-header failure, used for all the
// engine-level rejections in §7.
type ServiceFault struct {
	Header ResponseHeader
}

// ResponseSender is the transport-layer contract the engine delivers
// completed responses through. It must never block indefinitely; the
// engine calls it synchronously from its single logical execution context.
type ResponseSender interface {
	SendPublishResponse(resp *PublishResponse)
	SendServiceFault(fault *ServiceFault)
}
