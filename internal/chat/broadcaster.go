//go:generate go run go.uber.org/mock/mockgen -source=broadcaster.go -destination=mocks/mock_broadcaster.go -package=mocks
package chat

// Broadcaster delivers outbound events to connected clients. Delivery is
// fire-and-forget: peers that are not connected at send time miss the event.
type Broadcaster interface {
	// BroadcastAll delivers payload to every connection, the originator included.
	BroadcastAll(event Event, payload any)
	// BroadcastOthers delivers payload to every connection except exclude.
	BroadcastOthers(event Event, payload any, exclude ConnID)
}
