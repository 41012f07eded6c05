package interfaces

import "market-relay/src/models"

// -----------------------------------------------------------------------------
// IBroadcaster pushes normalized messages to the connected clients.
// -----------------------------------------------------------------------------

type IBroadcaster interface {
	Broadcast(msg models.MNormalizedMessage)
}

// -----------------------------------------------------------------------------
// ISubscriptions is the control plane the HTTP and gRPC surfaces drive.
// -----------------------------------------------------------------------------

type ISubscriptions interface {
	Connect(clientID string)
	Disconnect(clientID string)
	Subscribers(symbol string) []string
	Subscribe(clientID string, symbols []string, market string) ([]string, error)
	Unsubscribe(clientID string, symbols []string) []string
	ClientCount() int
	UpstreamStatus() []models.MUpstreamStatus
}
