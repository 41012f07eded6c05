package server

import (
	"market-relay/src/config"
	"market-relay/src/models"

	"github.com/goccy/go-json"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub owns the client map. Every mutation goes through its channels.
func (s *Server) runHub() {
	defer close(s.hubDone)

	for {
		select {
		case client := <-s.register:
			s.addClient(client)

		case client := <-s.unregister:
			s.removeClient(client)

		case message := <-s.broadcast:
			s.fanOut(message)

		case <-s.done:
			for _, client := range s.clients {
				s.removeClient(client)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Server) addClient(client *Client) {
	s.clients[client.id] = client
	s.numClients.Add(1)
	s.relay.Connect(client.id)

	welcome, err := json.Marshal(models.MWelcome{Type: "welcome", ClientID: client.id})
	if err != nil {
		s.Logger.Error("Failed to encode welcome: %v", err)
		return
	}
	// queue is empty at this point
	client.send <- welcome
	s.Logger.With("client_id", client.id).Info("Client connected")
}

// -----------------------------------------------------------------------------

func (s *Server) removeClient(client *Client) {
	current, ok := s.clients[client.id]
	if !ok || current != client {
		return
	}
	delete(s.clients, client.id)
	close(client.send)
	s.numClients.Add(-1)
	s.relay.Disconnect(client.id)
}

// -----------------------------------------------------------------------------

// fanOut serializes the message once and queues it for every subscriber.
func (s *Server) fanOut(message models.MNormalizedMessage) {
	s.metrics.RecordBroadcast()

	subscribers := s.relay.Subscribers(message.Symbol)
	if len(subscribers) == 0 {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.Logger.Error("Failed to encode %s message: %v", message.Symbol, err)
		return
	}

	delivered := 0
	for _, id := range subscribers {
		client, ok := s.clients[id]
		if !ok {
			continue
		}
		if s.deliver(client, payload) {
			delivered++
		}
	}
	s.metrics.RecordDelivered(delivered)
}

// -----------------------------------------------------------------------------

// deliver applies the overflow policy when the client's queue is full.
func (s *Server) deliver(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
	}

	if s.overflowPolicy() == config.OverflowDropOldest {
		select {
		case <-client.send:
		default:
		}
		s.metrics.RecordClientDrop(config.OverflowDropOldest)
		select {
		case client.send <- payload:
			return true
		default:
			return false
		}
	}

	// Client too slow, disconnect so the hub never blocks
	s.Logger.With("client_id", client.id).Warning("Client queue full, disconnecting")
	s.metrics.RecordClientDrop(config.OverflowDisconnect)
	s.removeClient(client)
	return false
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues a normalized message for the hub. It blocks while the
// buffer is full and returns immediately once the server is stopping.
func (s *Server) Broadcast(message models.MNormalizedMessage) {
	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}
