// Package storage keeps the session's message history and favorites. State
// lives in memory only; nothing is written to disk.
package storage

import (
	"fmt"
	"sync"

	"github.com/teabreakninja/go-meshcore/app/models"
)

// debugHistoryLimit bounds how many debug-channel entries are retained.
const debugHistoryLimit = 100

// MessageLog holds messages and favorite contact IDs for one connection.
type MessageLog struct {
	mu        sync.RWMutex
	messages  []models.Message
	favorites []string
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		messages:  []models.Message{},
		favorites: []string{},
	}
}

// AddMessage appends a message. Debug-channel entries are capped at the
// most recent debugHistoryLimit.
func (s *MessageLog) AddMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)

	if msg.To != "debug" {
		return
	}
	debugCount := 0
	for _, m := range s.messages {
		if m.To == "debug" {
			debugCount++
		}
	}
	if debugCount <= debugHistoryLimit {
		return
	}

	excess := debugCount - debugHistoryLimit
	kept := make([]models.Message, 0, len(s.messages)-excess)
	removed := 0
	for _, m := range s.messages {
		if m.To == "debug" && removed < excess {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
}

// GetMessages returns a copy of all messages.
func (s *MessageLog) GetMessages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Message, len(s.messages))
	copy(result, s.messages)
	return result
}

// UpdateMessageStatus updates the status and round-trip time of a message.
func (s *MessageLog) UpdateMessageStatus(messageID string, status string, roundTripMs uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Status = status
			if roundTripMs > 0 {
				s.messages[i].RoundTripMs = roundTripMs
			}
			return nil
		}
	}
	return fmt.Errorf("message with ID %s not found", messageID)
}

// FindByAckCode returns the ID of the pending message carrying the given
// delivery ack code, or "" when none matches.
func (s *MessageLog) FindByAckCode(ackCode uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].AckCode == ackCode && s.messages[i].Status != "delivered" {
			return s.messages[i].ID
		}
	}
	return ""
}

// RemoveChannelMessages drops all messages for a specific channel.
func (s *MessageLog) RemoveChannelMessages(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]models.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if !msg.IsChannel || (msg.From != channelID && msg.To != channelID) {
			filtered = append(filtered, msg)
		}
	}
	s.messages = filtered
}

// Clear removes all messages and favorites.
func (s *MessageLog) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []models.Message{}
	s.favorites = []string{}
}

// GetFavorites returns a copy of the favorite contact IDs.
func (s *MessageLog) GetFavorites() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, len(s.favorites))
	copy(result, s.favorites)
	return result
}

// AddFavorite records a contact ID as a favorite. Adding an existing
// favorite is a no-op.
func (s *MessageLog) AddFavorite(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.favorites {
		if id == contactID {
			return
		}
	}
	s.favorites = append(s.favorites, contactID)
}

// RemoveFavorite drops a contact ID from the favorites.
func (s *MessageLog) RemoveFavorite(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]string, 0, len(s.favorites))
	for _, id := range s.favorites {
		if id != contactID {
			filtered = append(filtered, id)
		}
	}
	s.favorites = filtered
}
