// Package models holds the JSON view types exchanged with the web UI.
package models

import (
	"time"

	"github.com/teabreakninja/go-meshcore/app/protocol"
)

// Contact represents a contact on the mesh network.
type Contact struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
	HasRoute bool      `json:"hasRoute"`
	Hops     int       `json:"hops,omitempty"`
}

// ContactFromProtocol maps a decoded contact record to its view form.
func ContactFromProtocol(c protocol.Contact) Contact {
	out := Contact{
		ID:       c.PublicKeyHex(),
		Name:     c.Name,
		Type:     c.Type.String(),
		HasRoute: c.OutPath != nil,
		Hops:     len(c.OutPath),
	}
	if !c.LastAdvert.IsZero() {
		out.LastSeen = c.LastAdvert
	}
	return out
}

// Channel represents a channel slot on the device.
type Channel struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Encrypted bool   `json:"encrypted"`
}

// ChannelFromProtocol maps a decoded channel slot to its view form.
func ChannelFromProtocol(c protocol.Channel) Channel {
	return Channel{
		Index:     c.Index,
		Name:      c.Name,
		Encrypted: c.Encrypted(),
	}
}

// Message represents a message sent or received over the mesh network.
type Message struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	IsChannel   bool      `json:"isChannel"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	// Status is "pending", "sent" or "delivered".
	Status      string    `json:"status,omitempty"`
	RoundTripMs uint32    `json:"roundTripMs,omitempty"`
	AckCode     uint32    `json:"ackCode,omitempty"`
	PathLen     uint8     `json:"pathLen,omitempty"`
	SNR         float64   `json:"snr,omitempty"`
	SenderTime  time.Time `json:"senderTime,omitempty"`
}

// DeviceInfo holds structured information about the connected node.
type DeviceInfo struct {
	FirmwareVersion string `json:"firmwareVersion"`
	FirmwareBuild   string `json:"firmwareBuild"`
	Model           string `json:"model"`
	MaxContacts     int    `json:"maxContacts"`
	MaxChannels     int    `json:"maxChannels"`
	PublicKey       string `json:"publicKey"`
	UserName        string `json:"userName"`
}

// DeviceInfoFromProtocol merges the handshake's device and self frames into
// one view record.
func DeviceInfoFromProtocol(info protocol.DeviceInfo, self protocol.SelfInfo) DeviceInfo {
	return DeviceInfo{
		FirmwareVersion: info.FirmwareVersion,
		FirmwareBuild:   info.FirmwareBuild,
		Model:           info.Model,
		MaxContacts:     info.MaxContacts,
		MaxChannels:     info.MaxChannels,
		PublicKey:       self.PublicKeyHex(),
		UserName:        self.Name,
	}
}
