package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teabreakninja/go-meshcore/app/client"
	"github.com/teabreakninja/go-meshcore/app/config"
	"github.com/teabreakninja/go-meshcore/app/models"
	"github.com/teabreakninja/go-meshcore/app/protocol"
	"github.com/teabreakninja/go-meshcore/app/storage"
	"github.com/teabreakninja/go-meshcore/app/transport"
)

// maxMessageChars caps outbound message length; longer texts do not fit a
// single LoRa packet after encryption overhead.
const maxMessageChars = 150

// WebSocket message protocol.

type IncomingMessage struct {
	Type       string `json:"type"`
	TargetID   string `json:"targetId,omitempty"`
	TargetType string `json:"targetType,omitempty"` // "contact" or "channel"
	Content    string `json:"content,omitempty"`
}

type OutgoingMessage struct {
	Type     string      `json:"type"`
	Payload  interface{} `json:"payload,omitempty"`
	ErrorMsg string      `json:"error,omitempty"`
}

type StatePayload struct {
	Contacts  []models.Contact `json:"contacts"`
	Channels  []models.Channel `json:"channels"`
	Messages  []models.Message `json:"messages"`
	Favorites []string         `json:"favorites"`
}

type SingleMessagePayload struct {
	Message models.Message `json:"message"`
}

type NodeStatusPayload struct {
	Connected  bool              `json:"connected"`
	DeviceInfo models.DeviceInfo `json:"deviceInfo,omitempty"`
}

type MessageStatusPayload struct {
	MessageID   string `json:"messageId"`
	Status      string `json:"status"` // "pending", "sent", "delivered"
	RoundTripMs uint32 `json:"roundTripMs,omitempty"`
}

// Gateway bridges the radio client, the message log and the WebSocket hub.
type Gateway struct {
	cfg   config.Config
	log   zerolog.Logger
	hub   *Hub
	store *storage.MessageLog

	mu   sync.Mutex
	mesh *client.Client
}

func NewGateway(cfg config.Config, hub *Hub, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:   cfg,
		log:   log,
		hub:   hub,
		store: storage.NewMessageLog(),
	}
}

func (g *Gateway) client() *client.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mesh
}

// IsConnected reports whether a radio connection is live.
func (g *Gateway) IsConnected() bool {
	c := g.client()
	return c != nil && c.IsConnected()
}

// DeviceInfo returns the connected node's identity, or a zero value.
func (g *Gateway) DeviceInfo() models.DeviceInfo {
	c := g.client()
	if c == nil {
		return models.DeviceInfo{}
	}
	return models.DeviceInfoFromProtocol(c.DeviceInfo(), c.SelfInfo())
}

// Connect opens the configured transport (host/port override the TCP config
// when non-empty) and performs the companion handshake.
func (g *Gateway) Connect(host string, port int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mesh != nil && g.mesh.IsConnected() {
		return fmt.Errorf("already connected")
	}

	var (
		tr  transport.Transport
		err error
	)
	switch g.cfg.Device.Transport {
	case "serial":
		tr, err = transport.OpenSerial(transport.SerialConfig{
			Port:     g.cfg.Device.SerialPort,
			BaudRate: g.cfg.Device.BaudRate,
		}, g.log)
	default:
		if host == "" {
			host = g.cfg.Device.Host
		}
		if port == 0 {
			port = g.cfg.Device.Port
		}
		tr, err = transport.DialTCP(host, port, g.log)
	}
	if err != nil {
		return err
	}

	mesh, err := client.Connect(tr, client.Options{
		Logger:         &g.log,
		CommandTimeout: g.cfg.Device.CommandTimeout.Duration,
	})
	if err != nil {
		_ = tr.Close()
		return err
	}

	mesh.SetHandlers(client.Handlers{
		OnMessage:       g.onMeshMessage,
		OnSendConfirmed: g.onSendConfirmed,
	})
	g.mesh = mesh
	return nil
}

// Disconnect tears down the radio connection.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	mesh := g.mesh
	g.mesh = nil
	g.mu.Unlock()
	if mesh != nil {
		_ = mesh.Close()
	}
}

// Address returns the remote address for TCP connections.
func (g *Gateway) Address() string {
	if g.cfg.Device.Transport == "serial" {
		return g.cfg.Device.SerialPort
	}
	return fmt.Sprintf("%s:%d", g.cfg.Device.Host, g.cfg.Device.Port)
}

// State gathers the full UI state from the device and the message log.
func (g *Gateway) State(ctx context.Context) (StatePayload, error) {
	c := g.client()
	if c == nil {
		return StatePayload{}, client.ErrNotConnected
	}

	contacts, err := c.GetContacts(ctx)
	if err != nil {
		return StatePayload{}, fmt.Errorf("load contacts failed: %w", err)
	}
	channels, err := c.GetChannels(ctx)
	if err != nil {
		return StatePayload{}, fmt.Errorf("load channels failed: %w", err)
	}

	state := StatePayload{
		Contacts:  make([]models.Contact, 0, len(contacts)),
		Channels:  make([]models.Channel, 0, len(channels)),
		Messages:  g.store.GetMessages(),
		Favorites: g.store.GetFavorites(),
	}
	for _, ct := range contacts {
		state.Contacts = append(state.Contacts, models.ContactFromProtocol(ct))
	}
	for _, ch := range channels {
		state.Channels = append(state.Channels, models.ChannelFromProtocol(ch))
	}
	return state, nil
}

// SendMessage delivers content to a contact (targetID = hex public key) or a
// channel (targetID = "ch<N>"), records it in the log, and returns the view
// record with its delivery ack code.
func (g *Gateway) SendMessage(ctx context.Context, targetID string, isChannel bool, content string) (models.Message, error) {
	c := g.client()
	if c == nil {
		return models.Message{}, client.ErrNotConnected
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:        fmt.Sprintf("msg-%d", now.UnixNano()),
		From:      "self",
		To:        targetID,
		IsChannel: isChannel,
		Content:   content,
		Timestamp: now,
		Status:    "pending",
	}

	var (
		sent protocol.SentInfo
		err  error
	)
	if isChannel {
		idx, perr := parseChannelID(targetID)
		if perr != nil {
			return models.Message{}, perr
		}
		sent, err = c.SendChannelMessage(ctx, protocol.ChannelMessageParams{
			ChannelIdx: idx,
			Timestamp:  now,
			Text:       content,
		})
	} else {
		key, derr := hex.DecodeString(targetID)
		if derr != nil || len(key) < protocol.PubKeyPrefixSize {
			return models.Message{}, protocol.ErrNoTargetKey
		}
		sent, err = c.SendMessage(ctx, protocol.ContactMessageParams{
			TargetKey: key,
			Timestamp: now,
			Text:      content,
		})
	}
	if err != nil {
		return models.Message{}, err
	}

	msg.Status = "sent"
	msg.AckCode = sent.AckCode
	g.store.AddMessage(msg)
	return msg, nil
}

func parseChannelID(id string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(id, "ch"))
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q", id)
	}
	return idx, nil
}

// SetChannel writes a channel slot on the device.
func (g *Gateway) SetChannel(ctx context.Context, index int, name string, secret []byte) error {
	c := g.client()
	if c == nil {
		return client.ErrNotConnected
	}
	return c.SetChannel(ctx, protocol.ChannelParams{
		Index:  index,
		Name:   name,
		Secret: secret,
	})
}

// Channels lists the device's configured channel slots.
func (g *Gateway) Channels(ctx context.Context) ([]models.Channel, error) {
	c := g.client()
	if c == nil {
		return nil, client.ErrNotConnected
	}
	chans, err := c.GetChannels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Channel, 0, len(chans))
	for _, ch := range chans {
		out = append(out, models.ChannelFromProtocol(ch))
	}
	return out, nil
}

// ClearChannelMessages drops the log entries for one channel.
func (g *Gateway) ClearChannelMessages(channelID string) {
	g.store.RemoveChannelMessages(channelID)
}

// ToggleFavorite flips a contact's favorite status.
func (g *Gateway) ToggleFavorite(contactID string) {
	for _, id := range g.store.GetFavorites() {
		if id == contactID {
			g.store.RemoveFavorite(contactID)
			return
		}
	}
	g.store.AddFavorite(contactID)
}

// onMeshMessage handles inbound radio messages: record and broadcast.
func (g *Gateway) onMeshMessage(m protocol.Message) {
	view := models.Message{
		ID:         fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		Content:    m.Content,
		Timestamp:  time.Now().UTC(),
		PathLen:    m.PathLen,
		SNR:        float64(m.SNRdB),
		SenderTime: m.Timestamp,
	}
	if m.ChannelIdx >= 0 {
		view.IsChannel = true
		view.To = fmt.Sprintf("ch%d", m.ChannelIdx)
		view.From = m.Sender
	} else {
		view.To = "self"
		view.From = hex.EncodeToString(m.SenderKeyPrefix)
	}

	g.store.AddMessage(view)
	g.log.Debug().
		Str("from", view.From).
		Str("to", view.To).
		Msg("broadcasting inbound mesh message")
	g.hub.Broadcast(OutgoingMessage{
		Type:    "message",
		Payload: SingleMessagePayload{Message: view},
	})
}

// onSendConfirmed matches a delivery confirmation to its pending message by
// ack code and pushes the status update to the UI.
func (g *Gateway) onSendConfirmed(conf protocol.SendConfirmation) {
	id := g.store.FindByAckCode(conf.AckCode)
	if id == "" {
		g.log.Debug().Uint32("ack", conf.AckCode).Msg("confirmation for unknown ack code")
		return
	}
	if err := g.store.UpdateMessageStatus(id, "delivered", conf.RoundTripMs); err != nil {
		g.log.Warn().Err(err).Str("id", id).Msg("status update failed")
		return
	}
	g.hub.Broadcast(OutgoingMessage{
		Type: "message_status",
		Payload: MessageStatusPayload{
			MessageID:   id,
			Status:      "delivered",
			RoundTripMs: conf.RoundTripMs,
		},
	})
}

// handleIncoming dispatches one WebSocket request from a browser client.
func (g *Gateway) handleIncoming(c *wsClient, msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultCommandTimeout)
	defer cancel()

	switch msg.Type {
	case "subscribe_state":
		state, err := g.State(ctx)
		if err != nil {
			g.log.Warn().Err(err).Msg("error loading state")
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "failed to load initial state"})
			return
		}
		c.sendJSON(OutgoingMessage{Type: "state", Payload: state})

	case "send_message":
		if msg.TargetID == "" || msg.Content == "" {
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "targetId and content are required"})
			return
		}
		if len(msg.Content) > maxMessageChars {
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: fmt.Sprintf("message is too long (max %d characters)", maxMessageChars)})
			return
		}
		m, err := g.SendMessage(ctx, msg.TargetID, msg.TargetType == "channel", msg.Content)
		if err != nil {
			g.log.Warn().Err(err).Str("target", msg.TargetID).Msg("send failed")
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "failed to send message"})
			return
		}
		g.hub.Broadcast(OutgoingMessage{
			Type:    "message",
			Payload: SingleMessagePayload{Message: m},
		})

	case "toggle_favorite":
		if msg.TargetID == "" {
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "targetId is required"})
			return
		}
		g.ToggleFavorite(msg.TargetID)
		c.sendJSON(OutgoingMessage{
			Type:    "favorites_updated",
			Payload: g.store.GetFavorites(),
		})

	case "send_zero_hop_advert":
		if err := g.sendAdvert(ctx, client.AdvertZeroHop); err != nil {
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: fmt.Sprintf("failed to send zero-hop advert: %v", err)})
			return
		}
		c.sendJSON(OutgoingMessage{Type: "advert_sent", Payload: "zero-hop"})

	case "send_flood_advert":
		if err := g.sendAdvert(ctx, client.AdvertFlood); err != nil {
			c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: fmt.Sprintf("failed to send flood advert: %v", err)})
			return
		}
		c.sendJSON(OutgoingMessage{Type: "advert_sent", Payload: "flood"})

	default:
		c.sendJSON(OutgoingMessage{Type: "error", ErrorMsg: "unknown message type"})
	}
}

func (g *Gateway) sendAdvert(ctx context.Context, kind client.AdvertKind) error {
	c := g.client()
	if c == nil {
		return client.ErrNotConnected
	}
	return c.SendAdvert(ctx, kind)
}
