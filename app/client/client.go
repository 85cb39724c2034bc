// Package client exposes the typed MeshCore companion API: a connection
// facade over a framed transport, with synchronous commands correlated to
// their replies and unsolicited pushes surfaced as callbacks.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teabreakninja/go-meshcore/app/protocol"
	"github.com/teabreakninja/go-meshcore/app/transport"
)

// Options tunes a connection.
type Options struct {
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration
	// AppName is advertised to the firmware during the handshake.
	AppName string
	// NeighborPrefixLen overrides the pubkey-prefix width in neighbor
	// listings (default 4).
	NeighborPrefixLen int
}

// Handlers receive unsolicited push events. All callbacks are optional and
// are invoked from the read loop; they must not block.
type Handlers struct {
	OnMessage       func(protocol.Message)
	OnAdvert        func(protocol.Advert)
	OnNewAdvert     func(frame []byte)
	OnPathUpdated   func(protocol.AdvertPathInfo)
	OnSendConfirmed func(protocol.SendConfirmation)
	OnStatus        func(protocol.StatusInfo)
	OnTrace         func(protocol.PathDiscoveryResult)
	OnLogRx         func(protocol.LogRxData)
	OnRawData       func(frame []byte)
	OnUnknown       func(frame []byte)
}

// Client is a connected MeshCore companion device.
type Client struct {
	tr  transport.Transport
	d   *dispatcher
	log zerolog.Logger

	appName   string
	prefixLen int

	mu        sync.Mutex
	connected bool
	self      protocol.SelfInfo
	info      protocol.DeviceInfo
	handlers  Handlers
}

const defaultAppName = "gomeshcore"

// Connect performs the companion handshake (AppStart then DeviceQuery) over
// the transport and starts the background read loop.
func Connect(tr transport.Transport, opts Options) (*Client, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	appName := opts.AppName
	if appName == "" {
		appName = defaultAppName
	}

	c := &Client{
		tr:        tr,
		log:       log,
		appName:   appName,
		prefixLen: opts.NeighborPrefixLen,
	}
	c.d = newDispatcher(tr, log, opts.CommandTimeout, c.handlePush)

	if err := c.handshake(); err != nil {
		return nil, fmt.Errorf("meshcore handshake failed: %w", err)
	}

	c.connected = true
	go c.d.run()
	log.Info().
		Str("firmware", c.info.FirmwareVersion).
		Str("model", c.info.Model).
		Msg("connected to meshcore node")
	return c, nil
}

// handshake runs synchronously on the raw transport, before the read loop
// exists. Stray pushes arriving mid-handshake are skipped.
func (c *Client) handshake() error {
	// AppStart layout: cmd, appVer, 6 reserved bytes, then the app name.
	appStart := make([]byte, 8+len(c.appName))
	appStart[0] = protocol.CmdAppStart
	appStart[1] = 0x01
	copy(appStart[8:], c.appName)
	if err := c.tr.WriteFrame(appStart); err != nil {
		return fmt.Errorf("send AppStart failed: %w", err)
	}

	frame, err := c.awaitHandshakeReply(protocol.RespSelfInfo)
	if err != nil {
		return err
	}
	self, err := protocol.DecodeSelfInfo(frame)
	if err != nil {
		return err
	}

	if err := c.tr.WriteFrame([]byte{protocol.CmdDeviceQuery, 0x01}); err != nil {
		return fmt.Errorf("send DeviceQuery failed: %w", err)
	}
	frame, err = c.awaitHandshakeReply(protocol.RespDeviceInfo)
	if err != nil {
		return err
	}
	info, err := protocol.DecodeDeviceInfo(frame)
	if err != nil {
		return err
	}

	c.self = self
	c.info = info
	return nil
}

// awaitHandshakeReply reads frames until one carries the wanted code,
// skipping a bounded number of unrelated pushes.
func (c *Client) awaitHandshakeReply(want protocol.ResponseCode) ([]byte, error) {
	for skipped := 0; skipped < 8; skipped++ {
		frame, err := c.tr.ReadFrame()
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			continue
		}
		code := protocol.ResponseCode(frame[0])
		if code == want {
			return frame, nil
		}
		if code.IsPush() {
			c.log.Debug().Stringer("code", code).Msg("skipping push during handshake")
			continue
		}
		return nil, fmt.Errorf("expected %s but got %s (0x%02x)", want, code, frame[0])
	}
	return nil, fmt.Errorf("no %s reply during handshake", want)
}

// Close stops the read loop and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.d.close()
	return c.tr.Close()
}

// IsConnected reports whether the client holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SelfInfo returns the local node identity captured at handshake.
func (c *Client) SelfInfo() protocol.SelfInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// DeviceInfo returns the device identity captured at handshake.
func (c *Client) DeviceInfo() protocol.DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// SetHandlers installs the push-event callbacks.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Client) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// GetContacts fetches the device's full contact table. The reply is a
// stream: ContactsStart, then one Contact frame per record, closed by
// EndOfContacts. Records that fail decode are skipped, not fatal.
func (c *Client) GetContacts(ctx context.Context) ([]protocol.Contact, error) {
	if err := c.d.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.d.release()

	stream, cancel := c.d.subscribe(
		protocol.RespErr,
		protocol.RespContactsStart,
		protocol.RespContact,
		protocol.RespEndOfContacts,
	)
	defer cancel()

	if err := c.tr.WriteFrame([]byte{protocol.CmdGetContacts}); err != nil {
		return nil, fmt.Errorf("send GetContacts failed: %w", err)
	}

	var (
		contacts []protocol.Contact
		reported uint32
	)
	timer := time.NewTimer(c.d.timeout)
	defer timer.Stop()

	for {
		select {
		case frame := <-stream:
			switch protocol.ResponseCode(frame[0]) {
			case protocol.RespErr:
				var status byte
				if len(frame) > 1 {
					status = frame[1]
				}
				return nil, &DeviceError{Opcode: protocol.CmdGetContacts, Status: status}
			case protocol.RespContactsStart:
				if count, ok := protocol.TryDecodeContactsStart(frame); ok {
					reported = count
				}
			case protocol.RespContact:
				contact, ok := protocol.TryDecodeContact(frame)
				if !ok {
					c.log.Warn().Int("len", len(frame)).Msg("skipping malformed contact record")
					continue
				}
				contacts = append(contacts, contact)
			case protocol.RespEndOfContacts:
				c.log.Debug().
					Int("parsed", len(contacts)).
					Uint32("reported", reported).
					Msg("contact listing complete")
				return contacts, nil
			}
		case <-timer.C:
			return nil, &TimeoutError{Opcode: protocol.CmdGetContacts}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetChannel fetches one channel slot. An unconfigured slot decodes as a
// blank-name record, surfaced as a DecodeError.
func (c *Client) GetChannel(ctx context.Context, index int) (protocol.Channel, error) {
	resp, err := c.d.sendCommand(ctx, protocol.CmdGetChannel, []byte{byte(index)}, protocol.RespChannelInfo)
	if err != nil {
		return protocol.Channel{}, err
	}
	return protocol.DecodeChannel(resp)
}

// GetChannels queries every slot up to the device's channel capacity,
// skipping unconfigured ones.
func (c *Client) GetChannels(ctx context.Context) ([]protocol.Channel, error) {
	max := c.DeviceInfo().MaxChannels
	if max == 0 {
		max = 4
	}

	var channels []protocol.Channel
	for i := 0; i < max; i++ {
		ch, err := c.GetChannel(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return channels, ctx.Err()
			}
			c.log.Debug().Int("index", i).Err(err).Msg("channel slot not available")
			continue
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// SetChannel writes a channel slot.
func (c *Client) SetChannel(ctx context.Context, params protocol.ChannelParams) error {
	payload, err := params.Encode()
	if err != nil {
		return err
	}
	_, err = c.d.sendCommand(ctx, protocol.CmdSetChannel, payload, protocol.RespOk)
	return err
}

// SendMessage sends a plain chat message to a contact and returns the
// device's Sent acknowledgement. The ack code in it is echoed by a
// SendConfirmed push once the message is delivered end to end.
func (c *Client) SendMessage(ctx context.Context, params protocol.ContactMessageParams) (protocol.SentInfo, error) {
	if params.Timestamp.IsZero() {
		params.Timestamp = time.Now()
	}
	payload, err := params.Encode()
	if err != nil {
		return protocol.SentInfo{}, err
	}

	resp, err := c.d.sendCommand(ctx, protocol.CmdSendTxtMsg, payload, protocol.RespSent)
	if err != nil {
		return protocol.SentInfo{}, err
	}
	sent, ok := protocol.TryDecodeSent(resp)
	if !ok {
		return protocol.SentInfo{}, &protocol.DecodeError{Entity: "Sent"}
	}
	return sent, nil
}

// SendChannelMessage broadcasts a message on a channel.
func (c *Client) SendChannelMessage(ctx context.Context, params protocol.ChannelMessageParams) (protocol.SentInfo, error) {
	if params.Timestamp.IsZero() {
		params.Timestamp = time.Now()
	}
	payload, err := params.Encode()
	if err != nil {
		return protocol.SentInfo{}, err
	}

	resp, err := c.d.sendCommand(ctx, protocol.CmdSendChannelTxtMsg, payload, protocol.RespSent, protocol.RespOk)
	if err != nil {
		return protocol.SentInfo{}, err
	}
	// Some firmware acknowledges channel sends with a bare Ok.
	sent, _ := protocol.TryDecodeSent(resp)
	return sent, nil
}

// SendCommand sends a remote-CLI command to a repeater or room server. The
// textual reply arrives later as a CLI-tagged contact message push.
func (c *Client) SendCommand(ctx context.Context, cmd protocol.Command) (protocol.SentInfo, error) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	payload, err := cmd.Encode()
	if err != nil {
		return protocol.SentInfo{}, err
	}

	resp, err := c.d.sendCommand(ctx, protocol.CmdSendTxtMsg, payload, protocol.RespSent)
	if err != nil {
		return protocol.SentInfo{}, err
	}
	sent, ok := protocol.TryDecodeSent(resp)
	if !ok {
		return protocol.SentInfo{}, &protocol.DecodeError{Entity: "Sent"}
	}
	return sent, nil
}

// SyncNextMessage asks the device for the next queued inbound message.
// Returns nil when the device reports no more messages.
func (c *Client) SyncNextMessage(ctx context.Context) (*protocol.Message, error) {
	resp, err := c.d.sendCommand(ctx, protocol.CmdSyncNextMessage, nil,
		protocol.RespContactMsgRecv,
		protocol.RespContactMsgRecvV3,
		protocol.RespChannelMsgRecv,
		protocol.RespChannelMsgRecvV3,
		protocol.RespNoMoreMessages,
	)
	if err != nil {
		return nil, err
	}

	switch protocol.Classify(resp[0]) {
	case protocol.FrameContactMessage:
		msg, err := protocol.DecodeContactMessage(resp)
		if err != nil {
			return nil, err
		}
		return &msg, nil
	case protocol.FrameChannelMessage:
		msg, err := protocol.DecodeChannelMessage(resp)
		if err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, nil
	}
}

// GetWaitingMessages drains the device's inbound queue.
func (c *Client) GetWaitingMessages(ctx context.Context) ([]protocol.Message, error) {
	var out []protocol.Message
	for {
		msg, err := c.SyncNextMessage(ctx)
		if err != nil {
			return out, err
		}
		if msg == nil {
			return out, nil
		}
		out = append(out, *msg)
	}
}

// AdvertKind selects how a self-advertisement propagates.
type AdvertKind byte

const (
	// AdvertZeroHop reaches direct neighbors only.
	AdvertZeroHop AdvertKind = 0
	// AdvertFlood propagates through the mesh.
	AdvertFlood AdvertKind = 1
)

// SendAdvert broadcasts a self-advertisement. The firmware sends no reply
// frame for this command.
func (c *Client) SendAdvert(ctx context.Context, kind AdvertKind) error {
	return c.d.fireAndForget(ctx, protocol.CmdSendSelfAdvert, []byte{byte(kind)})
}

// GetBatteryAndStorage queries battery voltage and flash usage.
func (c *Client) GetBatteryAndStorage(ctx context.Context) (protocol.BatteryAndStorage, error) {
	resp, err := c.d.sendCommand(ctx, protocol.CmdGetBattAndStorage, nil, protocol.RespBattAndStorage)
	if err != nil {
		return protocol.BatteryAndStorage{}, err
	}
	return protocol.DecodeBatteryAndStorage(resp)
}

// GetRadioStats queries the local radio's counter snapshot.
func (c *Client) GetRadioStats(ctx context.Context) (protocol.RadioStats, error) {
	resp, err := c.d.sendCommand(ctx, protocol.CmdGetRadioStats, nil, protocol.RespStats)
	if err != nil {
		return protocol.RadioStats{}, err
	}
	return protocol.DecodeRadioStats(resp)
}

// GetDeviceTime reads the device clock.
func (c *Client) GetDeviceTime(ctx context.Context) (time.Time, error) {
	resp, err := c.d.sendCommand(ctx, protocol.CmdGetDeviceTime, nil, protocol.RespCurrTime)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := protocol.TryDecodeCurrTime(resp)
	if !ok {
		return time.Time{}, &protocol.DecodeError{Entity: "CurrTime"}
	}
	return t, nil
}

// SetDeviceTime sets the device clock.
func (c *Client) SetDeviceTime(ctx context.Context, t time.Time) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(t.Unix()))
	_, err := c.d.sendCommand(ctx, protocol.CmdSetDeviceTime, payload, protocol.RespOk)
	return err
}

// SetAdvertName sets the local node's advertised name.
func (c *Client) SetAdvertName(ctx context.Context, name string) error {
	if name == "" {
		return protocol.ErrEmptyText
	}
	_, err := c.d.sendCommand(ctx, protocol.CmdSetAdvertName, []byte(name), protocol.RespOk)
	return err
}

// SetAdvertLatLon sets the local node's advertised position.
func (c *Client) SetAdvertLatLon(ctx context.Context, lat, lon float64) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], uint32(int32(lat*1e6)))
	binary.LittleEndian.PutUint32(payload[4:], uint32(int32(lon*1e6)))
	_, err := c.d.sendCommand(ctx, protocol.CmdSetAdvertLatLon, payload, protocol.RespOk)
	return err
}

// SetRadioParams reconfigures the radio.
func (c *Client) SetRadioParams(ctx context.Context, params protocol.RadioParams) error {
	payload, err := params.Encode()
	if err != nil {
		return err
	}
	_, err = c.d.sendCommand(ctx, protocol.CmdSetRadioParams, payload, protocol.RespOk)
	return err
}

// ResetPath clears the stored outbound route for a contact, forcing flood
// routing until a new path is learned.
func (c *Client) ResetPath(ctx context.Context, keyPrefix []byte) error {
	if len(keyPrefix) < protocol.PubKeyPrefixSize {
		return protocol.ErrNoTargetKey
	}
	_, err := c.d.sendCommand(ctx, protocol.CmdResetPath, keyPrefix[:protocol.PubKeyPrefixSize], protocol.RespOk)
	return err
}

// SendStatusRequest asks a remote node for its status snapshot. The reply
// arrives later as a StatusResponse push routed to Handlers.OnStatus.
func (c *Client) SendStatusRequest(ctx context.Context, keyPrefix []byte) error {
	if len(keyPrefix) < protocol.PubKeyPrefixSize {
		return protocol.ErrNoTargetKey
	}
	_, err := c.d.sendCommand(ctx, protocol.CmdSendStatusReq, keyPrefix[:protocol.PubKeyPrefixSize], protocol.RespOk, protocol.RespSent)
	return err
}

// binaryReqNeighbors is the request-type byte for a neighbor-table query.
const binaryReqNeighbors byte = 0x03

// GetNeighbors queries a repeater's neighbor table via the binary
// request/response pair.
func (c *Client) GetNeighbors(ctx context.Context, keyPrefix []byte) (protocol.NeighborList, error) {
	if len(keyPrefix) < protocol.PubKeyPrefixSize {
		return protocol.NeighborList{}, protocol.ErrNoTargetKey
	}

	payload := make([]byte, 1+protocol.PubKeyPrefixSize)
	payload[0] = binaryReqNeighbors
	copy(payload[1:], keyPrefix[:protocol.PubKeyPrefixSize])

	resp, err := c.d.sendCommand(ctx, protocol.CmdSendBinaryReq, payload, protocol.PushBinaryResponse)
	if err != nil {
		return protocol.NeighborList{}, err
	}
	return protocol.DecodeNeighborList(resp[1:], c.prefixLen)
}

// SendTracePath launches a path probe. The result arrives later as a
// TraceData push routed to Handlers.OnTrace.
func (c *Client) SendTracePath(ctx context.Context, params protocol.SendTracePathParams) error {
	payload, err := params.Encode()
	if err != nil {
		return err
	}
	_, err = c.d.sendCommand(ctx, protocol.CmdSendTracePath, payload, protocol.RespOk, protocol.RespSent)
	return err
}

// Reboot restarts the device. The connection is unusable afterwards.
func (c *Client) Reboot(ctx context.Context) error {
	return c.d.fireAndForget(ctx, protocol.CmdReboot, nil)
}

// handlePush routes unsolicited frames. A push that fails decode suppresses
// that one event; it never disturbs the dispatcher or the read loop.
func (c *Client) handlePush(frame []byte) {
	code := protocol.ResponseCode(frame[0])
	h := c.currentHandlers()

	switch code {
	case protocol.PushMsgWaiting:
		go c.drainWaitingMessages()

	case protocol.RespContactMsgRecv, protocol.RespContactMsgRecvV3:
		if msg, ok := protocol.TryDecodeContactMessage(frame); ok {
			if h.OnMessage != nil {
				h.OnMessage(msg)
			}
		} else {
			c.log.Warn().Stringer("code", code).Msg("dropping undecodable contact message push")
		}

	case protocol.RespChannelMsgRecv, protocol.RespChannelMsgRecvV3:
		if msg, ok := protocol.TryDecodeChannelMessage(frame); ok {
			if h.OnMessage != nil {
				h.OnMessage(msg)
			}
		} else {
			c.log.Warn().Stringer("code", code).Msg("dropping undecodable channel message push")
		}

	case protocol.PushAdvert:
		if adv, ok := protocol.TryDecodeAdvert(frame); ok && h.OnAdvert != nil {
			h.OnAdvert(adv)
		}

	case protocol.PushNewAdvert:
		if h.OnNewAdvert != nil {
			h.OnNewAdvert(frame)
		}

	case protocol.PushPathUpdated:
		if path, ok := protocol.TryDecodeAdvertPathInfo(frame); ok && h.OnPathUpdated != nil {
			h.OnPathUpdated(path)
		}

	case protocol.PushSendConfirmed:
		if conf, ok := protocol.TryDecodeSendConfirmed(frame); ok && h.OnSendConfirmed != nil {
			h.OnSendConfirmed(conf)
		}

	case protocol.PushStatusResponse:
		if status, ok := protocol.TryDecodeStatusInfo(frame); ok {
			if h.OnStatus != nil {
				h.OnStatus(status)
			}
		} else {
			c.log.Warn().Msg("dropping undecodable status push")
		}

	case protocol.PushTraceData:
		if trace, ok := protocol.TryDecodePathDiscoveryResult(frame); ok && h.OnTrace != nil {
			h.OnTrace(trace)
		}

	case protocol.PushLogRxData:
		if rx, ok := protocol.TryDecodeLogRxData(frame); ok && h.OnLogRx != nil {
			h.OnLogRx(rx)
		}

	case protocol.PushRawData, protocol.PushTelemetry, protocol.PushLoginSuccess, protocol.PushBinaryResponse:
		if h.OnRawData != nil {
			h.OnRawData(frame)
		}

	default:
		c.log.Debug().
			Stringer("code", code).
			Int("len", len(frame)).
			Msg("unknown push frame")
		if h.OnUnknown != nil {
			h.OnUnknown(frame)
		}
	}
}

// drainWaitingMessages empties the device queue after a MsgWaiting push,
// delivering each message through OnMessage.
func (c *Client) drainWaitingMessages() {
	ctx, cancel := context.WithTimeout(context.Background(), c.d.timeout)
	defer cancel()

	msgs, err := c.GetWaitingMessages(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("error draining waiting messages")
	}
	if len(msgs) == 0 {
		return
	}

	h := c.currentHandlers()
	if h.OnMessage == nil {
		return
	}
	for _, msg := range msgs {
		h.OnMessage(msg)
	}
}
