package client

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teabreakninja/go-meshcore/app/protocol"
)

func selfInfoFrame(name string) []byte {
	frame := make([]byte, 57+len(name))
	frame[0] = byte(protocol.RespSelfInfo)
	for i := 0; i < protocol.PublicKeySize; i++ {
		frame[3+i] = byte(i + 1)
	}
	copy(frame[57:], name)
	return frame
}

func deviceInfoFrame() []byte {
	return []byte{byte(protocol.RespDeviceInfo), 3, 50, 4}
}

func testContactFrame(name string) []byte {
	frame := make([]byte, 100+32)
	frame[0] = byte(protocol.RespContact)
	for i := 0; i < protocol.PublicKeySize; i++ {
		frame[1+i] = byte(i + 1)
	}
	frame[33] = byte(protocol.NodeTypeChat)
	frame[35] = protocol.NoPath
	copy(frame[100:], name)
	return frame
}

// newConnectedClient wires a Client to a scripted fake device that answers
// the handshake and then hands control to script for later commands.
func newConnectedClient(t *testing.T, script func(ft *fakeTransport, frame []byte)) (*Client, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	ft.onWrite = func(frame []byte) {
		switch frame[0] {
		case protocol.CmdAppStart:
			ft.inject(selfInfoFrame("test-node")...)
		case protocol.CmdDeviceQuery:
			ft.inject(deviceInfoFrame()...)
		default:
			if script != nil {
				script(ft, frame)
			}
		}
	}

	c, err := Connect(ft, Options{CommandTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, ft
}

func TestConnectHandshake(t *testing.T) {
	c, ft := newConnectedClient(t, nil)

	assert.True(t, c.IsConnected())
	assert.Equal(t, "test-node", c.SelfInfo().Name)
	assert.Equal(t, 100, c.DeviceInfo().MaxContacts)
	assert.Equal(t, 4, c.DeviceInfo().MaxChannels)

	// AppStart then DeviceQuery.
	require.Equal(t, 2, ft.writeCount())
	assert.Equal(t, protocol.CmdAppStart, ft.written[0][0])
	assert.Equal(t, protocol.CmdDeviceQuery, ft.written[1][0])
}

func TestGetContacts(t *testing.T) {
	c, _ := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] != protocol.CmdGetContacts {
			return
		}
		start := []byte{byte(protocol.RespContactsStart), 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(start[1:], 1)
		ft.inject(start...)
		ft.inject(testContactFrame("Alice")...)
		ft.inject(byte(protocol.RespEndOfContacts))
	})

	contacts, err := c.GetContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice", contacts[0].Name)
}

func TestGetContactsSkipsMalformedRecords(t *testing.T) {
	c, _ := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] != protocol.CmdGetContacts {
			return
		}
		ft.inject(byte(protocol.RespContactsStart), 2, 0, 0, 0)
		ft.inject(byte(protocol.RespContact), 1, 2) // truncated record
		ft.inject(testContactFrame("Bob")...)
		ft.inject(byte(protocol.RespEndOfContacts))
	})

	contacts, err := c.GetContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob", contacts[0].Name)
}

func TestGetContactsErrReplyFailsFast(t *testing.T) {
	c, _ := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] == protocol.CmdGetContacts {
			ft.inject(byte(protocol.RespErr), 0x05)
		}
	})

	start := time.Now()
	_, err := c.GetContacts(context.Background())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.CmdGetContacts, devErr.Opcode)
	assert.Equal(t, byte(0x05), devErr.Status)
	// The Err reply ends the listing; it must not ride out the timeout.
	assert.Less(t, time.Since(start), time.Second)
}

func TestSyncNextMessageNoMore(t *testing.T) {
	c, _ := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] == protocol.CmdSyncNextMessage {
			ft.inject(byte(protocol.RespNoMoreMessages))
		}
	})

	msg, err := c.SyncNextMessage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSendMessageReturnsAck(t *testing.T) {
	c, ft := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] != protocol.CmdSendTxtMsg {
			return
		}
		sent := []byte{byte(protocol.RespSent), 1, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(sent[2:], 0xABCD)
		ft.inject(sent...)
	})

	info, err := c.SendMessage(context.Background(), protocol.ContactMessageParams{
		TargetKey: []byte{1, 2, 3, 4, 5, 6},
		Text:      "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCD), info.AckCode)

	last := ft.written[ft.writeCount()-1]
	assert.Equal(t, protocol.CmdSendTxtMsg, last[0])
}

func TestPushMessageReachesHandler(t *testing.T) {
	received := make(chan protocol.Message, 1)
	c, ft := newConnectedClient(t, nil)
	c.SetHandlers(Handlers{
		OnMessage: func(m protocol.Message) { received <- m },
	})

	frame := []byte{byte(protocol.RespChannelMsgRecv), 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[4:], 1700000000)
	frame = append(frame, "Alice: hi"...)
	ft.inject(frame...)

	select {
	case m := <-received:
		assert.Equal(t, "Alice", m.Sender)
		assert.Equal(t, "hi", m.Content)
	case <-time.After(time.Second):
		t.Fatal("message push never reached handler")
	}
}

func TestDeviceErrorSurfacesStatus(t *testing.T) {
	c, _ := newConnectedClient(t, func(ft *fakeTransport, frame []byte) {
		if frame[0] == protocol.CmdSetAdvertName {
			ft.inject(byte(protocol.RespErr), 0x03)
		}
	})

	err := c.SetAdvertName(context.Background(), "too-late")
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, byte(0x03), devErr.Status)
}
