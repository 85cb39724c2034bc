// Package protocol implements the MeshCore companion-radio wire protocol:
// the binary codecs for every frame the firmware sends or accepts, and the
// classifier that maps an inbound frame's first byte to the codec to use.
//
// All multi-byte integers on the wire are little-endian. Fixed-width string
// fields are NUL-padded. A length byte of 0xFF means "absent", and an
// all-zero 16-byte channel secret means "unencrypted".
package protocol

// Command opcodes (host -> device, first byte of an outbound frame).
const (
	CmdAppStart          byte = 0x01
	CmdSendTxtMsg        byte = 0x02
	CmdSendChannelTxtMsg byte = 0x03
	CmdGetContacts       byte = 0x04
	CmdGetDeviceTime     byte = 0x05
	CmdSetDeviceTime     byte = 0x06
	CmdSendSelfAdvert    byte = 0x07
	CmdSetAdvertName     byte = 0x08
	CmdAddUpdateContact  byte = 0x09
	CmdSyncNextMessage   byte = 0x0A
	CmdSetRadioParams    byte = 0x0B
	CmdSetTxPower        byte = 0x0C
	CmdResetPath         byte = 0x0D
	CmdSetAdvertLatLon   byte = 0x0E
	CmdRemoveContact     byte = 0x0F
	CmdShareContact      byte = 0x10
	CmdExportContact     byte = 0x11
	CmdImportContact     byte = 0x12
	CmdReboot            byte = 0x13
	CmdGetBattAndStorage byte = 0x14
	CmdSetTuningParams   byte = 0x15
	CmdDeviceQuery       byte = 0x16
	CmdExportPrivateKey  byte = 0x17
	CmdImportPrivateKey  byte = 0x18
	CmdSendRawData       byte = 0x19
	CmdSendLogin         byte = 0x1A
	CmdSendStatusReq     byte = 0x1B
	CmdGetChannel        byte = 0x1F
	CmdSetChannel        byte = 0x20
	CmdSignStart         byte = 0x21
	CmdSignData          byte = 0x22
	CmdSignFinish        byte = 0x23
	CmdSendTracePath     byte = 0x24
	CmdGetRadioStats     byte = 0x25
	CmdSetOtherParams    byte = 0x26
	CmdSendTelemetryReq  byte = 0x27
	CmdSendBinaryReq     byte = 0x32
)

// ResponseCode identifies the kind of an inbound frame. It is always the
// first byte of the frame.
type ResponseCode byte

// Reply codes (device -> host, answering a command).
const (
	RespOk               ResponseCode = 0x00
	RespErr              ResponseCode = 0x01
	RespContactsStart    ResponseCode = 0x02
	RespContact          ResponseCode = 0x03
	RespEndOfContacts    ResponseCode = 0x04
	RespSelfInfo         ResponseCode = 0x05
	RespSent             ResponseCode = 0x06
	RespContactMsgRecv   ResponseCode = 0x07
	RespChannelMsgRecv   ResponseCode = 0x08
	RespCurrTime         ResponseCode = 0x09
	RespNoMoreMessages   ResponseCode = 0x0A
	RespExportContact    ResponseCode = 0x0B
	RespBattAndStorage   ResponseCode = 0x0C
	RespDeviceInfo       ResponseCode = 0x0D
	RespPrivateKey       ResponseCode = 0x0E
	RespDisabled         ResponseCode = 0x0F
	RespContactMsgRecvV3 ResponseCode = 0x10
	RespChannelMsgRecvV3 ResponseCode = 0x11
	RespChannelInfo      ResponseCode = 0x12
	RespSignStart        ResponseCode = 0x13
	RespSignature        ResponseCode = 0x14
	RespStats            ResponseCode = 0x15
)

// Push codes (device -> host, unsolicited).
const (
	PushAdvert         ResponseCode = 0x80
	PushPathUpdated    ResponseCode = 0x81
	PushSendConfirmed  ResponseCode = 0x82
	PushMsgWaiting     ResponseCode = 0x83
	PushRawData        ResponseCode = 0x84
	PushLoginSuccess   ResponseCode = 0x85
	PushStatusResponse ResponseCode = 0x87
	PushLogRxData      ResponseCode = 0x88
	PushTraceData      ResponseCode = 0x89
	PushNewAdvert      ResponseCode = 0x8A
	PushTelemetry      ResponseCode = 0x8B
	PushBinaryResponse ResponseCode = 0x8C
)

// IsPush reports whether the code is in the unsolicited push range.
func (c ResponseCode) IsPush() bool { return c >= 0x80 }

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return "Unknown"
}

var responseCodeNames = map[ResponseCode]string{
	RespOk:               "Ok",
	RespErr:              "Err",
	RespContactsStart:    "ContactsStart",
	RespContact:          "Contact",
	RespEndOfContacts:    "EndOfContacts",
	RespSelfInfo:         "SelfInfo",
	RespSent:             "Sent",
	RespContactMsgRecv:   "ContactMsgRecv",
	RespChannelMsgRecv:   "ChannelMsgRecv",
	RespCurrTime:         "CurrTime",
	RespNoMoreMessages:   "NoMoreMessages",
	RespExportContact:    "ExportContact",
	RespBattAndStorage:   "BattAndStorage",
	RespDeviceInfo:       "DeviceInfo",
	RespPrivateKey:       "PrivateKey",
	RespDisabled:         "Disabled",
	RespContactMsgRecvV3: "ContactMsgRecvV3",
	RespChannelMsgRecvV3: "ChannelMsgRecvV3",
	RespChannelInfo:      "ChannelInfo",
	RespSignStart:        "SignStart",
	RespSignature:        "Signature",
	RespStats:            "Stats",
	PushAdvert:           "Advert",
	PushPathUpdated:      "PathUpdated",
	PushSendConfirmed:    "SendConfirmed",
	PushMsgWaiting:       "MsgWaiting",
	PushRawData:          "RawData",
	PushLoginSuccess:     "LoginSuccess",
	PushStatusResponse:   "StatusResponse",
	PushLogRxData:        "LogRxData",
	PushTraceData:        "TraceData",
	PushNewAdvert:        "NewAdvert",
	PushTelemetry:        "Telemetry",
	PushBinaryResponse:   "BinaryResponse",
}

// FrameKind is the classifier's verdict for an inbound frame. It tells the
// dispatcher which decoder to try; it never rejects a byte outright so that
// frame kinds added by newer firmware flow through as FrameUnknown instead
// of breaking the read loop.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameReply
	FrameContactMessage
	FrameChannelMessage
	FramePush
)

// Classify maps the first byte of an inbound frame to its kind. Pure and
// total: every byte value yields a kind.
func Classify(b byte) FrameKind {
	c := ResponseCode(b)
	switch c {
	case RespContactMsgRecv, RespContactMsgRecvV3:
		return FrameContactMessage
	case RespChannelMsgRecv, RespChannelMsgRecvV3:
		return FrameChannelMessage
	}
	if c.IsPush() {
		if _, known := responseCodeNames[c]; known {
			return FramePush
		}
		return FrameUnknown
	}
	if _, known := responseCodeNames[c]; known {
		return FrameReply
	}
	return FrameUnknown
}
