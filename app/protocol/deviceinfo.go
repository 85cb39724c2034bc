package protocol

import (
	"encoding/hex"
	"fmt"
)

// DeviceInfo is the firmware/hardware identity snapshot returned by a
// DeviceQuery exchange. It is re-fetched on demand and never mutated.
type DeviceInfo struct {
	FirmwareVerCode int
	FirmwareVersion string
	FirmwareBuild   string
	Model           string
	MaxContacts     int
	MaxChannels     int
}

// Fixed offsets inside a DeviceInfo frame (firmware >= v3).
const (
	deviceInfoBuildOff = 8
	deviceInfoModelOff = 20
	deviceInfoVerOff   = 60
	deviceInfoLongForm = 80
	deviceInfoBuildLen = 12
	deviceInfoModelLen = 40
)

// TryDecodeDeviceInfo parses a DeviceInfo reply frame (code 0x0D). Firmware
// older than v3 sends only the version byte; newer firmware appends capacity
// counts, the build date, the model and a free-form version string. Missing
// trailing fields are tolerated.
func TryDecodeDeviceInfo(frame []byte) (DeviceInfo, bool) {
	var info DeviceInfo
	if len(frame) < 2 || ResponseCode(frame[0]) != RespDeviceInfo {
		return info, false
	}

	info.FirmwareVerCode = int(frame[1])
	info.FirmwareVersion = fmt.Sprintf("fw-%d", info.FirmwareVerCode)
	if info.FirmwareVerCode < 3 {
		return info, true
	}

	if b, ok := byteAt(frame, 2); ok {
		// The device reports half its contact capacity.
		info.MaxContacts = int(b) * 2
	}
	if b, ok := byteAt(frame, 3); ok {
		info.MaxChannels = int(b)
	}

	if len(frame) < deviceInfoLongForm {
		return info, true
	}

	info.FirmwareBuild = cString(frame[deviceInfoBuildOff : deviceInfoBuildOff+deviceInfoBuildLen])
	info.Model = cString(frame[deviceInfoModelOff : deviceInfoModelOff+deviceInfoModelLen])
	if ver := cString(frame[deviceInfoVerOff:]); ver != "" {
		info.FirmwareVersion = ver
	}
	return info, true
}

// DecodeDeviceInfo is the raising wrapper around TryDecodeDeviceInfo.
func DecodeDeviceInfo(frame []byte) (DeviceInfo, error) {
	info, ok := TryDecodeDeviceInfo(frame)
	if !ok {
		return DeviceInfo{}, decodeErr("DeviceInfo")
	}
	return info, nil
}

// SelfInfo describes the local node, returned in reply to AppStart.
type SelfInfo struct {
	TxPower      int
	MaxTxPower   int
	PublicKey    []byte // 32 bytes
	AdvLat       float64
	AdvLon       float64
	RadioFreqKHz uint32
	RadioBwHz    uint32
	RadioSF      byte
	RadioCR      byte
	Name         string
}

// PublicKeyHex returns the node's public key as lowercase hex.
func (s SelfInfo) PublicKeyHex() string { return hex.EncodeToString(s.PublicKey) }

// SelfInfo frame offsets: type(1) txPower(1) maxTxPower(1) pubkey(32)
// advLat(4) advLon(4) reserved(3) manualAddContacts(1) radioFreq(4)
// radioBw(4) radioSf(1) radioCr(1) name(...NUL).
const (
	selfInfoPubKeyOff = 3
	selfInfoLatOff    = 35
	selfInfoLonOff    = 39
	selfInfoFreqOff   = 47
	selfInfoBwOff     = 51
	selfInfoSFOff     = 55
	selfInfoCROff     = 56
	selfInfoNameOff   = 57
	selfInfoMinLen    = selfInfoPubKeyOff + PublicKeySize
)

// TryDecodeSelfInfo parses a SelfInfo reply frame (code 0x05). Everything
// after the public key is optional; firmware builds differ in how much of
// the radio block they emit.
func TryDecodeSelfInfo(frame []byte) (SelfInfo, bool) {
	var info SelfInfo
	if len(frame) < selfInfoMinLen || ResponseCode(frame[0]) != RespSelfInfo {
		return info, false
	}

	info.TxPower = int(frame[1])
	info.MaxTxPower = int(frame[2])
	info.PublicKey = append([]byte(nil), frame[selfInfoPubKeyOff:selfInfoPubKeyOff+PublicKeySize]...)

	if lat, ok := int32At(frame, selfInfoLatOff); ok {
		info.AdvLat = float64(lat) / 1e6
	}
	if lon, ok := int32At(frame, selfInfoLonOff); ok {
		info.AdvLon = float64(lon) / 1e6
	}
	if f, ok := uint32At(frame, selfInfoFreqOff); ok {
		info.RadioFreqKHz = f
	}
	if bw, ok := uint32At(frame, selfInfoBwOff); ok {
		info.RadioBwHz = bw
	}
	if sf, ok := byteAt(frame, selfInfoSFOff); ok {
		info.RadioSF = sf
	}
	if cr, ok := byteAt(frame, selfInfoCROff); ok {
		info.RadioCR = cr
	}
	if len(frame) > selfInfoNameOff {
		info.Name = cString(frame[selfInfoNameOff:])
	}
	return info, true
}

// DecodeSelfInfo is the raising wrapper around TryDecodeSelfInfo.
func DecodeSelfInfo(frame []byte) (SelfInfo, error) {
	info, ok := TryDecodeSelfInfo(frame)
	if !ok {
		return SelfInfo{}, decodeErr("SelfInfo")
	}
	return info, nil
}
