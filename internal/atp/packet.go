// Package atp implements a reliable-datagram transaction protocol over UDP,
// modeled on the AppleTalk Transaction Protocol framing the campus
// notification service was originally built on: a request/response/release
// exchange with retransmission, addressed by a one-byte sequence number and
// a 16-bit transaction id.
package atp

import (
	"encoding/binary"
	"fmt"
)

// Kind is the ATP packet type.
type Kind byte

const (
	KindRequest  Kind = 0x40
	KindResponse Kind = 0x80
	KindRelease  Kind = 0xC0
)

// Flag bits, combined with a Kind to form the packet's type/flags octet.
const (
	FlagXO       byte = 0x20 // "exactly once" transaction semantics
	FlagEOM      byte = 0x10 // end of message
	FlagSTS      byte = 0x08 // send transaction status
	FlagXCall    byte = 0x04
	FlagTID      byte = 0x02
	FlagChecksum byte = 0x01
)

const ddpATPTag byte = 0x03

// headerLen is the fixed header size: the DDP tag octet, the combined
// kind/flags octet, the sequence number, and the 2-byte transaction id.
const headerLen = 5

// UserDataLen is the fixed width of a packet's four-byte user-data tag
// (e.g. "NOTI", "NR02", "CLEN").
const UserDataLen = 4

// Packet is one ATP datagram.
type Packet struct {
	Kind     Kind
	Flags    byte
	Seq      byte
	TID      uint16
	UserData [UserDataLen]byte
	Data     []byte
}

// Encode serializes a Packet to wire form.
func Encode(p Packet) []byte {
	out := make([]byte, headerLen+UserDataLen+len(p.Data))
	out[0] = ddpATPTag
	out[1] = byte(p.Kind) | p.Flags
	out[2] = p.Seq
	binary.BigEndian.PutUint16(out[3:5], p.TID)
	copy(out[5:9], p.UserData[:])
	copy(out[9:], p.Data)
	return out
}

// Decode parses a wire-form ATP datagram.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < headerLen+UserDataLen {
		return Packet{}, fmt.Errorf("atp: truncated packet header (%d bytes)", len(raw))
	}
	if raw[0] != ddpATPTag {
		return Packet{}, fmt.Errorf("atp: not an ATP packet (tag %#x)", raw[0])
	}
	kfl := raw[1]
	var p Packet
	p.Kind = Kind(kfl & 0xC0)
	p.Flags = kfl & 0x3F
	p.Seq = raw[2]
	p.TID = binary.BigEndian.Uint16(raw[3:5])
	copy(p.UserData[:], raw[5:9])
	if len(raw) > headerLen+UserDataLen {
		p.Data = append([]byte(nil), raw[headerLen+UserDataLen:]...)
	}
	return p, nil
}

// Notification service codes, matching the BlitzNotify wire protocol.
const (
	ServiceControl  = 0
	ServiceMail     = 1
	ServiceBulletin = 2
	ServiceTalk     = 3
)

// ServiceNames maps recognized service aliases to their wire codes.
var ServiceNames = map[string]int{
	"control":   ServiceControl,
	"ctrl":      ServiceControl,
	"reset":     ServiceControl,
	"mail":      ServiceMail,
	"email":     ServiceMail,
	"blitzmail": ServiceMail,
	"bulletin":  ServiceBulletin,
	"news":      ServiceBulletin,
	"talk":      ServiceTalk,
}

// ResolveService maps a service name to its wire code, accepting a bare
// numeric string as a fallback for forward-compatible service codes.
func ResolveService(name string) (int, bool) {
	if code, ok := ServiceNames[name]; ok {
		return code, true
	}
	var code int
	if _, err := fmt.Sscanf(name, "%d", &code); err == nil {
		return code, true
	}
	return 0, false
}

// EncodeNotifyRequest builds the payload of a notification request: the
// service code, user id, and message id, followed by opaque data.
func EncodeNotifyRequest(service int, uid, msgID uint32, data []byte) []byte {
	out := make([]byte, 12+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(service))
	binary.BigEndian.PutUint32(out[4:8], uid)
	binary.BigEndian.PutUint32(out[8:12], msgID)
	copy(out[12:], data)
	return out
}

// DecodeNotifyRequest parses a notification request payload.
func DecodeNotifyRequest(pkt []byte) (service int, uid, msgID uint32, data []byte, err error) {
	if len(pkt) < 12 {
		return 0, 0, 0, nil, fmt.Errorf("atp: truncated notify request (%d bytes)", len(pkt))
	}
	service = int(binary.BigEndian.Uint32(pkt[0:4]))
	uid = binary.BigEndian.Uint32(pkt[4:8])
	msgID = binary.BigEndian.Uint32(pkt[8:12])
	if len(pkt) > 12 {
		data = append([]byte(nil), pkt[12:]...)
	}
	return service, uid, msgID, data, nil
}

// EncodeRegisterRequest builds the payload of a client-registration
// request: a Pascal-style user id string, the client's listening port, and
// its desired service codes.
func EncodeRegisterRequest(uid string, port uint16, svcs []int) ([]byte, error) {
	if len(uid) > 255 {
		return nil, fmt.Errorf("atp: uid too long for registration (%d bytes)", len(uid))
	}
	out := make([]byte, 1+len(uid)+2+4+4*len(svcs))
	out[0] = byte(len(uid))
	copy(out[1:], uid)
	pos := 1 + len(uid)
	binary.BigEndian.PutUint16(out[pos:pos+2], port)
	pos += 2
	binary.BigEndian.PutUint32(out[pos:pos+4], uint32(len(svcs)))
	pos += 4
	for _, svc := range svcs {
		binary.BigEndian.PutUint32(out[pos:pos+4], uint32(svc))
		pos += 4
	}
	return out, nil
}

// DecodeRegisterRequest parses a client-registration request payload.
func DecodeRegisterRequest(pkt []byte) (uid string, port uint16, svcs []int, err error) {
	if len(pkt) < 1 {
		return "", 0, nil, fmt.Errorf("atp: empty register request")
	}
	ulen := int(pkt[0])
	if len(pkt) < 1+ulen+6 {
		return "", 0, nil, fmt.Errorf("atp: truncated register request")
	}
	uid = string(pkt[1 : 1+ulen])
	rest := pkt[1+ulen:]
	port = binary.BigEndian.Uint16(rest[0:2])
	numSvc := int(binary.BigEndian.Uint32(rest[2:6]))
	rest = rest[6:]
	if len(rest) < 4*numSvc {
		return "", 0, nil, fmt.Errorf("atp: truncated register request service list")
	}
	svcs = make([]int, numSvc)
	for i := 0; i < numSvc; i++ {
		svcs[i] = int(binary.BigEndian.Uint32(rest[4*i : 4*i+4]))
	}
	return uid, port, svcs, nil
}

// EncodeClearRequest builds the payload of a sticky-notification clear
// request: the user id and the service to clear.
func EncodeClearRequest(uid uint32, service int) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[0:4], uid)
	binary.BigEndian.PutUint32(out[4:8], uint32(service))
	return out
}

// DecodeClearRequest parses a sticky-notification clear request payload.
func DecodeClearRequest(pkt []byte) (uid uint32, service int, err error) {
	if len(pkt) < 8 {
		return 0, 0, fmt.Errorf("atp: truncated clear request (%d bytes)", len(pkt))
	}
	uid = binary.BigEndian.Uint32(pkt[0:4])
	service = int(binary.BigEndian.Uint32(pkt[4:8]))
	return uid, service, nil
}
