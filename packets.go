package binlogstream

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"fmt"
)

// Generic response markers: the first byte of a packet tells the reader
// which of the three generic response shapes follows.
const (
	okMarker  byte = 0x00
	eofMarker byte = 0xfe
	errMarker byte = 0xff
)

// capability flags, https://dev.mysql.com/doc/internals/en/capability-flags.html#packet-Protocol::CapabilityFlags
const (
	capLongPassword           uint32 = 0x00000001
	capFoundRows              uint32 = 0x00000002
	capLongFlag               uint32 = 0x00000004
	capConnectWithDB          uint32 = 0x00000008
	capCompress               uint32 = 0x00000020
	capProtocol41             uint32 = 0x00000200
	capSSL                    uint32 = 0x00000800
	capTransactions           uint32 = 0x00002000
	capSecureConnection       uint32 = 0x00008000
	capMultiStatements        uint32 = 0x00010000
	capMultiResults           uint32 = 0x00020000
	capPluginAuth             uint32 = 0x00080000
	capConnectAttrs           uint32 = 0x00100000
	capPluginAuthLenencData   uint32 = 0x00200000
	capSessionTrack           uint32 = 0x00800000
	capDeprecateEOF           uint32 = 0x01000000
)

// errPacket, https://dev.mysql.com/doc/internals/en/packet-ERR_Packet.html
type errPacket struct {
	errorCode      uint16
	sqlStateMarker string
	sqlState       string
	errorMessage   string
}

func (e *errPacket) decode(r *reader, capabilities uint32) error {
	marker := r.int1()
	if r.err != nil {
		return r.err
	}
	if marker != errMarker {
		return fmt.Errorf("binlogstream: errPacket.marker is 0x%02x", marker)
	}
	e.errorCode = r.int2()
	if capabilities&capProtocol41 != 0 {
		e.sqlStateMarker = r.string(1)
		e.sqlState = r.string(5)
	}
	e.errorMessage = r.stringEOF()
	return r.err
}

// okPacket, https://dev.mysql.com/doc/internals/en/packet-OK_Packet.html
type okPacket struct {
	affectedRows uint64
	lastInsertID uint64
	statusFlags  uint16
	warnings     uint16
	info         string
}

func (p *okPacket) decode(r *reader, capabilities uint32) error {
	marker := r.int1()
	if r.err != nil {
		return r.err
	}
	if marker != okMarker {
		return fmt.Errorf("binlogstream: okPacket.marker is 0x%02x", marker)
	}
	p.affectedRows = r.intN()
	p.lastInsertID = r.intN()
	if capabilities&capProtocol41 != 0 {
		p.statusFlags = r.int2()
		p.warnings = r.int2()
	} else if capabilities&capTransactions != 0 {
		p.statusFlags = r.int2()
	}
	p.info = r.stringEOF()
	return r.err
}

// eofPacket, https://dev.mysql.com/doc/internals/en/packet-EOF_Packet.html
type eofPacket struct {
	warnings    uint16
	statusFlags uint16
}

func (e *eofPacket) decode(r *reader, capabilities uint32) error {
	marker := r.int1()
	if r.err != nil {
		return r.err
	}
	if marker != eofMarker {
		return fmt.Errorf("binlogstream: eofPacket.marker is 0x%02x", marker)
	}
	if capabilities&capProtocol41 != 0 {
		e.warnings = r.int2()
		e.statusFlags = r.int2()
	}
	return r.err
}

// sslRequest is sent instead of handshakeResponse41 to request a TLS upgrade
// before the real credentials are sent.
//
// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::SSLRequest
type sslRequest struct {
	capabilityFlags uint32
	maxPacketSize   uint32
	characterSet    uint8
}

func (e sslRequest) encode(w *writer) error {
	capabilities := e.capabilityFlags | capProtocol41 | capSSL
	if err := w.int4(capabilities); err != nil {
		return err
	}
	if err := w.int4(e.maxPacketSize); err != nil {
		return err
	}
	if err := w.int1(e.characterSet); err != nil {
		return err
	}
	_, err := w.Write(make([]byte, 23))
	return err
}

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::AuthMoreData
type authMoreData struct {
	pluginData []byte
}

func (e *authMoreData) decode(r *reader) error {
	status := r.int1()
	if r.err != nil {
		return r.err
	}
	if status != 0x01 {
		return fmt.Errorf("binlogstream: authMoreData.status is 0x%02x", status)
	}
	e.pluginData = r.bytesEOF()
	return r.err
}

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::AuthSwitchRequest
type authSwitchRequest struct {
	pluginName string
	pluginData []byte
}

func (e *authSwitchRequest) decode(r *reader) error {
	status := r.int1()
	if r.err != nil {
		return r.err
	}
	if status != eofMarker {
		return fmt.Errorf("binlogstream: authSwitchRequest.status is 0x%02x", status)
	}
	e.pluginName = r.stringNull()
	e.pluginData = r.bytesEOF()
	return r.err
}

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::AuthSwitchResponse
type authSwitchResponse struct {
	authResponse []byte
}

func (e authSwitchResponse) encode(w *writer) error {
	_, err := w.Write(e.authResponse)
	return err
}

type requestPublicKey struct{}

func (e requestPublicKey) encode(w *writer) error {
	return w.int1(2)
}

func encryptPasswordPubKey(password, seed []byte, pub *rsa.PublicKey) ([]byte, error) {
	if len(seed) > 20 {
		seed = seed[:20]
	}
	plain := make([]byte, len(password)+1)
	copy(plain, password)
	for i := range plain {
		j := i % len(seed)
		plain[i] ^= seed[j]
	}
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
}

var errNoPEMData = errors.New("binlogstream: no PEM data found in server response")

func encryptedPasswordSHA1(password string, scramble []byte) []byte {
	hash := sha1.New()
	hash.Write([]byte(password))
	sha1Pwd := hash.Sum(nil)

	hash.Reset()
	hash.Write(sha1Pwd)
	sha1sha1Pwd := hash.Sum(nil)

	hash.Reset()
	if len(scramble) > 20 {
		scramble = scramble[:20]
	}
	hash.Write(scramble)
	hash.Write(sha1sha1Pwd)
	sha1Scramble := hash.Sum(nil)

	for i, b := range sha1Scramble {
		sha1Pwd[i] ^= b
	}
	return sha1Pwd
}
