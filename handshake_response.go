package binlogstream

// handshakeResponse41 is the client's reply to a protocol-v10 handshake,
// carrying the username and the plugin-encrypted auth response.
//
// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::HandshakeResponse41
type handshakeResponse41 struct {
	capabilityFlags uint32
	maxPacketSize   uint32
	characterSet    uint8
	username        string
	authResponse    []byte
	database        string
	authPluginName  string
	connectAttrs    map[string]string
}

func (e handshakeResponse41) encode(w *writer) error {
	capabilities := e.capabilityFlags | capProtocol41
	if e.database != "" {
		capabilities |= capConnectWithDB
	}
	if e.authPluginName != "" {
		capabilities |= capPluginAuth
	}
	if len(e.connectAttrs) > 0 {
		capabilities |= capConnectAttrs
	}

	if err := w.int4(capabilities); err != nil {
		return err
	}
	if err := w.int4(e.maxPacketSize); err != nil {
		return err
	}
	if err := w.int1(e.characterSet); err != nil {
		return err
	}
	if _, err := w.Write(make([]byte, 23)); err != nil {
		return err
	}
	if err := w.stringNull(e.username); err != nil {
		return err
	}
	switch {
	case capabilities&capPluginAuthLenencData != 0:
		if err := w.bytesN(e.authResponse); err != nil {
			return err
		}
	case capabilities&capSecureConnection != 0:
		if err := w.bytes1(e.authResponse); err != nil {
			return err
		}
	default:
		if err := w.bytesNull(e.authResponse); err != nil {
			return err
		}
	}
	if capabilities&capConnectWithDB != 0 {
		if err := w.stringNull(e.database); err != nil {
			return err
		}
	}
	if capabilities&capPluginAuth != 0 {
		if err := w.stringNull(e.authPluginName); err != nil {
			return err
		}
	}
	if capabilities&capConnectAttrs != 0 {
		if err := w.intN(uint64(len(e.connectAttrs))); err != nil {
			return err
		}
		for k, v := range e.connectAttrs {
			if err := w.stringN(k); err != nil {
				return err
			}
			if err := w.stringN(v); err != nil {
				return err
			}
		}
	}
	return nil
}
