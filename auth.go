package binlogstream

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
)

// authenticate runs the post-handshake authentication dance: it answers the
// server's initial plugin challenge and follows AuthSwitchRequest/
// AuthMoreData packets until the server returns OK or ERR. Adapted from the
// teacher's auth.go, generalized to run against a *Session instead of a
// package-level connection type.
func (s *Session) authenticate(username, password string) error {
	s.authFlow = nil
	var plugin string
	switch s.hs.authPluginName {
	case "mysql_native_password", "mysql_clear_password", "sha256_password", "caching_sha2_password":
		plugin = s.hs.authPluginName
	case "":
		plugin = "mysql_native_password"
	default:
		return fmt.Errorf("binlogstream: unsupported auth plugin %q", s.hs.authPluginName)
	}
	s.authFlow = append(s.authFlow, plugin)
	authPluginData := s.hs.authPluginData
	authResponse, err := s.encryptPassword(plugin, []byte(password), authPluginData)
	if err != nil {
		return err
	}

	err = s.write(handshakeResponse41{
		capabilityFlags: capLongFlag | capSecureConnection,
		maxPacketSize:   maxPacketSize,
		characterSet:    s.hs.characterSet,
		username:        username,
		authResponse:    authResponse,
		authPluginName:  plugin,
	})
	if err != nil {
		return err
	}

	numAuthSwitches := 0
AuthSuccess:
	for {
		r := newReader(s.conn, &s.seq)
		marker, err := r.peek()
		if err != nil {
			return err
		}
		switch marker {
		case okMarker:
			if err := r.drain(); err != nil {
				return err
			}
			break AuthSuccess
		case errMarker:
			ep := errPacket{}
			if err := ep.decode(r, s.hs.capabilityFlags); err != nil {
				return err
			}
			return errors.New(ep.errorMessage)
		case 0x01:
			amd := authMoreData{}
			if err := amd.decode(r); err != nil {
				return err
			}
			switch plugin {
			case "caching_sha2_password":
				switch len(amd.pluginData) {
				case 0:
					break AuthSuccess
				case 1:
					switch amd.pluginData[0] {
					case 3: // fast auth success
						s.authFlow = append(s.authFlow, "fastAuthSuccess")
						if err := s.readOkErr(); err != nil {
							return err
						}
						break AuthSuccess
					case 4: // perform full authentication
						s.authFlow = append(s.authFlow, "performFullAuthentication")
						switch s.conn.(type) {
						case *tls.Conn, *net.UnixConn:
							authResponse = append([]byte(password), 0)
						default:
							if s.pubKey == nil {
								if err := s.write(requestPublicKey{}); err != nil {
									return err
								}
								pkr := newReader(s.conn, &s.seq)
								pkd := authMoreData{}
								if err := pkd.decode(pkr); err != nil {
									return err
								}
								if s.pubKey, err = decodePEM(pkd.pluginData); err != nil {
									return err
								}
							}
							if authResponse, err = encryptPasswordPubKey([]byte(password), authPluginData, s.pubKey); err != nil {
								return err
							}
						}
						if err := s.write(authSwitchResponse{authResponse}); err != nil {
							return err
						}
						if err := s.readOkErr(); err != nil {
							return err
						}
						break AuthSuccess
					}
				default:
					return ErrMalformedPacket
				}
			case "sha256_password":
				if len(amd.pluginData) == 0 {
					break AuthSuccess
				}
				if s.pubKey, err = decodePEM(amd.pluginData); err != nil {
					return err
				}
				if authResponse, err = encryptPasswordPubKey([]byte(password), authPluginData, s.pubKey); err != nil {
					return err
				}
				if err := s.write(authSwitchResponse{authResponse}); err != nil {
					return err
				}
				if err := s.readOkErr(); err != nil {
					return err
				}
				break AuthSuccess
			default:
				break AuthSuccess
			}
		case eofMarker:
			if numAuthSwitches != 0 {
				return errors.New("binlogstream: auth switch more than once")
			}
			numAuthSwitches++
			asr := authSwitchRequest{}
			if err := asr.decode(r); err != nil {
				return err
			}
			plugin = asr.pluginName
			s.authFlow = append(s.authFlow, plugin)
			authPluginData = asr.pluginData
			authResponse, err = s.encryptPassword(plugin, []byte(password), asr.pluginData)
			if err != nil {
				return err
			}
			if err := s.write(authSwitchResponse{authResponse}); err != nil {
				return err
			}
		default:
			return ErrMalformedPacket
		}
	}
	return nil
}

func (s *Session) encryptPassword(plugin string, password, scramble []byte) ([]byte, error) {
	switch plugin {
	case "sha256_password":
		if len(password) == 0 {
			return []byte{0}, nil
		}
		switch s.conn.(type) {
		case *tls.Conn:
			return append(password, 0), nil
		default:
			if s.pubKey == nil {
				return []byte{1}, nil
			}
			return encryptPasswordPubKey(password, scramble, s.pubKey)
		}
	case "caching_sha2_password":
		if len(password) == 0 {
			return nil, nil
		}
		hash := sha256.New()
		h := func(b []byte) []byte {
			hash.Reset()
			hash.Write(b)
			return hash.Sum(nil)
		}
		x := h(password)
		y := h(append(h(h(x)), scramble[:20]...))
		for i, b := range y {
			x[i] ^= b
		}
		return x, nil
	case "mysql_native_password":
		if len(password) == 0 {
			return nil, nil
		}
		hash := sha1.New()
		h := func(b []byte) []byte {
			hash.Reset()
			hash.Write(b)
			return hash.Sum(nil)
		}
		x := h(password)
		y := h(append(scramble[:20], h(h(password))...))
		for i, b := range y {
			x[i] ^= b
		}
		return x, nil
	case "mysql_clear_password":
		return append(password, 0), nil
	}
	return nil, fmt.Errorf("binlogstream: unsupported auth plugin %q", plugin)
}

func decodePEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errNoPEMData
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("binlogstream: server public key is not RSA")
	}
	return rsaPub, nil
}
