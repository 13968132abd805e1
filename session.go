package binlogstream

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"net"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// defaultServerID is used when SessionOptions.ServerID is nil. It is
// chosen far from the low end of the range real servers use for their own
// server_id, the same convention the teacher's cmd/binlog used for its
// fixed replica id.
const defaultServerID uint32 = math.MaxUint32 - 55

// SessionOptions configures a Session. Config carries the connection
// target and credentials; this package never defines its own DSN or
// option struct, reusing go-sql-driver/mysql's instead, since a caller
// wiring this package alongside a normal database/sql connection to the
// same server already has one.
type SessionOptions struct {
	// Config supplies network address, credentials and TLS settings. Only
	// Addr, Net, User, Passwd and TLSConfig are consulted; the pooling and
	// query-specific fields (Params, MaxAllowedPacket, etc.) do not apply
	// to a replication session.
	Config *mysql.Config

	// ServerID is the replica identity advertised to the source server via
	// COM_REGISTER_SLAVE. Defaults to defaultServerID.
	ServerID *uint32

	// LogStatements, when true, logs every QUERY_EVENT's SQL text at debug
	// level. Off by default since statement text can carry sensitive data.
	LogStatements bool

	// Logger receives structured session lifecycle and error logs. A nil
	// Logger disables logging entirely rather than writing to a default
	// destination.
	Logger *logrus.Entry

	// DDLParser classifies QUERY events that touch schema. Required for
	// NextAction to emit DdlChange actions; internal/ddlparser provides a
	// concrete implementation backed by go-vitess's sqlparser.
	DDLParser DDLParser
}

// Session is one authenticated binlog-replication connection: a replica
// registration plus the live event stream it receives in response. It is
// not safe for concurrent use — exactly one goroutine may call NextAction
// (or the lower-level query helpers) at a time, matching how a single TCP
// connection can only be read by one reader.
type Session struct {
	conn net.Conn
	seq  uint8
	hs   handshake

	// auth state, populated/consumed by authenticate().
	authFlow []string
	pubKey   *rsa.PublicKey

	opts     SessionOptions
	serverID uint32
	log      *logrus.Entry

	reader *reader

	// nextPosition tracks the file/offset NextAction should resume from,
	// i.e. the position of the next event not yet delivered as an Action.
	nextPosition Position

	// currentTxID is the GTID-derived transaction number in effect for
	// whatever TableAction is currently being assembled, set by a GTID_EVENT
	// and cleared at the following XID_EVENT/COMMIT.
	currentTxID *uint64

	ddlFailures uint64
}

func discardEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// Connect dials a MySQL server, authenticates, negotiates CRC32 binlog
// checksums, registers as a replica and starts a binlog dump from start.
// The returned Session is ready for NextAction.
func Connect(ctx context.Context, opts SessionOptions, start Position) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("binlogstream: SessionOptions.Config is required")
	}
	log := opts.Logger
	if log == nil {
		log = discardEntry()
	}
	serverID := defaultServerID
	if opts.ServerID != nil {
		serverID = *opts.ServerID
	}

	network := opts.Config.Net
	if network == "" {
		network = "tcp"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, opts.Config.Addr)
	if err != nil {
		return nil, fmt.Errorf("binlogstream: dial %s %s: %w", network, opts.Config.Addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}

	s := &Session{
		conn:     conn,
		opts:     opts,
		serverID: serverID,
		log:      log,
	}

	r := newReader(s.conn, &s.seq)
	if err := s.hs.decode(r); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: handshake: %w", err)
	}

	if err := s.maybeUpgradeTLS(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.authenticate(opts.Config.User, opts.Config.Passwd); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: authenticate: %w", err)
	}
	if err := s.confirmChecksumSupport(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: checksum negotiation: %w", err)
	}
	if err := s.registerAsReplica(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: register replica: %w", err)
	}
	if err := s.requestBinlog(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: request binlog dump: %w", err)
	}

	sv, err := newServerVersion(s.hs.serverVersion)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("binlogstream: %w", err)
	}

	s.reader = newReader(s.conn, &s.seq)
	s.reader.checksum = 4
	s.reader.fde.BinlogVersion = sv.binlogVersion()
	s.nextPosition = start

	log.WithFields(logrus.Fields{
		"file":      start.File,
		"offset":    start.Offset,
		"server_id": serverID,
	}).Info("binlogstream: replica session established")
	return s, nil
}

// maybeUpgradeTLS performs the SSLRequest handshake step when the caller
// requested TLS via Config.TLSConfig. Adapted from the teacher's
// Remote.UpgradeSSL, generalized to run before the credentials are sent
// rather than as a separately-callable step.
func (s *Session) maybeUpgradeTLS() error {
	if s.opts.Config.TLSConfig == "" {
		return nil
	}
	if s.hs.capabilityFlags&capSSL == 0 {
		return errors.New("binlogstream: server does not support TLS")
	}
	tlsConfig := &tls.Config{ServerName: s.opts.Config.Addr}
	switch s.opts.Config.TLSConfig {
	case "true", "skip-verify", "preferred":
		// These three values skip certificate verification. Any other value
		// (such as a name registered with mysql.RegisterTLSConfig) is not
		// looked up: it gets a verifying config with ServerName set to
		// Config.Addr.
		tlsConfig.InsecureSkipVerify = true
	}
	if err := s.write(sslRequest{
		capabilityFlags: capLongFlag | capSecureConnection,
		maxPacketSize:   maxPacketSize,
		characterSet:    s.hs.characterSet,
	}); err != nil {
		return err
	}
	s.conn = tls.Client(s.conn, tlsConfig)
	return nil
}

// confirmChecksumSupport advertises CRC32 footer support before requesting
// a dump. Every event from the next FORMAT_DESCRIPTION_EVENT on carries a
// 4-byte CRC32 trailer once this succeeds.
func (s *Session) confirmChecksumSupport() error {
	_, err := s.query(`SET @master_binlog_checksum='CRC32'`)
	return err
}

func (s *Session) registerAsReplica() error {
	s.seq = 0
	if err := s.write(comRegisterSlave{serverID: s.serverID}); err != nil {
		return err
	}
	return s.readOkErr()
}

func (s *Session) requestBinlog(start Position) error {
	s.seq = 0
	return s.write(comBinlogDump{
		serverID:       s.serverID,
		binlogFilename: start.File,
		binlogPos:      start.Offset,
	})
}

// write encodes and sends a single client packet. It does not reset the
// packet sequence number; command-phase callers set s.seq to 0 first.
func (s *Session) write(e interface{ encode(w *writer) error }) error {
	w := newWriter(s.conn, &s.seq)
	if err := e.encode(w); err != nil {
		return err
	}
	return w.Close()
}

// readOkErr reads one generic response packet, returning nil for OK and the
// server's error text for ERR.
func (s *Session) readOkErr() error {
	r := newReader(s.conn, &s.seq)
	marker, err := r.peek()
	if err != nil {
		return err
	}
	switch marker {
	case okMarker:
		return r.drain()
	case errMarker:
		ep := errPacket{}
		if err := ep.decode(r, s.hs.capabilityFlags); err != nil {
			return err
		}
		return errors.New(ep.errorMessage)
	default:
		return ErrMalformedPacket
	}
}

// Close releases the underlying TCP connection. Any NextAction call in
// progress on another goroutine has undefined results; see the Session
// doc comment.
func (s *Session) Close() error {
	if s.reader != nil {
		s.reader.tmeCache = nil
	}
	return s.conn.Close()
}

// DdlParseFailures reports how many QUERY events touching schema could not
// be classified by the configured DDLParser and were skipped rather than
// surfaced as a DdlChange action.
func (s *Session) DdlParseFailures() uint64 {
	return atomic.LoadUint64(&s.ddlFailures)
}
