package binlogstream

import (
	"fmt"
	"strings"
)

// EventType is a binlog event's wire type tag.
//
// https://dev.mysql.com/doc/internals/en/binlog-event-type.html
type EventType uint8

const (
	UNKNOWN_EVENT            EventType = 0x00
	START_EVENT_V3           EventType = 0x01
	QUERY_EVENT              EventType = 0x02
	STOP_EVENT               EventType = 0x03
	ROTATE_EVENT             EventType = 0x04
	INTVAR_EVENT             EventType = 0x05
	LOAD_EVENT               EventType = 0x06
	SLAVE_EVENT              EventType = 0x07
	CREATE_FILE_EVENT        EventType = 0x08
	APPEND_BLOCK_EVENT       EventType = 0x09
	EXEC_LOAD_EVENT          EventType = 0x0a
	DELETE_FILE_EVENT        EventType = 0x0b
	NEW_LOAD_EVENT           EventType = 0x0c
	RAND_EVENT               EventType = 0x0d
	USER_VAR_EVENT           EventType = 0x0e
	FORMAT_DESCRIPTION_EVENT EventType = 0x0f
	XID_EVENT                EventType = 0x10
	BEGIN_LOAD_QUERY_EVENT   EventType = 0x11
	EXECUTE_LOAD_QUERY_EVENT EventType = 0x12
	TABLE_MAP_EVENT          EventType = 0x13
	WRITE_ROWS_EVENTv0       EventType = 0x14
	UPDATE_ROWS_EVENTv0      EventType = 0x15
	DELETE_ROWS_EVENTv0      EventType = 0x16
	WRITE_ROWS_EVENTv1       EventType = 0x17
	UPDATE_ROWS_EVENTv1      EventType = 0x18
	DELETE_ROWS_EVENTv1      EventType = 0x19
	INCIDENT_EVENT           EventType = 0x1a
	HEARTBEAT_EVENT          EventType = 0x1b
	IGNORABLE_EVENT          EventType = 0x1c
	ROWS_QUERY_EVENT         EventType = 0x1d
	WRITE_ROWS_EVENTv2       EventType = 0x1e
	UPDATE_ROWS_EVENTv2      EventType = 0x1f
	DELETE_ROWS_EVENTv2      EventType = 0x20
	GTID_EVENT               EventType = 0x21
	ANONYMOUS_GTID_EVENT     EventType = 0x22
	PREVIOUS_GTIDS_EVENT     EventType = 0x23
)

var eventTypeNames = map[EventType]string{
	UNKNOWN_EVENT:            "unknown",
	START_EVENT_V3:           "startV3",
	QUERY_EVENT:              "query",
	STOP_EVENT:               "stop",
	ROTATE_EVENT:             "rotate",
	INTVAR_EVENT:             "intVar",
	LOAD_EVENT:               "load",
	SLAVE_EVENT:              "slave",
	CREATE_FILE_EVENT:        "createFile",
	APPEND_BLOCK_EVENT:       "appendBlock",
	EXEC_LOAD_EVENT:          "execLoad",
	DELETE_FILE_EVENT:        "deleteFile",
	NEW_LOAD_EVENT:           "newLoad",
	RAND_EVENT:               "rand",
	USER_VAR_EVENT:           "userVar",
	FORMAT_DESCRIPTION_EVENT: "formatDescription",
	XID_EVENT:                "xid",
	BEGIN_LOAD_QUERY_EVENT:   "beginLoadQuery",
	EXECUTE_LOAD_QUERY_EVENT: "executeLoadQuery",
	TABLE_MAP_EVENT:          "tableMap",
	WRITE_ROWS_EVENTv0:       "writeRowsV0",
	UPDATE_ROWS_EVENTv0:      "updateRowsV0",
	DELETE_ROWS_EVENTv0:      "deleteRowsV0",
	WRITE_ROWS_EVENTv1:       "writeRowsV1",
	UPDATE_ROWS_EVENTv1:      "updateRowsV1",
	DELETE_ROWS_EVENTv1:      "deleteRowsV1",
	INCIDENT_EVENT:           "incident",
	HEARTBEAT_EVENT:          "heartbeat",
	IGNORABLE_EVENT:          "ignorable",
	ROWS_QUERY_EVENT:         "rowsQuery",
	WRITE_ROWS_EVENTv2:       "writeRowsV2",
	UPDATE_ROWS_EVENTv2:      "updateRowsV2",
	DELETE_ROWS_EVENTv2:      "deleteRowsV2",
	GTID_EVENT:               "gtid",
	ANONYMOUS_GTID_EVENT:     "anonymousGTID",
	PREVIOUS_GTIDS_EVENT:     "previousGTID",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

func (t EventType) IsWriteRows() bool {
	return t == WRITE_ROWS_EVENTv0 || t == WRITE_ROWS_EVENTv1 || t == WRITE_ROWS_EVENTv2
}

func (t EventType) IsUpdateRows() bool {
	return t == UPDATE_ROWS_EVENTv0 || t == UPDATE_ROWS_EVENTv1 || t == UPDATE_ROWS_EVENTv2
}

func (t EventType) IsDeleteRows() bool {
	return t == DELETE_ROWS_EVENTv0 || t == DELETE_ROWS_EVENTv1 || t == DELETE_ROWS_EVENTv2
}

func (t EventType) isV1RowsEvent() bool {
	return t == WRITE_ROWS_EVENTv1 || t == UPDATE_ROWS_EVENTv1 || t == DELETE_ROWS_EVENTv1
}

func (t EventType) isV0RowsEvent() bool {
	return t == WRITE_ROWS_EVENTv0 || t == UPDATE_ROWS_EVENTv0 || t == DELETE_ROWS_EVENTv0
}

// Event is a decoded binlog event: its header plus a type-specific body in
// Data (one of the *Event types below, or one of the small internal marker
// types for events the dispatcher only needs to recognize, not inspect).
type Event struct {
	Header EventHeader
	Data   interface{}
}

// EventHeader is the fixed-size prefix common to every binlog event.
//
// https://dev.mysql.com/doc/internals/en/binlog-event-header.html
type EventHeader struct {
	Timestamp uint32
	EventType EventType
	ServerID  uint32
	EventSize uint32
	LogPos    uint32
	Flags     uint16
}

func (h *EventHeader) decode(r *reader) error {
	h.Timestamp = r.int4()
	h.EventType = EventType(r.int1())
	h.ServerID = r.int4()
	h.EventSize = r.int4()
	if r.fde.BinlogVersion > 1 {
		h.LogPos = r.int4()
		h.Flags = r.int2()
	}
	return r.err
}

// FormatDescriptionEvent is the first event of every binlog file; it
// establishes the binlog version and the post-header length of every
// other event type in the file.
//
// https://dev.mysql.com/doc/internals/en/format-description-event.html
type FormatDescriptionEvent struct {
	BinlogVersion          uint16
	ServerVersion          string
	CreateTimestamp        uint32
	EventHeaderLength      uint8
	EventTypeHeaderLengths []byte
}

// decode reads the rest of a FORMAT_DESCRIPTION_EVENT body. The caller
// (the event-stream reader's nextEvent) must have set r.limit to the
// number of bytes remaining in this event before calling it, so that the
// trailing bytesEOF() stops at the event boundary rather than consuming
// the next event.
func (e *FormatDescriptionEvent) decode(r *reader) error {
	e.BinlogVersion = r.int2()
	e.ServerVersion = r.string(50)
	if i := strings.IndexByte(e.ServerVersion, 0); i != -1 {
		e.ServerVersion = e.ServerVersion[:i]
	}
	e.CreateTimestamp = r.int4()
	e.EventHeaderLength = r.int1()
	e.EventTypeHeaderLengths = r.bytesEOF()
	if n := len(e.EventTypeHeaderLengths); n > 0 {
		// The trailing byte, when present, is the checksum algorithm
		// descriptor (1 = CRC32); every server new enough to emit one
		// always does.
		checksumAlg := e.EventTypeHeaderLengths[n-1]
		e.EventTypeHeaderLengths = e.EventTypeHeaderLengths[:n-1]
		if checksumAlg == 1 {
			r.checksum = 4
		}
	}
	return r.err
}

func (e *FormatDescriptionEvent) postHeaderLength(typ EventType, def int) int {
	if len(e.EventTypeHeaderLengths) >= int(typ) {
		return int(e.EventTypeHeaderLengths[typ-1])
	}
	return def
}

// RotateEvent is written when the server switches to a new binlog file.
//
// https://dev.mysql.com/doc/internals/en/rotate-event.html
type RotateEvent struct {
	Position   uint64
	NextBinlog string
}

func (e *RotateEvent) decode(r *reader) error {
	if r.fde.BinlogVersion > 1 {
		e.Position = r.int8()
	}
	e.NextBinlog = r.stringEOF()
	return r.err
}

// statusVarUpdatedDBNames is the status-var key carrying the list of
// schemas a statement-based QUERY touched, used by the dispatcher to pick
// the DDL's target schema.
//
// https://dev.mysql.com/doc/internals/en/query-event.html
const statusVarUpdatedDBNames = 0x08

// QueryEvent is written for any statement executed outside of row-based
// replication, including every DDL statement.
//
// https://dev.mysql.com/doc/internals/en/query-event.html
type QueryEvent struct {
	SlaveProxyID    uint32
	ExecutionTime   uint32
	ErrorCode       uint16
	StatusVars      []byte
	Schema          string
	Query           string
}

func (e *QueryEvent) decode(r *reader) error {
	e.SlaveProxyID = r.int4()
	e.ExecutionTime = r.int4()
	schemaLen := r.int1()
	if r.err != nil {
		return r.err
	}
	e.ErrorCode = r.int2()
	statusVarsLen := r.int2()
	if r.err != nil {
		return r.err
	}
	e.StatusVars = r.bytes(int(statusVarsLen))
	e.Schema = r.string(int(schemaLen))
	r.skip(1)
	e.Query = r.stringEOF()
	return r.err
}

// updatedDBNames walks the status-vars block looking for the
// Q_UPDATED_DB_NAMES entry and returns its schema names: a one-byte count
// followed by that many NUL-terminated strings.
func (e *QueryEvent) updatedDBNames() []string {
	buf := e.StatusVars
	for len(buf) > 0 {
		key := buf[0]
		buf = buf[1:]
		switch key {
		case statusVarUpdatedDBNames:
			if len(buf) == 0 {
				return nil
			}
			count := int(buf[0])
			buf = buf[1:]
			names := make([]string, 0, count)
			for i := 0; i < count && len(buf) > 0; i++ {
				j := indexByte(buf, 0)
				if j == -1 {
					names = append(names, string(buf))
					buf = nil
					break
				}
				names = append(names, string(buf[:j]))
				buf = buf[j+1:]
			}
			return names
		case 0x00: // Q_FLAGS2_CODE
			buf = skipN(buf, 4)
		case 0x01: // Q_SQL_MODE_CODE
			buf = skipN(buf, 8)
		case 0x02: // Q_CATALOG_CODE
			buf = skipN(buf, 1+int(firstByte(buf, 1)))
		case 0x03: // Q_AUTO_INCREMENT
			buf = skipN(buf, 4)
		case 0x04: // Q_CHARSET_CODE
			buf = skipN(buf, 6)
		case 0x05: // Q_TIME_ZONE_CODE
			buf = skipN(buf, 1+int(firstByte(buf, 0)))
		case 0x06: // Q_CATALOG_NZ_CODE
			buf = skipN(buf, 1+int(firstByte(buf, 0)))
		case 0x07: // Q_LC_TIME_NAMES_CODE
			buf = skipN(buf, 2)
		case 0x09: // Q_MICROSECONDS
			buf = skipN(buf, 3)
		default:
			// Unrecognized status var: nothing left to do safely but stop,
			// since its length isn't self-describing without the full table.
			return nil
		}
	}
	return nil
}

func firstByte(buf []byte, offset int) byte {
	if offset >= len(buf) {
		return 0
	}
	return buf[offset]
}

func skipN(buf []byte, n int) []byte {
	if n >= len(buf) {
		return nil
	}
	return buf[n:]
}

func indexByte(buf []byte, b byte) int {
	for i, v := range buf {
		if v == b {
			return i
		}
	}
	return -1
}

// IncidentEvent notifies that something out of the ordinary happened on
// the source and the replica may be inconsistent.
type IncidentEvent struct {
	Type    uint16
	Message string
}

func (e *IncidentEvent) decode(r *reader) error {
	e.Type = r.int2()
	size := r.int1()
	e.Message = r.string(int(size))
	return r.err
}

// RandEvent precedes a statement using RAND().
type RandEvent struct {
	Seed1 uint64
	Seed2 uint64
}

func (e *RandEvent) decode(r *reader) error {
	e.Seed1 = r.int8()
	e.Seed2 = r.int8()
	return r.err
}

// StopEvent signals the last event in a binlog file.
type StopEvent struct{}

// IntVarEvent precedes a statement using AUTO_INCREMENT or LAST_INSERT_ID().
type IntVarEvent struct {
	Type  uint8
	Value uint64
}

func (e *IntVarEvent) decode(r *reader) error {
	e.Type = r.int1()
	e.Value = r.int8()
	return r.err
}

// UserVarEvent precedes a statement using a user variable.
type UserVarEvent struct {
	Name     string
	Null     bool
	Type     uint8
	Charset  uint32
	Value    []byte
	Unsigned bool
}

func (e *UserVarEvent) decode(r *reader) error {
	nameLen := r.int4()
	if r.err != nil {
		return r.err
	}
	e.Name = r.string(int(nameLen))
	e.Null = r.int1() == 0
	if r.err != nil {
		return r.err
	}
	if !e.Null {
		e.Type = r.int1()
		e.Charset = r.int4()
		valueLen := r.int4()
		if r.err != nil {
			return r.err
		}
		e.Value = r.bytes(int(valueLen))
		if r.more() {
			e.Unsigned = (r.int1() | 0x01) != 0
		}
	}
	return r.err
}

// HeartbeatEvent keeps a non-zero-server-id replica connection alive in
// the absence of real events; it carries no payload worth decoding.
type HeartbeatEvent struct{}

// UnknownEvent is used for an event type the reader does not recognize.
type UnknownEvent struct{}

// XidEvent marks the commit of a transaction whose changes were logged
// via row-based replication.
//
// https://dev.mysql.com/doc/internals/en/xid-event.html
type XidEvent struct {
	Xid uint64
}

func (e *XidEvent) decode(r *reader) error {
	e.Xid = r.int8()
	return r.err
}

// GTIDEvent precedes the events of a transaction that was assigned a
// Global Transaction Identifier.
//
// https://dev.mysql.com/doc/internals/en/gtid-event.html
type GTIDEvent struct {
	Commit bool
	SID    [16]byte
	GNO    int64
}

func (e *GTIDEvent) decode(r *reader) error {
	e.Commit = r.int1() != 0
	copy(e.SID[:], r.bytes(16))
	e.GNO = int64(r.int8())
	return r.err
}

// GTID renders the event's (source-id, transaction-number) pair in
// MySQL's canonical "uuid:gno" textual form.
func (e GTIDEvent) GTID() string {
	sid := e.SID
	return fmt.Sprintf("%x-%x-%x-%x-%x:%d",
		sid[0:4], sid[4:6], sid[6:8], sid[8:10], sid[10:16], e.GNO)
}

// previousGTIDsEvent and anonymousGTIDEvent carry no fields the dispatcher
// needs: their presence in the stream only needs to be recognized so the
// event-stream reader can skip their bodies.
type previousGTIDsEvent struct{}
type anonymousGTIDEvent struct{}
