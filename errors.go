package binlogstream

import (
	"errors"
	"fmt"
)

// ErrMalformedPacket is returned when a generic response packet (OK/ERR/EOF)
// has a marker byte or shape the reader does not recognize.
var ErrMalformedPacket = errors.New("binlogstream: malformed packet")

// ProtocolError is returned when an event has a shape the reader does not
// expect: a ROWS_EVENT naming a table id with no cached TABLE_MAP_EVENT, or
// an event size too small to hold its header and checksum. An unrecognized
// OK/ERR marker on a generic response packet is reported as
// ErrMalformedPacket instead.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "binlogstream: protocol error: " + e.Msg }

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ChecksumMismatchError is returned when an event's CRC32 footer does not
// match the recomputed checksum over the event bytes.
type ChecksumMismatchError struct {
	Got, Want uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("binlogstream: checksum mismatch: got=%d want=%d", e.Got, e.Want)
}

// InvalidBinlogNameError is returned by Encode when a Position's file does
// not carry a "basename.NNN" suffix at all.
type InvalidBinlogNameError struct {
	File string
}

func (e *InvalidBinlogNameError) Error() string {
	return fmt.Sprintf("binlogstream: invalid binlog file name %q: no numeric suffix", e.File)
}

// InvalidBinlogSuffixError is returned by Encode when a Position's numeric
// suffix is not purely decimal or its width falls outside [1,17].
type InvalidBinlogSuffixError struct {
	File, Suffix string
}

func (e *InvalidBinlogSuffixError) Error() string {
	return fmt.Sprintf("binlogstream: invalid binlog suffix %q in %q", e.Suffix, e.File)
}

// UnsupportedEventError is returned for binlog constructs this module does
// not implement, namely v0 and v1 row events (see spec Non-goals).
type UnsupportedEventError struct {
	What string
}

func (e *UnsupportedEventError) Error() string {
	return "binlogstream: unsupported event: " + e.What
}

// CoercionError is returned when a column value could not be coerced to a
// normalized engine value. Kind identifies the MySQL column type tag that
// failed so callers can decide whether to treat it as fatal.
type CoercionError struct {
	Kind ColumnType
	Err  error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("binlogstream: coercion error for column type %s: %v", e.Kind, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// DdlParseError describes a QUERY event whose text the configured
// DDLParser could not classify. NextAction does not return it: the event is
// logged with this error at warn level, counted in DdlParseFailures, and
// skipped.
type DdlParseError struct {
	Schema, Query string
	Err           error
}

func (e *DdlParseError) Error() string {
	return fmt.Sprintf("binlogstream: ddl parse error in schema %q: %v", e.Schema, e.Err)
}

func (e *DdlParseError) Unwrap() error { return e.Err }
