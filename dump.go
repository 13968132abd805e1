package binlogstream

// COM_REGISTER_SLAVE and COM_BINLOG_DUMP command tags.
//
// https://dev.mysql.com/doc/internals/en/com-register-slave.html
// https://dev.mysql.com/doc/internals/en/com-binlog-dump.html
const (
	comRegisterSlaveCmd = 0x15
	comBinlogDumpCmd    = 0x12

	// binlogDumpNonBlock would request the dump stop at the end of the
	// current binlog rather than blocking for new events; this package
	// always tails, so flags is always 0.
	binlogDumpNonBlock = 0x01
)

// comRegisterSlave announces this connection as a replica before it is
// allowed to request a binlog dump. The teacher's retrieved snapshot never
// implemented this command — its Remote.Seek went straight to
// COM_BINLOG_DUMP — but recent MySQL/MariaDB servers require registration
// first when GTID-aware replicas or SHOW SLAVE HOSTS reporting matter, so
// it is issued here unconditionally.
type comRegisterSlave struct {
	serverID uint32
}

func (e comRegisterSlave) encode(w *writer) error {
	if err := w.int1(comRegisterSlaveCmd); err != nil {
		return err
	}
	if err := w.int4(e.serverID); err != nil {
		return err
	}
	if err := w.string1(""); err != nil { // report-host
		return err
	}
	if err := w.string1(""); err != nil { // report-user
		return err
	}
	if err := w.string1(""); err != nil { // report-password
		return err
	}
	if err := w.int2(0); err != nil { // report-port
		return err
	}
	if err := w.int4(0); err != nil { // replication rank, unused
		return err
	}
	return w.int4(0) // master id, unused
}

// comBinlogDump requests the event stream starting at binlogPos in
// binlogFilename. Adapted from the teacher's com_binlog_dump.go, against
// the Session-scoped writer instead of a package-level Remote.
type comBinlogDump struct {
	binlogPos      uint32
	flags          uint16
	serverID       uint32
	binlogFilename string
}

func (e comBinlogDump) encode(w *writer) error {
	if err := w.int1(comBinlogDumpCmd); err != nil {
		return err
	}
	if err := w.int4(e.binlogPos); err != nil {
		return err
	}
	if err := w.int2(e.flags); err != nil {
		return err
	}
	if err := w.int4(e.serverID); err != nil {
		return err
	}
	return w.string(e.binlogFilename)
}
