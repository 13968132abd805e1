package binlogstream

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// framePacket wraps payload in MySQL's 3-byte-length + 1-byte-sequence
// packet header, mirroring the teacher's reader_test.go packet builders.
func framePacket(payload []byte, seq byte) []byte {
	n := len(payload)
	out := []byte{byte(n), byte(n >> 8), byte(n >> 16), seq}
	return append(out, payload...)
}

// buildEvent assembles one complete binlog event wire packet: the OK
// marker, a 19-byte v4 header (Timestamp/EventType/ServerID/EventSize/
// LogPos/Flags), body, and a CRC32 checksum footer computed over the
// header+body bytes, then frames it as a single MySQL packet.
func buildEvent(t EventType, logPos uint32, body []byte, seq byte) []byte {
	const headerLen = 19
	eventSize := headerLen + len(body) + 4

	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], 0) // Timestamp
	header[4] = byte(t)
	binary.LittleEndian.PutUint32(header[5:9], 0) // ServerID
	binary.LittleEndian.PutUint32(header[9:13], uint32(eventSize))
	binary.LittleEndian.PutUint32(header[13:17], logPos)
	binary.LittleEndian.PutUint16(header[17:19], 0) // Flags

	data := append(append([]byte{}, header...), body...)
	crc := crc32.ChecksumIEEE(data)
	crcBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBytes, crc)

	payload := append([]byte{okMarker}, data...)
	payload = append(payload, crcBytes...)
	return framePacket(payload, seq)
}

func newTestSession(stream []byte) *Session {
	var seq uint8
	s := &Session{log: discardEntry()}
	s.reader = newReader(bytes.NewReader(stream), &seq)
	s.reader.checksum = 4
	s.reader.fde.BinlogVersion = 4
	return s
}

func queryEventBody(schema, query string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // SlaveProxyID
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // ExecutionTime
	buf.WriteByte(byte(len(schema)))
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // ErrorCode
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // status-vars length
	buf.WriteString(schema)
	buf.WriteByte(0)
	buf.WriteString(query)
	return buf.Bytes()
}

func TestNextEvent_ChecksumOK(t *testing.T) {
	body := queryEventBody("db", "BEGIN")
	stream := buildEvent(QUERY_EVENT, 200, body, 0)
	s := newTestSession(stream)

	ev, err := s.nextEvent()
	require.NoError(t, err)
	assert.Equal(t, QUERY_EVENT, ev.Header.EventType)
	q, ok := ev.Data.(QueryEvent)
	require.True(t, ok)
	assert.Equal(t, "BEGIN", q.Query)
	assert.Equal(t, "db", q.Schema)

	// Checksum verification happens in finishEvent, once the dispatcher
	// is done inspecting the decoded event — see eventstream.go.
	require.NoError(t, s.finishEvent())
}

func TestNextEvent_ChecksumMismatch(t *testing.T) {
	body := queryEventBody("db", "BEGIN")
	stream := buildEvent(QUERY_EVENT, 200, body, 0)
	// Corrupt the checksum footer, the last 4 bytes of the packet.
	stream[len(stream)-1] ^= 0xff
	s := newTestSession(stream)

	_, err := s.nextEvent()
	require.NoError(t, err)
	err = s.finishEvent()
	require.Error(t, err)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func tableMapEventBody(tableID uint64, schema, table string) []byte {
	var buf bytes.Buffer
	tid := make([]byte, 6)
	tid[0] = byte(tableID)
	tid[1] = byte(tableID >> 8)
	tid[2] = byte(tableID >> 16)
	tid[3] = byte(tableID >> 24)
	tid[4] = byte(tableID >> 32)
	tid[5] = byte(tableID >> 40)
	buf.Write(tid)
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // flags
	buf.WriteByte(byte(len(schema)))
	buf.WriteString(schema)
	buf.WriteByte(0)
	buf.WriteByte(byte(len(table)))
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteByte(1)    // numCol
	buf.WriteByte(0x01) // column 0 type: TypeTiny
	buf.WriteByte(0)    // meta block length
	buf.WriteByte(0x00) // nullability bitmap: not nullable
	return buf.Bytes()
}

func rotateEventBody(position uint64, nextBinlog string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, position)
	buf.WriteString(nextBinlog)
	return buf.Bytes()
}

// TestTableMapCache_SurvivesRotate confirms the table-id cache is not
// cleared on ROTATE_EVENT: a rotate changes only the file position, never
// a table's layout, so a replica resuming row events just after a rotate
// must not have to wait for a fresh TABLE_MAP_EVENT.
func TestTableMapCache_SurvivesRotate(t *testing.T) {
	var stream []byte
	stream = append(stream, buildEvent(TABLE_MAP_EVENT, 100, tableMapEventBody(5, "db", "t"), 0)...)
	stream = append(stream, buildEvent(ROTATE_EVENT, 0, rotateEventBody(4, "mysql-bin.000002"), 0)...)
	s := newTestSession(stream)

	_, err := s.nextEvent()
	require.NoError(t, err)
	require.NoError(t, s.finishEvent())
	require.Contains(t, s.reader.tmeCache, uint64(5))

	_, err = s.nextEvent()
	require.NoError(t, err)
	require.NoError(t, s.finishEvent())
	assert.Contains(t, s.reader.tmeCache, uint64(5), "rotate must not flush the table-id cache")
}
