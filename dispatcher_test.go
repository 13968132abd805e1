package binlogstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatchSession() *Session {
	return &Session{log: discardEntry()}
}

func TestTranslateQuery_BeginCommit(t *testing.T) {
	s := newTestDispatchSession()

	act, err := s.translateQuery(QueryEvent{Query: "BEGIN"})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, ActionBeginTxn, act.Kind)

	gno := uint64(42)
	s.currentTxID = &gno
	act, err = s.translateQuery(QueryEvent{Query: "commit"})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, ActionCommitTxn, act.Kind)
	require.NotNil(t, act.TxID)
	assert.Equal(t, gno, *act.TxID)
	assert.Nil(t, s.currentTxID, "COMMIT must clear the in-flight transaction id")
}

type stubDDLParser struct {
	changes DDLChanges
	err     error
}

func (p stubDDLParser) ParseDDL(query string) (DDLChanges, error) {
	return p.changes, p.err
}

func TestTranslateQuery_DDL(t *testing.T) {
	s := newTestDispatchSession()
	s.opts.DDLParser = stubDDLParser{changes: DDLChanges{
		Action: "alter",
		Tables: []TableID{{Schema: "shop", Name: "orders"}},
	}}

	q := QueryEvent{
		Schema:     "shop",
		Query:      "ALTER TABLE orders ADD COLUMN note TEXT",
		StatusVars: append([]byte{statusVarUpdatedDBNames, 1}, append([]byte("shop"), 0)...),
	}
	act, err := s.translateQuery(q)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, ActionDdlChange, act.Kind)
	assert.Equal(t, "shop", act.Schema)
	assert.Equal(t, "alter", act.Changes.Action)
	assert.Equal(t, 0, int(s.DdlParseFailures()))
}

func TestTranslateQuery_DDLParseFailureAbsorbed(t *testing.T) {
	s := newTestDispatchSession()
	s.opts.DDLParser = stubDDLParser{err: errors.New("syntax error")}

	q := QueryEvent{
		Schema:     "shop",
		Query:      "ALTER TBLE orders WEIRD SYNTAX",
		StatusVars: append([]byte{statusVarUpdatedDBNames, 1}, append([]byte("shop"), 0)...),
	}
	act, err := s.translateQuery(q)
	require.NoError(t, err, "a DDL parse failure must not be fatal")
	assert.Nil(t, act)
	assert.Equal(t, uint64(1), s.DdlParseFailures())
}

func TestTranslate_LegacyRowsEventIsFatal(t *testing.T) {
	s := newTestDispatchSession()
	_, err := s.translate(Event{
		Header: EventHeader{EventType: WRITE_ROWS_EVENTv1},
		Data:   legacyRowsEvent{Type: WRITE_ROWS_EVENTv1},
	})
	require.Error(t, err)
	var unsupported *UnsupportedEventError
	require.ErrorAs(t, err, &unsupported)
}

// TestTranslate_GTIDThenXidCommit confirms a GTID_EVENT only records
// currentTxID (spec.md §4.6: "none" as its action), and that a following
// XID_EVENT yields an ActionCommitTxn carrying the XID and clears
// currentTxID.
func TestTranslate_GTIDThenXidCommit(t *testing.T) {
	s := newTestDispatchSession()

	act, err := s.translate(Event{Data: GTIDEvent{GNO: 7}})
	require.NoError(t, err)
	assert.Nil(t, act, "GTID_EVENT yields no action of its own")
	require.NotNil(t, s.currentTxID)
	assert.Equal(t, uint64(7), *s.currentTxID)

	act, err = s.translate(Event{Data: XidEvent{Xid: 99}})
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, ActionCommitTxn, act.Kind)
	require.NotNil(t, act.XID)
	assert.Equal(t, uint64(99), *act.XID)
	assert.Nil(t, s.currentTxID)
}

// buildRowsReader assembles a *reader positioned over a decoded RowsEvent
// header plus its row images, bypassing packet framing entirely: decode
// and nextRow only need r.limit to bound the body, not a real wire stream.
func buildRowsReader(t *testing.T, body []byte, tm *TableMap) *reader {
	t.Helper()
	return &reader{
		rd:       bytes.NewReader(body),
		limit:    len(body),
		tmeCache: map[uint64]*TableMap{tm.tableID: tm},
	}
}

func oneColumnTinyTableMap(tableID uint64) *TableMap {
	return &TableMap{
		tableID:    tableID,
		SchemaName: "shop",
		TableName:  "orders",
		Columns:    []Column{{Ordinal: 0, Type: TypeTiny, Unsigned: true}},
	}
}

func TestTranslateRows_Insert(t *testing.T) {
	body := []byte{
		1, 0, 0, 0, 0, 0, // tableID = 1
		0, 0, // flags
		2, 0, // extraDataLength (none beyond the length itself)
		1,    // numCol
		0x01, // columns-present bitmap
		0x00, 10, // row 1: null bitmap, value
		0x00, 20, // row 2: null bitmap, value
	}
	tm := oneColumnTinyTableMap(1)
	r := buildRowsReader(t, body, tm)

	e := RowsEvent{}
	require.NoError(t, e.decode(r, WRITE_ROWS_EVENTv2))

	s := newTestDispatchSession()
	s.reader = r
	act, err := s.translateRows(WRITE_ROWS_EVENTv2, &e)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, ActionTableAction, act.Kind)
	assert.Equal(t, TableID{Schema: "shop", Name: "orders"}, act.Table)
	require.Len(t, act.Ops, 2)
	assert.Equal(t, RowOp{Kind: OpInsert, Row: []interface{}{byte(10)}}, act.Ops[0])
	assert.Equal(t, RowOp{Kind: OpInsert, Row: []interface{}{byte(20)}}, act.Ops[1])
}

func TestTranslateRows_Delete(t *testing.T) {
	body := []byte{
		1, 0, 0, 0, 0, 0,
		0, 0,
		2, 0,
		1,
		0x01,
		0x00, 99,
	}
	tm := oneColumnTinyTableMap(1)
	r := buildRowsReader(t, body, tm)

	e := RowsEvent{}
	require.NoError(t, e.decode(r, DELETE_ROWS_EVENTv2))

	s := newTestDispatchSession()
	s.reader = r
	act, err := s.translateRows(DELETE_ROWS_EVENTv2, &e)
	require.NoError(t, err)
	require.NotNil(t, act)
	require.Len(t, act.Ops, 1)
	assert.Equal(t, RowOp{Kind: OpDeleteRow, Row: []interface{}{byte(99)}}, act.Ops[0])
}

// TestTranslateRows_UpdateFanOut verifies an UPDATE row image becomes a
// delete of the before-image immediately followed by an insert of the
// after-image, in that order.
func TestTranslateRows_UpdateFanOut(t *testing.T) {
	body := []byte{
		1, 0, 0, 0, 0, 0,
		0, 0,
		2, 0,
		1,
		0x01, // before-image columns-present bitmap
		0x01, // after-image columns-present bitmap
		0x00, 5, // before-image row: null bitmap, value
		0x00, 7, // after-image row: null bitmap, value
	}
	tm := oneColumnTinyTableMap(1)
	r := buildRowsReader(t, body, tm)

	e := RowsEvent{}
	require.NoError(t, e.decode(r, UPDATE_ROWS_EVENTv2))

	s := newTestDispatchSession()
	s.reader = r
	txid := uint64(3)
	s.currentTxID = &txid
	act, err := s.translateRows(UPDATE_ROWS_EVENTv2, &e)
	require.NoError(t, err)
	require.NotNil(t, act)
	require.Len(t, act.Ops, 2)
	assert.Equal(t, RowOp{Kind: OpDeleteRow, Row: []interface{}{byte(5)}}, act.Ops[0])
	assert.Equal(t, RowOp{Kind: OpInsert, Row: []interface{}{byte(7)}}, act.Ops[1])
	require.NotNil(t, act.TxID)
	assert.Equal(t, txid, *act.TxID)
}

func TestTranslateRows_DummyEventYieldsNoAction(t *testing.T) {
	s := newTestDispatchSession()
	act, err := s.translateRows(WRITE_ROWS_EVENTv2, &RowsEvent{TableMap: nil})
	require.NoError(t, err)
	assert.Nil(t, act)
}

// TestRowsEventDecode_UnknownTableIDIsFatal confirms a ROWS_EVENT naming a
// table id absent from the cache (no TABLE_MAP_EVENT seen yet, most likely
// because the stream was resumed mid-transaction) is rejected outright
// rather than silently skipped, since there is no way to interpret the row
// bytes without that table's column layout.
func TestRowsEventDecode_UnknownTableIDIsFatal(t *testing.T) {
	body := []byte{
		9, 0, 0, 0, 0, 0, // tableID = 9, not present in tmeCache
		0, 0,
		2, 0,
		1,
		0x01,
		0x00, 1,
	}
	r := buildRowsReader(t, body, oneColumnTinyTableMap(1))

	e := RowsEvent{}
	err := e.decode(r, WRITE_ROWS_EVENTv2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table map for table id 9")
}
