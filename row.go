package binlogstream

import (
	"io"
)

// dummyTableID is the sentinel table id MySQL uses for a ROWS_EVENT that
// carries no actual row data (e.g. the final event of an otherwise-empty
// transaction). Its body is consumed but yields no row operations.
const dummyTableID = 0x00ffffff

// RowsEvent is one WRITE/UPDATE/DELETE_ROWS_EVENT: the set of row images
// changed by a single row-based statement against a single table.
//
// https://dev.mysql.com/doc/internals/en/rows-event.html
type RowsEvent struct {
	eventType EventType
	tableID   uint64
	TableMap  *TableMap
	flags     uint16
	columns   [2][]Column
}

func (e *RowsEvent) decode(r *reader, eventType EventType) error {
	e.eventType = eventType
	if r.fde.postHeaderLength(eventType, 8) == 6 {
		e.tableID = uint64(r.int4())
	} else {
		e.tableID = r.int6()
	}
	if e.tableID == dummyTableID {
		r.tme = nil
	} else {
		var ok bool
		if e.TableMap, ok = r.tmeCache[e.tableID]; !ok {
			return protocolErrorf("no table map for table id %d", e.tableID)
		}
		r.tme = e.TableMap
	}

	e.flags = r.int2()
	switch eventType {
	case WRITE_ROWS_EVENTv2, UPDATE_ROWS_EVENTv2, DELETE_ROWS_EVENTv2:
		extraDataLength := r.int2()
		if r.err != nil {
			return r.err
		}
		r.string(int(extraDataLength - 2))
	}
	numCol := r.intN()
	if r.err != nil {
		return r.err
	}
	if numCol == 0 {
		r.tme = nil
	}

	present := r.nullBitmap(numCol)
	if r.err != nil {
		return r.err
	}
	if r.tme != nil {
		for i := 0; i < int(numCol); i++ {
			if present.isTrue(i) {
				e.columns[0] = append(e.columns[0], e.TableMap.Columns[i])
			}
		}
	}
	switch eventType {
	case UPDATE_ROWS_EVENTv1, UPDATE_ROWS_EVENTv2:
		present = r.nullBitmap(numCol)
		if r.err != nil {
			return r.err
		}
		if r.tme != nil {
			for i := 0; i < int(numCol); i++ {
				if present.isTrue(i) {
					e.columns[1] = append(e.columns[1], e.TableMap.Columns[i])
				}
			}
		}
	}

	r.re = rowsEventState{eventType: eventType, columns: e.columns}
	return r.err
}

// Columns returns the after-image column set: the columns present for an
// insert, or the columns present after an update.
func (e RowsEvent) Columns() []Column {
	if e.eventType == UPDATE_ROWS_EVENTv1 || e.eventType == UPDATE_ROWS_EVENTv2 {
		return e.columns[1]
	}
	return e.columns[0]
}

// ColumnsBeforeUpdate returns the before-image column set; nil for
// WRITE/DELETE events.
func (e RowsEvent) ColumnsBeforeUpdate() []Column {
	if e.eventType == UPDATE_ROWS_EVENTv1 || e.eventType == UPDATE_ROWS_EVENTv2 {
		return e.columns[0]
	}
	return nil
}

// nextRow decodes the next row image from a ROWS_EVENT body, coercing
// each present column through its TableMap descriptor. Callers loop on
// it until io.EOF. A dummy ROWS_EVENT (tableID==dummyTableID, or a
// present-table event with a zero column count) yields io.EOF
// immediately and no row operations, per the dummy-row convention.
func nextRow(r *reader) (values, valuesBeforeUpdate []interface{}, err error) {
	if r.tme == nil {
		return nil, nil, io.EOF
	}
	if !r.more() {
		if r.err != nil {
			return nil, nil, r.err
		}
		return nil, nil, io.EOF
	}
	var row [2][]interface{}
	n := 1
	if r.re.eventType == UPDATE_ROWS_EVENTv1 || r.re.eventType == UPDATE_ROWS_EVENTv2 {
		n = 2
	}
	for m := 0; m < n; m++ {
		nullValue := r.nullBitmap(uint64(len(r.re.columns[m])))
		if r.err != nil {
			return nil, nil, r.err
		}
		var vals []interface{}
		for i, col := range r.re.columns[m] {
			if nullValue.isTrue(i) {
				vals = append(vals, nil)
			} else {
				v, err := col.decodeValue(r)
				if err != nil {
					return nil, nil, &CoercionError{Kind: col.Type, Err: err}
				}
				vals = append(vals, v)
			}
		}
		row[m] = vals
	}
	if r.re.eventType == UPDATE_ROWS_EVENTv1 || r.re.eventType == UPDATE_ROWS_EVENTv2 {
		return row[1], row[0], nil
	}
	return row[0], nil, nil
}

// RowsQueryEvent carries the original SQL text of the statement that
// produced the following ROWS_EVENT(s), when binlog_rows_query_log_events
// is enabled.
//
// https://dev.mysql.com/doc/internals/en/rows-query-event.html
type RowsQueryEvent struct {
	Query string
}

func (e *RowsQueryEvent) decode(r *reader) error {
	r.int1() // length, redundant with the EOF-terminated string below
	e.Query = r.stringEOF()
	return r.err
}
