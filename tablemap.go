package binlogstream

import (
	"encoding/binary"
	"fmt"
)

// TableMap is a TABLE_MAP_EVENT's decoded body: the column layout for one
// table, cached under its numeric table id until a later TABLE_MAP_EVENT
// with the same id replaces it or the session is closed.
//
// A sequence of row events belonging to the same statement is always
// preceded by one TableMap per table the statement touches, so a table's
// layout is always known by the time its rows arrive.
//
// https://dev.mysql.com/doc/internals/en/table-map-event.html
type TableMap struct {
	tableID    uint64
	flags      uint16
	SchemaName string
	TableName  string
	Columns    []Column
}

func (e *TableMap) decode(r *reader) error {
	e.tableID = r.int6()
	e.flags = r.int2()
	r.int1() // schema name length
	e.SchemaName = r.stringNull()
	r.int1() // table name length
	e.TableName = r.stringNull()
	numCol := r.intN()
	if r.err != nil {
		return r.err
	}
	e.Columns = make([]Column, numCol)
	for i := range e.Columns {
		e.Columns[i].Ordinal = i
		e.Columns[i].Type = ColumnType(r.int1())
	}

	r.intN() // meta block length
	for i := range e.Columns {
		switch e.Columns[i].Type {
		case TypeBlob, TypeDouble, TypeFloat, TypeGeometry, TypeJSON,
			TypeTime2, TypeDateTime2, TypeTimestamp2:
			e.Columns[i].Meta = uint16(r.int1())
		case TypeVarchar, TypeBit, TypeDecimal, TypeNewDecimal,
			TypeSet, TypeEnum, TypeVarString:
			e.Columns[i].Meta = r.int2()
		case TypeString:
			meta := r.bytes(2)
			e.Columns[i].Meta = binary.BigEndian.Uint16(meta)
			if e.Columns[i].Meta >= 256 {
				b0, b1 := meta[0], meta[1]
				if b0&0x30 != 0x30 {
					e.Columns[i].Meta = uint16(b1) | (uint16((b0&0x30)^0x30) << 4)
					e.Columns[i].Type = ColumnType(b0 | 0x30)
				} else {
					e.Columns[i].Meta = uint16(b1)
					e.Columns[i].Type = ColumnType(b0)
				}
			}
		}
	}

	nullable := r.nullBitmap(numCol)
	if r.err != nil {
		return r.err
	}
	for i := range e.Columns {
		e.Columns[i].Nullable = nullable.isTrue(i)
	}

	// Extended table metadata, present when binlog_row_metadata=FULL.
	//
	// https://dev.mysql.com/worklog/task/?id=4618
	for r.more() {
		typ := r.int1()
		size := int(r.intN())
		if r.err != nil {
			break
		}
		switch typ {
		case 1: // UNSIGNED flag of numeric columns
			unsigned := r.bytesInternal(size)
			inum := 0
			for i := range e.Columns {
				if e.Columns[i].Type.isNumeric() {
					e.Columns[i].Unsigned = unsigned[inum/8]&(1<<uint(7-inum%8)) != 0
					inum++
				}
			}
		case 2: // default charset of string columns
			if err := e.decodeDefaultCharset(r, size, ColumnType.isString); err != nil {
				return err
			}
		case 3: // per-column charset of string columns
			if err := e.decodeCharset(r, size, ColumnType.isString); err != nil {
				return err
			}
		case 4: // column names
			for i := range e.Columns {
				e.Columns[i].Name = r.stringN()
			}
		case 5: // SET member strings
			if err := e.decodeValues(r, size, TypeSet); err != nil {
				return err
			}
		case 6: // ENUM member strings
			if err := e.decodeValues(r, size, TypeEnum); err != nil {
				return err
			}
		case 10: // default charset of ENUM/SET columns
			if err := e.decodeDefaultCharset(r, size, ColumnType.isEnumSet); err != nil {
				return err
			}
		case 11: // per-column charset of ENUM/SET columns
			if err := e.decodeCharset(r, size, ColumnType.isEnumSet); err != nil {
				return err
			}
		default:
			// 7 geometry type, 8/9 primary key (with/without prefix),
			// 12 column visibility: not needed by the value coercer.
			r.skip(size)
		}
	}

	return r.err
}

func (e *TableMap) decodeDefaultCharset(r *reader, size int, f func(ColumnType) bool) error {
	defCharset, n := r.intPacked()
	size -= n
	if r.err != nil {
		return r.err
	}
	for size > 0 {
		ord, n := r.intPacked()
		size -= n
		if r.err != nil {
			return r.err
		}
		charset, n := r.intPacked()
		size -= n
		e.Columns[ord].Charset = charset
		if r.err != nil {
			return r.err
		}
	}
	if size != 0 {
		return fmt.Errorf("binlogstream: invalid default charset metadata")
	}
	for i := range e.Columns {
		if f(e.Columns[i].Type) && e.Columns[i].Charset == 0 {
			e.Columns[i].Charset = defCharset
		}
	}
	return nil
}

func (e *TableMap) decodeCharset(r *reader, size int, f func(ColumnType) bool) error {
	for i := range e.Columns {
		if f(e.Columns[i].Type) {
			charset, n := r.intPacked()
			e.Columns[i].Charset = charset
			size -= n
			if r.err != nil {
				return r.err
			}
		}
	}
	if size != 0 {
		return fmt.Errorf("binlogstream: invalid column charset metadata")
	}
	return nil
}

func (e *TableMap) decodeValues(r *reader, size int, typ ColumnType) error {
	var icol int
	for size > 0 {
		nVal, n := r.intPacked()
		size -= n
		if r.err != nil {
			return r.err
		}
		vals := make([]string, nVal)
		for i := range vals {
			l, n := r.intPacked()
			size -= n
			if r.err != nil {
				return r.err
			}
			vals[i] = r.string(int(l))
			size -= int(l)
			if r.err != nil {
				return r.err
			}
		}
		for e.Columns[icol].Type != typ {
			icol++
		}
		e.Columns[icol].Values = vals
		icol++
	}
	if size != 0 {
		return fmt.Errorf("binlogstream: invalid enum/set value metadata")
	}
	return r.err
}
