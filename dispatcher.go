package binlogstream

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// NextAction reads and translates events until one produces an Action, or
// a fatal error occurs. When until is non-nil and the session's position
// reaches or passes it without anything else to report, NextAction
// returns an ActionLogPosition so callers tailing up to a known offset
// can observe progress without blocking forever on a quiet binlog.
func (s *Session) NextAction(until *ReplicationOffset) (Action, ReplicationOffset, error) {
	for {
		ev, err := s.nextEvent()
		if err != nil {
			return Action{}, ReplicationOffset{}, err
		}
		s.nextPosition.Offset = ev.Header.LogPos

		act, translateErr := s.translate(ev)
		// finishEvent runs regardless of translateErr: a ROWS_EVENT the
		// dispatcher rejected or errored on mid-iteration still leaves
		// bytes on the wire that must be drained so the next nextEvent
		// call starts at the right offset.
		if finishErr := s.finishEvent(); finishErr != nil {
			return Action{}, ReplicationOffset{}, finishErr
		}
		if translateErr != nil {
			return Action{}, ReplicationOffset{}, translateErr
		}

		off, encErr := Encode(s.nextPosition)
		if encErr != nil {
			return Action{}, ReplicationOffset{}, encErr
		}

		if act == nil {
			if until != nil && CompareOffsets(off, *until) != Less {
				return Action{Kind: ActionLogPosition, Position: s.nextPosition}, off, nil
			}
			continue
		}
		act.Position = s.nextPosition
		return *act, off, nil
	}
}

// translate turns one decoded Event into an Action, or nil when the event
// carries nothing a caller needs to see directly (a TABLE_MAP_EVENT only
// updates the table-id cache, a HEARTBEAT_EVENT only confirms liveness).
func (s *Session) translate(ev Event) (*Action, error) {
	if s.opts.LogStatements {
		s.log.WithFields(map[string]interface{}{
			"event_type": ev.Header.EventType,
			"log_pos":    ev.Header.LogPos,
		}).Debug("binlogstream: event")
	}
	switch data := ev.Data.(type) {
	case legacyRowsEvent:
		return nil, &UnsupportedEventError{What: data.Type.String()}

	case RotateEvent:
		s.nextPosition = Position{File: data.NextBinlog, Offset: uint32(data.Position)}
		return &Action{Kind: ActionLogPosition}, nil

	case QueryEvent:
		return s.translateQuery(data)

	case *RowsEvent:
		return s.translateRows(ev.Header.EventType, data)

	case GTIDEvent:
		gno := uint64(data.GNO)
		s.currentTxID = &gno
		return nil, nil

	case XidEvent:
		xid := data.Xid
		s.currentTxID = nil
		return &Action{Kind: ActionCommitTxn, XID: &xid}, nil

	default:
		return nil, nil
	}
}

func (s *Session) translateQuery(q QueryEvent) (*Action, error) {
	if s.opts.LogStatements {
		s.log.WithFields(map[string]interface{}{"schema": q.Schema, "query": q.Query}).Debug("binlogstream: statement")
	}

	trimmed := strings.TrimSpace(q.Query)
	switch strings.ToUpper(trimmed) {
	case "BEGIN":
		return &Action{Kind: ActionBeginTxn}, nil
	case "COMMIT":
		txid := s.currentTxID
		s.currentTxID = nil
		return &Action{Kind: ActionCommitTxn, TxID: txid}, nil
	}

	names := q.updatedDBNames()
	if len(names) == 0 {
		return nil, nil
	}
	if s.opts.DDLParser == nil {
		return nil, nil
	}
	changes, err := s.opts.DDLParser.ParseDDL(q.Query)
	if err != nil {
		atomic.AddUint64(&s.ddlFailures, 1)
		perr := &DdlParseError{Schema: names[0], Query: q.Query, Err: err}
		s.log.WithError(perr).WithField("query", q.Query).Warn("binlogstream: ddl parse failed, skipping")
		return nil, nil
	}
	return &Action{Kind: ActionDdlChange, Schema: names[0], Changes: changes}, nil
}

func (s *Session) translateRows(typ EventType, e *RowsEvent) (*Action, error) {
	if e.TableMap == nil {
		// Dummy rows event: no table, no rows, nothing to report.
		return nil, nil
	}
	var ops []RowOp
	for {
		after, before, err := nextRow(s.reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case typ.IsUpdateRows():
			ops = append(ops, RowOp{Kind: OpDeleteRow, Row: before}, RowOp{Kind: OpInsert, Row: after})
		case typ.IsDeleteRows():
			ops = append(ops, RowOp{Kind: OpDeleteRow, Row: after})
		case typ.IsWriteRows():
			ops = append(ops, RowOp{Kind: OpInsert, Row: after})
		default:
			return nil, fmt.Errorf("binlogstream: unexpected rows event type %s", typ)
		}
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return &Action{
		Kind: ActionTableAction,
		Table: TableID{
			Schema: e.TableMap.SchemaName,
			Name:   e.TableMap.TableName,
		},
		Ops:  ops,
		TxID: s.currentTxID,
	}, nil
}
