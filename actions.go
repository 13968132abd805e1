package binlogstream

// ActionKind tags which fields of an Action are meaningful.
type ActionKind uint8

const (
	// ActionLogPosition carries no change, only an advanced position —
	// emitted for ROTATE_EVENT, and for an event that yields no other
	// action once the position has reached the caller's until bound, so
	// progress is still observable.
	ActionLogPosition ActionKind = iota
	// ActionBeginTxn marks the start of a transaction, from a BEGIN QUERY
	// event. A GTID_EVENT yields no action of its own.
	ActionBeginTxn
	// ActionCommitTxn marks the end of a transaction, from a COMMIT QUERY
	// event or an XID_EVENT.
	ActionCommitTxn
	// ActionDdlChange carries one successfully parsed schema-changing
	// statement.
	ActionDdlChange
	// ActionTableAction carries one or more row operations against a
	// single table from one ROWS_EVENT.
	ActionTableAction
)

// TableID identifies a table by its fully-qualified name, as it appeared
// in the TABLE_MAP_EVENT or QUERY_EVENT this Action was derived from.
type TableID struct {
	Schema string
	Name   string
}

// RowOpKind tags a RowOp as an insert or a delete. An UPDATE is expressed
// as a delete of the before-image immediately followed by an insert of
// the after-image, rather than as a distinct third kind, so a consumer
// that only materializes current state never needs to special-case it.
type RowOpKind uint8

const (
	OpInsert RowOpKind = iota
	OpDeleteRow
)

// RowOp is one row image within a TableAction.
type RowOp struct {
	Kind RowOpKind
	Row  []interface{}
}

// DDLChanges is the parsed recipe a DDLParser produces for one
// schema-changing statement. It is intentionally narrow: just enough for
// a caller to know what kind of change happened and which tables it
// touched, not a full AST.
type DDLChanges struct {
	Action string // e.g. "create", "alter", "drop", "rename", "truncate"
	Tables []TableID
}

// DDLParser classifies a DDL statement's text. internal/ddlparser
// provides the concrete implementation this module ships with, backed by
// go-vitess's sqlparser; callers may supply their own.
type DDLParser interface {
	ParseDDL(query string) (DDLChanges, error)
}

// Action is the external, engine-neutral unit NextAction returns: one
// translated binlog event. Only the fields relevant to Kind are
// meaningful; the rest are left at their zero value.
type Action struct {
	Kind     ActionKind
	Position Position

	// ActionDdlChange
	Schema  string
	Changes DDLChanges

	// ActionTableAction
	Table TableID
	Ops   []RowOp
	// TxID is also set on an ActionCommitTxn derived from a COMMIT
	// statement.
	TxID *uint64

	// ActionCommitTxn, when derived from an XID_EVENT rather than a plain
	// COMMIT statement.
	XID *uint64
}
