package ddlparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside-io/binlogstream"
)

func TestParseDDL_CreateTable(t *testing.T) {
	p := New()
	changes, err := p.ParseDDL("CREATE TABLE shop.orders (id INT PRIMARY KEY)")
	require.NoError(t, err)
	assert.Equal(t, "create", changes.Action)
	require.Len(t, changes.Tables, 1)
	assert.Equal(t, binlogstream.TableID{Schema: "shop", Name: "orders"}, changes.Tables[0])
}

func TestParseDDL_AlterTable(t *testing.T) {
	p := New()
	changes, err := p.ParseDDL("ALTER TABLE orders ADD COLUMN note TEXT")
	require.NoError(t, err)
	assert.Equal(t, "alter", changes.Action)
	require.Len(t, changes.Tables, 1)
	assert.Equal(t, "orders", changes.Tables[0].Name)
}

func TestParseDDL_DropTable(t *testing.T) {
	p := New()
	changes, err := p.ParseDDL("DROP TABLE orders")
	require.NoError(t, err)
	assert.Equal(t, "drop", changes.Action)
	require.Len(t, changes.Tables, 1)
	assert.Equal(t, "orders", changes.Tables[0].Name)
}

// TestParseDDL_RenameTable confirms both the old and new table names are
// reported, since a replica tracking table identity across a rename needs
// both ends of the move.
func TestParseDDL_RenameTable(t *testing.T) {
	p := New()
	changes, err := p.ParseDDL("RENAME TABLE orders TO orders_archived")
	require.NoError(t, err)
	assert.Equal(t, "rename", changes.Action)
	require.Len(t, changes.Tables, 2)
	assert.Equal(t, "orders", changes.Tables[0].Name)
	assert.Equal(t, "orders_archived", changes.Tables[1].Name)
}

func TestParseDDL_NonDDLStatementIsError(t *testing.T) {
	p := New()
	_, err := p.ParseDDL("SELECT * FROM orders")
	require.Error(t, err)
}

func TestParseDDL_SyntaxErrorIsError(t *testing.T) {
	p := New()
	_, err := p.ParseDDL("ALTER TBLE orders WEIRD SYNTAX")
	require.Error(t, err)
}
