package csv

import (
	"context"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptconv/pkg/contract"
)

func encode(t *testing.T, e contract.Encoder, tbl *contract.Table) string {
	t.Helper()
	r, err := e.Encode(context.Background(), tbl)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestEncodeLabeled(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, ".csv", e.Ext())

	rows := []contract.LabeledRecord[contract.PositionRecord]{
		{Record: contract.PositionRecord{X: 1, Y: 2.5, Z: -3, Da: 27}, Comp: "Al:1", Colour: "#33FFFF"},
		{Record: contract.PositionRecord{Da: 0.5}, Colour: "#FFFFFF"},
	}
	got := encode(t, e, contract.TableOf("s.labeled", rows))
	assert.Equal(t, "x,y,z,Da,comp,colour\n1,2.5,-3,27,Al:1,#33FFFF\n0,0,0,0.5,,#FFFFFF\n", got)
}

func TestEncodeQuotesAndOptions(t *testing.T) {
	e, err := New(&Options{Delimiter: ";", NoHeader: true})
	require.NoError(t, err)
	tbl := &contract.Table{Columns: []string{"number", "comp"}, Rows: [][]any{{"1", "Fe:1 O:1"}, {"2", "a;b"}}}
	assert.Equal(t, "1;Fe:1 O:1\n2;\"a;b\"\n", encode(t, e, tbl))
}

func TestEncodeEmptyTable(t *testing.T) {
	e, _ := New(nil)
	tbl := contract.TableOf[contract.Ion]("ions", nil)
	assert.Equal(t, "number,name\n", encode(t, e, tbl))
}

func TestEncodeRaggedRow(t *testing.T) {
	e, _ := New(nil)
	tbl := &contract.Table{Name: "bad", Columns: []string{"a", "b"}, Rows: [][]any{{1.0}}}
	_, err := e.Encode(context.Background(), tbl)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestNewBadDelimiter(t *testing.T) {
	for _, d := range []string{"ab", "\"", "\n"} {
		_, err := New(&Options{Delimiter: d})
		assert.True(t, errors.Is(err, contract.ErrInvalidInput), d)
	}
}

func TestEncodeCanceled(t *testing.T) {
	e, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Encode(ctx, &contract.Table{})
	assert.ErrorIs(t, err, context.Canceled)
}
