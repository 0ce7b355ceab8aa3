package ranging

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptconv/pkg/contract"
)

func pos(da ...float64) []contract.PositionRecord {
	out := make([]contract.PositionRecord, len(da))
	for i, d := range da {
		out[i] = contract.PositionRecord{X: float64(i), Y: -float64(i), Z: 10 * float64(i), Da: d}
	}
	return out
}

func TestLabelSingleRange(t *testing.T) {
	recs := pos(0.5, 1.5, 2.5)
	got := Label(recs, []contract.Range{{Number: "1", Lower: 1.0, Upper: 2.0, Comp: "Fe:1", Colour: "FF00FF"}})
	require.Len(t, got, 3)

	assert.Equal(t, "", got[0].Comp)
	assert.Equal(t, "#FFFFFF", got[0].Colour)
	assert.Equal(t, "Fe:1", got[1].Comp)
	assert.Equal(t, "#FF00FF", got[1].Colour)
	assert.Equal(t, "", got[2].Comp)
	assert.Equal(t, "#FFFFFF", got[2].Colour)

	// 输入不被修改，原字段原样保留
	assert.Equal(t, pos(0.5, 1.5, 2.5), recs)
	assert.Equal(t, recs[1], got[1].Record)
}

func TestLabelInclusiveBounds(t *testing.T) {
	got := Label(pos(1.0, 2.0), []contract.Range{{Lower: 1.0, Upper: 2.0, Comp: "Al:1", Colour: "33FFFF"}})
	assert.Equal(t, "Al:1", got[0].Comp)
	assert.Equal(t, "Al:1", got[1].Comp)
}

func TestLabelOverlapLastWins(t *testing.T) {
	ranges := []contract.Range{
		{Number: "1", Lower: 1.0, Upper: 3.0, Comp: "Fe:1", Colour: "FF0000"},
		{Number: "2", Lower: 2.0, Upper: 4.0, Comp: "O:1", Colour: "00FF00"},
	}
	got := Label(pos(1.5, 2.5, 3.5), ranges)
	assert.Equal(t, []string{"Fe:1", "O:1", "O:1"}, []string{got[0].Comp, got[1].Comp, got[2].Comp})
	assert.Equal(t, "#00FF00", got[1].Colour)
}

func TestLabelNoRanges(t *testing.T) {
	got := Label(pos(1, 2), nil)
	for _, g := range got {
		assert.Equal(t, "", g.Comp)
		assert.Equal(t, contract.DefaultColour, g.Colour)
	}
	assert.Empty(t, Label[contract.PositionRecord](nil, nil))
}

func TestLabelExtended(t *testing.T) {
	recs := []contract.ExtendedPositionRecord{{PositionRecord: contract.PositionRecord{Da: 27}, Ipp: 1}}
	got := Label(recs, []contract.Range{{Lower: 26.9, Upper: 27.1, Comp: "Al:1", Colour: "33FFFF"}})
	assert.Equal(t, "Al:1", got[0].Comp)
	assert.Equal(t, uint32(1), got[0].Record.Ipp)
	assert.Equal(t, append(contract.ExtendedPositionRecord{}.Header(), "comp", "colour"), got[0].Header())
}

func TestParseComposition(t *testing.T) {
	c, err := ParseComposition("Fe:2  O:3")
	require.NoError(t, err)
	assert.Equal(t, []Component{{"Fe", "2"}, {"O", "3"}}, c)

	c, err = ParseComposition("")
	require.NoError(t, err)
	assert.Empty(t, c)

	for _, bad := range []string{"Fe2", "Fe:", ":2", "Fe:2.5", "Fe-1:1"} {
		_, err := ParseComposition(bad)
		assert.True(t, errors.Is(err, contract.ErrMalformedComposition), bad)
	}
}

func TestDeconvolveCompound(t *testing.T) {
	labeled := Label(pos(5.0), []contract.Range{{Lower: 4, Upper: 6, Comp: "Fe:2 O:3", Colour: "AABBCC"}})
	got, err := Deconvolve(labeled)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Fe", got[0].Element)
	assert.Equal(t, "2", got[0].N)
	assert.Equal(t, "O", got[1].Element)
	assert.Equal(t, "3", got[1].N)
	for _, g := range got {
		assert.Equal(t, labeled[0].Record, g.Record)
		assert.Equal(t, "Fe:2 O:3", g.Comp)
		assert.Equal(t, "#AABBCC", g.Colour)
	}
}

func TestDeconvolveGroupOrder(t *testing.T) {
	ranges := []contract.Range{
		{Lower: 0.9, Upper: 1.1, Comp: "H:1", Colour: "111111"},
		{Lower: 1.9, Upper: 2.1, Comp: "Fe:1 O:1", Colour: "222222"},
	}
	// 组顺序: Fe:1 O:1（首次出现于下标 0），H:1（下标 1）；3.0 未标注被排除
	labeled := Label(pos(2.0, 1.0, 3.0, 2.0), ranges)
	got, err := Deconvolve(labeled)
	require.NoError(t, err)

	type row struct {
		Da float64
		El string
	}
	var rows []row
	for _, g := range got {
		rows = append(rows, row{g.Record.Da, g.Element})
	}
	assert.Equal(t, []row{
		{2.0, "Fe"}, {2.0, "Fe"},
		{2.0, "O"}, {2.0, "O"},
		{1.0, "H"},
	}, rows)
}

func TestDeconvolveMalformed(t *testing.T) {
	labeled := Label(pos(1.0), []contract.Range{{Lower: 0, Upper: 2, Comp: "Fe2", Colour: "FFFFFF"}})
	_, err := Deconvolve(labeled)
	assert.True(t, errors.Is(err, contract.ErrMalformedComposition))
}

func TestDeconvolveEmpty(t *testing.T) {
	got, err := Deconvolve(Label(pos(1, 2), nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeconvolveIndexed(t *testing.T) {
	ranges := []contract.Range{
		{Lower: 0.9, Upper: 1.1, Comp: "H:1", Colour: "111111"},
		{Lower: 1.9, Upper: 2.1, Comp: "Fe:1 O:1", Colour: "222222"},
	}
	_, idx, err := DeconvolveIndexed(Label(pos(2.0, 1.0, 3.0, 2.0), ranges))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 0, 3, 1}, idx)
}
