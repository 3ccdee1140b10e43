package ops

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_AppendPreservesOrder(t *testing.T) {
	// Given: an empty batch
	b := NewBatch("products")
	assert.Equal(t, "products", b.IndexName())
	assert.Equal(t, 0, b.Len())

	// When: operations are appended across several calls, including duplicates
	d1 := Add(Document{ID: "1"})
	d2 := Add(Document{ID: "2"})
	del := DeleteByTerm(Term{Field: "id", Text: "1"})
	b.Append(d1, d2)
	b.Append(del)
	b.Append(d1)

	// Then: order is call order and nothing is deduplicated
	assert.Equal(t, []Operation{d1, d2, del, d1}, b.Operations())
	assert.Equal(t, 3, b.Counts()[KindAdd])
	assert.Equal(t, 1, b.Counts()[KindDeleteByTerm])
}

func TestBatch_OperationsReturnsCopy(t *testing.T) {
	b := NewBatch("idx", Add(Document{ID: "1"}))

	got := b.Operations()
	got[0] = DeleteByQuery(Query{Text: "*"})

	assert.Equal(t, KindAdd, b.Operations()[0].Kind())
}

func TestBatch_JSON(t *testing.T) {
	b := NewBatch("idx",
		Add(Document{ID: "1", Fields: map[string]any{"title": "a"}}),
		DeleteByQuery(Query{Text: "title:b"}),
	)

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded Batch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "idx", decoded.IndexName())
	assert.Equal(t, b.Operations(), decoded.Operations())
}

func TestBatch_EmptyJSON(t *testing.T) {
	data, err := json.Marshal(NewBatch("idx"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":"idx","operations":[]}`, string(data))
}
