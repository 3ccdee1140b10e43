package ops

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_VariantAccessors(t *testing.T) {
	add := Add(Document{ID: "d1", Fields: map[string]any{"title": "hello"}})
	q := DeleteByQuery(Query{Text: "title:hello"})
	term := DeleteByTerm(Term{Field: "lang", Text: "go"})

	assert.Equal(t, KindAdd, add.Kind())
	doc, ok := add.Document()
	require.True(t, ok)
	assert.Equal(t, "d1", doc.ID)
	_, ok = add.Query()
	assert.False(t, ok)

	assert.Equal(t, KindDeleteByQuery, q.Kind())
	query, ok := q.Query()
	require.True(t, ok)
	assert.Equal(t, "title:hello", query.Text)
	_, ok = q.Term()
	assert.False(t, ok)

	assert.Equal(t, KindDeleteByTerm, term.Kind())
	tm, ok := term.Term()
	require.True(t, ok)
	assert.Equal(t, Term{Field: "lang", Text: "go"}, tm)
	_, ok = term.Document()
	assert.False(t, ok)
}

func TestOperation_ImmutableAfterConstruction(t *testing.T) {
	// Given: an add operation built from a caller-owned map
	fields := map[string]any{"title": "before"}
	op := Add(Document{ID: "d1", Fields: fields})

	// When: the caller mutates the map, and the returned copy
	fields["title"] = "after"
	doc, _ := op.Document()
	doc.Fields["title"] = "changed"

	// Then: the operation still carries the original value
	again, _ := op.Document()
	assert.Equal(t, "before", again.Fields["title"])
}

func TestKind_StringAndParse(t *testing.T) {
	for _, k := range []Kind{KindAdd, KindDeleteByQuery, KindDeleteByTerm} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("upsert")
	assert.Error(t, err)
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestOperation_JSON(t *testing.T) {
	op := DeleteByTerm(Term{Field: "lang", Text: "go"})

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"delete_by_term","term":{"field":"lang","text":"go"}}`, string(data))

	var decoded Operation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, op, decoded)
}

func TestOperation_UnmarshalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown kind", `{"kind":"upsert"}`},
		{"add without document", `{"kind":"add"}`},
		{"query without payload", `{"kind":"delete_by_query"}`},
		{"term without payload", `{"kind":"delete_by_term"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var op Operation
			assert.Error(t, json.Unmarshal([]byte(tt.in), &op))
		})
	}
}

func TestOperation_MarshalZeroValueFails(t *testing.T) {
	_, err := json.Marshal(Operation{})
	assert.Error(t, err)
}
