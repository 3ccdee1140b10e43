package ops

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of an Operation.
type Kind int

const (
	// KindAdd adds one document.
	KindAdd Kind = iota + 1
	// KindDeleteByQuery deletes every document matching a query.
	KindDeleteByQuery
	// KindDeleteByTerm deletes every document containing an exact term.
	KindDeleteByTerm
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindDeleteByQuery:
		return "delete_by_query"
	case KindDeleteByTerm:
		return "delete_by_term"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "add":
		return KindAdd, nil
	case "delete_by_query":
		return KindDeleteByQuery, nil
	case "delete_by_term":
		return KindDeleteByTerm, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", s)
	}
}

// Document is a document to add. ID is the document key in the index.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Query selects documents with a query-string expression.
type Query struct {
	Text string `json:"text"`
}

// Term selects documents containing Text verbatim in Field.
type Term struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// Operation is an immutable index mutation. The zero value is not a valid
// operation; use Add, DeleteByQuery or DeleteByTerm.
type Operation struct {
	kind  Kind
	doc   Document
	query Query
	term  Term
}

// Add returns an operation that adds doc to the index.
func Add(doc Document) Operation {
	return Operation{kind: KindAdd, doc: copyDocument(doc)}
}

// DeleteByQuery returns an operation that deletes the documents matching q.
func DeleteByQuery(q Query) Operation {
	return Operation{kind: KindDeleteByQuery, query: q}
}

// DeleteByTerm returns an operation that deletes the documents containing t.
func DeleteByTerm(t Term) Operation {
	return Operation{kind: KindDeleteByTerm, term: t}
}

// Kind returns the operation variant.
func (o Operation) Kind() Kind { return o.kind }

// Document returns the document payload of an add operation.
func (o Operation) Document() (Document, bool) {
	if o.kind != KindAdd {
		return Document{}, false
	}
	return copyDocument(o.doc), true
}

// Query returns the query payload of a delete-by-query operation.
func (o Operation) Query() (Query, bool) {
	if o.kind != KindDeleteByQuery {
		return Query{}, false
	}
	return o.query, true
}

// Term returns the term payload of a delete-by-term operation.
func (o Operation) Term() (Term, bool) {
	if o.kind != KindDeleteByTerm {
		return Term{}, false
	}
	return o.term, true
}

// String renders the operation for logs.
func (o Operation) String() string {
	switch o.kind {
	case KindAdd:
		return fmt.Sprintf("add(%s)", o.doc.ID)
	case KindDeleteByQuery:
		return fmt.Sprintf("delete_by_query(%s)", o.query.Text)
	case KindDeleteByTerm:
		return fmt.Sprintf("delete_by_term(%s:%s)", o.term.Field, o.term.Text)
	default:
		return o.kind.String()
	}
}

// copyDocument shallow-copies the field map so a caller mutating its map
// after construction cannot change a queued operation.
func copyDocument(doc Document) Document {
	if doc.Fields == nil {
		return doc
	}
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return Document{ID: doc.ID, Fields: fields}
}

// wireOperation is the JSON form used by the daemon transport.
type wireOperation struct {
	Kind     string    `json:"kind"`
	Document *Document `json:"document,omitempty"`
	Query    *Query    `json:"query,omitempty"`
	Term     *Term     `json:"term,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Kind: o.kind.String()}
	switch o.kind {
	case KindAdd:
		doc := o.doc
		w.Document = &doc
	case KindDeleteByQuery:
		q := o.query
		w.Query = &q
	case KindDeleteByTerm:
		t := o.term
		w.Term = &t
	default:
		return nil, fmt.Errorf("cannot encode operation of %s", o.kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}

	switch kind {
	case KindAdd:
		if w.Document == nil {
			return fmt.Errorf("add operation without document")
		}
		*o = Add(*w.Document)
	case KindDeleteByQuery:
		if w.Query == nil {
			return fmt.Errorf("delete_by_query operation without query")
		}
		*o = DeleteByQuery(*w.Query)
	case KindDeleteByTerm:
		if w.Term == nil {
			return fmt.Errorf("delete_by_term operation without term")
		}
		*o = DeleteByTerm(*w.Term)
	}
	return nil
}
