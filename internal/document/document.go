// Package document models stored MongoDB documents as a closed set of value
// variants so callers can tell reference markers apart from plain scalars
// without inspecting driver types.
package document

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindScalar Kind = iota
	KindReference
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindDocument:
		return "document"
	default:
		return "scalar"
	}
}

// Value is one stored value: a scalar, a reference identifier or a nested
// document. The zero Value is a nil scalar.
type Value struct {
	kind   Kind
	scalar interface{}
	ref    primitive.ObjectID
	doc    Document
}

// Scalar wraps any non-reference, non-document value. Arrays are scalars.
func Scalar(v interface{}) Value {
	return Value{kind: KindScalar, scalar: v}
}

// Reference wraps an identifier pointing at another stored record.
func Reference(id primitive.ObjectID) Value {
	return Value{kind: KindReference, ref: id}
}

// Nested wraps an embedded document.
func Nested(doc Document) Value {
	return Value{kind: KindDocument, doc: doc}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsReference reports whether v is a reference marker.
func (v Value) IsReference() bool {
	return v.kind == KindReference
}

// Document returns the embedded document when v is nested.
func (v Value) Document() (Document, bool) {
	if v.kind != KindDocument {
		return nil, false
	}
	return v.doc, true
}

// ReferenceID returns the identifier when v is a reference.
func (v Value) ReferenceID() (primitive.ObjectID, bool) {
	if v.kind != KindReference {
		return primitive.NilObjectID, false
	}
	return v.ref, true
}

// Interface returns the raw Go value, rebuilding nested documents as bson.D.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindReference:
		return v.ref
	case KindDocument:
		return v.doc.BSON()
	default:
		return v.scalar
	}
}

// Field is a named value inside a Document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered list of fields.
type Document []Field

// Get returns the value stored under name.
func (d Document) Get(name string) (Value, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// BSON converts d back into an ordered bson.D.
func (d Document) BSON() bson.D {
	out := make(bson.D, 0, len(d))
	for _, f := range d {
		out = append(out, bson.E{Key: f.Name, Value: f.Value.Interface()})
	}
	return out
}

// FromBSON converts a decoded driver document into a Document. Supported
// inputs are bson.D, bson.M, map[string]interface{} and bson.Raw. Keys of
// unordered maps are sorted so the result is deterministic.
func FromBSON(doc interface{}) (Document, error) {
	switch d := doc.(type) {
	case nil:
		return Document{}, nil
	case primitive.D:
		out := make(Document, 0, len(d))
		for _, e := range d {
			out = append(out, Field{Name: e.Key, Value: valueOf(e.Value)})
		}
		return out, nil
	case primitive.M:
		return fromMap(d), nil
	case map[string]interface{}:
		return fromMap(d), nil
	case bson.Raw:
		var decoded bson.D
		if err := bson.Unmarshal(d, &decoded); err != nil {
			return nil, fmt.Errorf("decode raw document: %w", err)
		}
		return FromBSON(decoded)
	default:
		return nil, fmt.Errorf("unsupported document type %T", doc)
	}
}

func fromMap(m map[string]interface{}) Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Name: k, Value: valueOf(m[k])})
	}
	return out
}

func valueOf(v interface{}) Value {
	switch val := v.(type) {
	case primitive.ObjectID:
		return Reference(val)
	case primitive.D, primitive.M, map[string]interface{}, bson.Raw:
		nested, err := FromBSON(val)
		if err != nil {
			// Undecodable raw bytes are kept as an opaque scalar.
			return Scalar(v)
		}
		return Nested(nested)
	default:
		return Scalar(v)
	}
}

// CountReferences returns the number of reference markers in doc at any
// depth. doc must be tree-shaped.
func CountReferences(doc Document) int {
	count := 0
	for _, f := range doc {
		if nested, ok := f.Value.Document(); ok {
			count += CountReferences(nested)
			continue
		}
		if f.Value.IsReference() {
			count++
		}
	}
	return count
}
