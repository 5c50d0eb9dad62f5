package documents

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	//ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	//ErrAlreadyExists is returned when creating a document with an id that is taken
	ErrAlreadyExists = errors.New("document already exists")
	//ErrForeignRef is returned when a store is handed a reference into another store
	ErrForeignRef = errors.New("reference points into another store")
)

//Ref is a typed pointer to a document within a named store and collection. It is
//what documents store instead of copying attributes of the document they point to.
type Ref struct {
	Store      string `json:"store"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

//NewRef builds a Ref without checking that the document exists
func NewRef(store, collection, id string) Ref {
	return Ref{Store: store, Collection: collection, ID: id}
}

//Path returns the collection relative path of the document, e.g. Devices/gw-01
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

func (r Ref) String() string {
	return r.Store + ":" + r.Path()
}

func (r Ref) IsZero() bool {
	return r.Store == "" && r.Collection == "" && r.ID == ""
}

//Valid reports whether the ref can address a single document
func (r Ref) Valid() bool {
	return r.Collection != "" && r.ID != "" && !strings.Contains(r.ID, "/") && !strings.Contains(r.Collection, "/")
}

//Fields holds the contents of a document. Supported value types are nil, string,
//bool, float64 (and the other numeric kinds, which are stored as float64),
//time.Time, Ref and []Ref.
type Fields map[string]interface{}

//Document is a stored document together with its location
type Document struct {
	Ref       Ref
	Fields    Fields
	CreatedAt time.Time
}

//Text returns the string value of a field, or "" when it is absent or not a string
func (d Document) Text(name string) string {
	s, _ := d.Fields[name].(string)
	return s
}

//Float returns the numeric value of a field. ok is false if it is absent or null.
func (d Document) Float(name string) (value float64, ok bool) {
	value, ok = d.Fields[name].(float64)
	return
}

func (d Document) Bool(name string) bool {
	b, _ := d.Fields[name].(bool)
	return b
}

func (d Document) Time(name string) (time.Time, bool) {
	t, ok := d.Fields[name].(time.Time)
	return t, ok
}

//Reference returns the Ref held in a field
func (d Document) Reference(name string) (Ref, bool) {
	r, ok := d.Fields[name].(Ref)
	return r, ok
}

//Filter selects documents whose field equals a value
type Filter struct {
	Field string
	Value interface{}
}

//Eq returns an equality filter. References match by store, collection and id.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

//Store is the capability set the application needs from a schemaless document
//database: point lookups, equality queries and single document writes
type Store interface {
	//Name identifies the store and is recorded in every Ref it hands out
	Name() string
	Ref(collection, id string) Ref

	Get(ctx context.Context, ref Ref) (*Document, error)
	Exists(ctx context.Context, ref Ref) (bool, error)
	//Find returns matching documents in insertion order
	Find(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	//Any reports whether at least one document matches, without reading them all
	Any(ctx context.Context, collection string, filters ...Filter) (bool, error)

	//Create stores a new document. An empty id makes the store generate one.
	Create(ctx context.Context, collection, id string, fields Fields) (Ref, error)
	//Update merges fields into an existing document
	Update(ctx context.Context, ref Ref, fields Fields) error
	Delete(ctx context.Context, ref Ref) error
}
