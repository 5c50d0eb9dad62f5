package documents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryDocument struct {
	fields    Fields
	createdAt time.Time
}

type memoryCollection struct {
	order []string
	docs  map[string]*memoryDocument
}

//MemoryStore is an in-process Store. It keeps insertion order per collection.
type MemoryStore struct {
	name string

	mu          sync.RWMutex
	collections map[string]*memoryCollection
	failWith    error
}

//NewMemoryStore creates an empty in-process store with the given name
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:        name,
		collections: map[string]*memoryCollection{},
	}
}

//FailWith makes every subsequent operation return err. Pass nil to recover.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) Name() string {
	return s.name
}

func (s *MemoryStore) Ref(collection, id string) Ref {
	return NewRef(s.name, collection, id)
}

func (s *MemoryStore) check(ctx context.Context, ref *Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failWith != nil {
		return s.failWith
	}
	if ref != nil {
		if ref.Store != s.name {
			return ErrForeignRef
		}
		if !ref.Valid() {
			return ErrNotFound
		}
	}
	return nil
}

func (s *MemoryStore) lookup(ref Ref) (*memoryDocument, bool) {
	c, ok := s.collections[ref.Collection]
	if !ok {
		return nil, false
	}
	d, ok := c.docs[ref.ID]
	return d, ok
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, &ref); err != nil {
		return nil, err
	}

	d, ok := s.lookup(ref)
	if !ok {
		return nil, ErrNotFound
	}

	return &Document{Ref: ref, Fields: copyFields(d.fields), CreatedAt: d.createdAt}, nil
}

func (s *MemoryStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	_, err := s.Get(ctx, ref)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	return s.find(ctx, collection, 0, filters)
}

func (s *MemoryStore) Any(ctx context.Context, collection string, filters ...Filter) (bool, error) {
	docs, err := s.find(ctx, collection, 1, filters)
	return len(docs) > 0, err
}

func (s *MemoryStore) find(ctx context.Context, collection string, limit int, filters []Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, nil); err != nil {
		return nil, err
	}

	result := []Document{}

	c, ok := s.collections[collection]
	if !ok {
		return result, nil
	}

	for _, id := range c.order {
		d := c.docs[id]
		if !matches(d.fields, filters) {
			continue
		}

		result = append(result, Document{
			Ref:       s.Ref(collection, id),
			Fields:    copyFields(d.fields),
			CreatedAt: d.createdAt,
		})

		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, fields Fields) (Ref, error) {
	normalized, err := Normalize(fields)
	if err != nil {
		return Ref{}, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	ref := s.Ref(collection, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, &ref); err != nil {
		return Ref{}, err
	}

	c, ok := s.collections[collection]
	if !ok {
		c = &memoryCollection{docs: map[string]*memoryDocument{}}
		s.collections[collection] = c
	}

	if _, exists := c.docs[id]; exists {
		return Ref{}, ErrAlreadyExists
	}

	c.docs[id] = &memoryDocument{fields: normalized, createdAt: time.Now().UTC()}
	c.order = append(c.order, id)

	return ref, nil
}

func (s *MemoryStore) Update(ctx context.Context, ref Ref, fields Fields) error {
	normalized, err := Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, &ref); err != nil {
		return err
	}

	d, ok := s.lookup(ref)
	if !ok {
		return ErrNotFound
	}

	for k, v := range normalized {
		d.fields[k] = v
	}

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, &ref); err != nil {
		return err
	}

	c, ok := s.collections[ref.Collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[ref.ID]; !ok {
		return ErrNotFound
	}

	delete(c.docs, ref.ID)
	for i, id := range c.order {
		if id == ref.ID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return nil
}
