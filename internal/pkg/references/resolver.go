//Package references turns raw identifiers into typed document references and
//proves that they point at something.
package references

import (
	"context"
	"fmt"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
)

//Resolver builds references into one store
type Resolver struct {
	store documents.Store
}

func NewResolver(store documents.Store) *Resolver {
	return &Resolver{store: store}
}

//Store returns the store the resolver points into
func (r *Resolver) Store() documents.Store {
	return r.store
}

//Pointer builds a reference without touching the store
func (r *Resolver) Pointer(collection, id string) documents.Ref {
	return r.store.Ref(collection, id)
}

//Resolve builds a reference and performs a point lookup to see if it exists.
//A false result with a nil error means the document is absent. A non nil error
//is a failure to talk to the store, never a missing document.
func (r *Resolver) Resolve(ctx context.Context, collection, id string) (bool, documents.Ref, error) {
	ref := r.Pointer(collection, id)

	if !ref.Valid() {
		return false, ref, nil
	}

	exists, err := r.store.Exists(ctx, ref)
	if err != nil {
		return false, ref, fmt.Errorf("failed to resolve %s: %w", ref, err)
	}

	return exists, ref, nil
}

//Require resolves a reference for a write that must not proceed without it.
//Absence is reported as apperrors.UnknownDevice attributed to field, and store
//failures as apperrors.StoreUnavailable.
func (r *Resolver) Require(ctx context.Context, collection, id, field string) (documents.Ref, error) {
	exists, ref, err := r.Resolve(ctx, collection, id)
	if err != nil {
		return ref, apperrors.NewStoreUnavailable("resolve "+field, err)
	}

	if !exists {
		return ref, apperrors.NewUnknownDevice(field, id)
	}

	return ref, nil
}

//Related returns references to every document in collection whose field points
//at target. An empty result is not an error.
func (r *Resolver) Related(ctx context.Context, collection, field string, target documents.Ref) ([]documents.Ref, error) {
	docs, err := r.store.Find(ctx, collection, documents.Eq(field, target))
	if err != nil {
		return nil, fmt.Errorf("failed to find %s referencing %s: %w", collection, target, err)
	}

	refs := make([]documents.Ref, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, doc.Ref)
	}

	return refs, nil
}
