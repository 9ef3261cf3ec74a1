package loader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/graph-gophers/dataloader"
)

type ctxKey string

const operatorLoaderKey ctxKey = "operatorLoader"

// NewOperatorLoader batches operator name lookups into one repository query
func NewOperatorLoader(repo ports.OperatorRepository) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		names, err := repo.NamesByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// results must follow key order
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if name, ok := names[id]; ok {
				results[i] = &dataloader.Result{Data: name}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	return dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond))
}

// Middleware attaches a fresh operator loader to every request context
func Middleware(repo ports.OperatorRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), operatorLoaderKey, NewOperatorLoader(repo))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the request's operator loader
func FromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(operatorLoaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}

// Directory resolves operator names through the request loader, falling back
// to a one-off loader outside HTTP requests.
type Directory struct {
	repo ports.OperatorRepository
}

var _ ports.OperatorDirectory = (*Directory)(nil)

// NewDirectory creates an operator directory
func NewDirectory(repo ports.OperatorRepository) *Directory {
	return &Directory{repo: repo}
}

// ResolveNames maps employee ids to names; unknown ids are left out
func (d *Directory) ResolveNames(ctx context.Context, employeeIDs []string) (domain.ReferenceNames, error) {
	names := domain.ReferenceNames{}
	if len(employeeIDs) == 0 {
		return names, nil
	}

	l := FromContext(ctx)
	if l == nil {
		l = NewOperatorLoader(d.repo)
	}

	values, errs := l.LoadMany(ctx, dataloader.NewKeysFromStrings(employeeIDs))()
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to load operators: %w", err)
		}
	}

	for i, v := range values {
		if name, ok := v.(string); ok && name != "" {
			names[employeeIDs[i]] = name
		}
	}
	return names, nil
}
