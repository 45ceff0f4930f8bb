package callrecord

import (
	"context"
	"errors"
	"fmt"
)

var ErrRecentUnsupported = errors.New("no call record backend can list records")

// Backend is a named store.
type Backend struct {
	Name  string
	Store Store
}

// Fanout saves every record to all backends. The key of the first backend
// that succeeds is returned; an error is returned only if every backend fails.
type Fanout struct {
	backends []Backend
	onResult func(backend string, err error)
}

func NewFanout(backends ...Backend) *Fanout {
	return &Fanout{backends: backends}
}

// SetResultHook registers a callback invoked once per backend per save.
func (f *Fanout) SetResultHook(hook func(backend string, err error)) {
	f.onResult = hook
}

// Backends returns the configured backend names.
func (f *Fanout) Backends() []string {
	out := make([]string, 0, len(f.backends))
	for _, b := range f.backends {
		out = append(out, b.Name)
	}
	return out
}

func (f *Fanout) Save(ctx context.Context, record Record) (string, error) {
	if len(f.backends) == 0 {
		return "", errors.New("no call record backends configured")
	}
	record = withDefaults(record)

	var (
		key  string
		errs []error
	)
	for _, b := range f.backends {
		k, err := b.Store.Save(ctx, record)
		if f.onResult != nil {
			f.onResult(b.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
			continue
		}
		if key == "" {
			key = k
		}
	}
	if key == "" {
		return "", errors.Join(errs...)
	}
	return key, nil
}

// Recent lists records from the first backend that supports listing.
func (f *Fanout) Recent(ctx context.Context, limit int) ([]Record, error) {
	for _, b := range f.backends {
		if r, ok := b.Store.(RecentReader); ok {
			records, err := r.Recent(ctx, limit)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name, err)
			}
			return records, nil
		}
	}
	return nil, ErrRecentUnsupported
}

func (f *Fanout) Close() error {
	var errs []error
	for _, b := range f.backends {
		if err := b.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}
