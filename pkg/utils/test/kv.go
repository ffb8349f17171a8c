package testutils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/remem/pkg/kv"
)

// FailingStore wraps a kv.Store and fails selected operations. Useful for
// exercising the degrade paths of storage adapters.
type FailingStore struct {
	// Inner handles calls that are not forced to fail. May be nil when all
	// operations fail.
	Inner kv.Store

	FailGet    bool
	FailPut    bool
	FailDelete bool
}

func (f *FailingStore) Get(ctx context.Context, namespace []string, key string) (*kv.Record, error) {
	if f.FailGet {
		return nil, fmt.Errorf("forced get failure: %w", kv.ErrStore)
	}
	return f.Inner.Get(ctx, namespace, key)
}

func (f *FailingStore) Put(ctx context.Context, namespace []string, key string, value json.RawMessage) error {
	if f.FailPut {
		return fmt.Errorf("forced put failure: %w", kv.ErrStore)
	}
	return f.Inner.Put(ctx, namespace, key, value)
}

func (f *FailingStore) Delete(ctx context.Context, namespace []string, key string) error {
	if f.FailDelete {
		return fmt.Errorf("forced delete failure: %w", kv.ErrStore)
	}
	return f.Inner.Delete(ctx, namespace, key)
}

func (f *FailingStore) Close() error {
	if f.Inner == nil {
		return nil
	}
	return f.Inner.Close()
}
