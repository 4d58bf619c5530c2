// Package storage persists each owner's expense sequence as a single blob
// under the owner's key.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"expenses/internal/core"
)

// Medium is a key/value store holding one blob per owner key.
type Medium interface {
	// Get returns the blob stored under key; ok is false when nothing is stored.
	Get(ctx context.Context, key string) (blob []byte, ok bool, err error)
	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, blob []byte) error
}

// KeyLister is implemented by media able to enumerate their keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// EncodeExpenses serializes records in sequence order.
func EncodeExpenses(records []core.Expense) ([]byte, error) {
	if records == nil {
		records = []core.Expense{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode expenses: %w", err)
	}
	return blob, nil
}

// DecodeExpenses parses a blob written by EncodeExpenses. An empty blob is an
// empty sequence.
func DecodeExpenses(blob []byte) ([]core.Expense, error) {
	if len(blob) == 0 {
		return []core.Expense{}, nil
	}
	var records []core.Expense
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	if records == nil {
		records = []core.Expense{}
	}
	return records, nil
}
