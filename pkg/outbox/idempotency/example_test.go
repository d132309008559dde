package idempotency

import (
	"context"
	"fmt"
	"time"
)

type memoryStore map[string]any

func (m memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = value
	return true, nil
}

func (m memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (memoryStore) IdempotencyKey(scope, id string) string {
	return "pf:idempotency:" + scope + ":" + id
}

func ExampleManager_CheckAndMarkProcessed() {
	ctx := context.Background()
	dedupe, _ := NewManager(memoryStore{}, 72*time.Hour)

	settle := func(orderEventID string) {
		seen, err := dedupe.CheckAndMarkProcessed(ctx, "order-settlement", orderEventID)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if seen {
			fmt.Println(orderEventID, "redelivered, acked")
			return
		}
		fmt.Println(orderEventID, "settled")
	}

	settle("order-1042:completed")
	settle("order-1042:completed")
	settle("order-1042:cancelled")
	// Output:
	// order-1042:completed settled
	// order-1042:completed redelivered, acked
	// order-1042:cancelled settled
}
