// Package memory defines the synthetic memory record, the search result shape,
// and the capability set every storage engine implements.
//
// Invariants:
// - A memory id is immutable once assigned and addresses one logical record.
// - A stored memory is present in both the text index and the vector index, or in neither.
// - Every stored embedding has the engine's fixed dimension.
//
// Usage:
//
//	m := &memory.Memory{Content: "alpha widget", Source: "https://example.com/a"}
//	if err := store.StoreMemory(ctx, m, vec); err != nil {
//		return err
//	}
//	got, err := store.GetMemory(ctx, m.ID)
package memory
