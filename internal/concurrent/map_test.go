package concurrent

import (
	"errors"
	"sync"
	"testing"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

func TestMapInsertPreventsOverwrite(t *testing.T) {
	m := NewMap[string, int]()
	if err := m.Insert("a", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Insert("a", 2); !errors.Is(err, pbserrors.KeyExists) {
		t.Fatalf("expected KeyExists, got %v", err)
	}
	v, err := m.Find("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected untouched value 1, got %d", v)
	}
}

func TestMapFindNotFound(t *testing.T) {
	m := NewMap[string, int]()
	if _, err := m.Find("missing"); !errors.Is(err, pbserrors.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestMapErase(t *testing.T) {
	m := NewMap[string, int]()
	_ = m.Insert("a", 1)
	if err := m.Erase("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Erase("a"); !errors.Is(err, pbserrors.KeyNotFound) {
		t.Fatalf("expected KeyNotFound on double erase, got %v", err)
	}
}

func TestMapKeysSnapshotUnordered(t *testing.T) {
	m := NewMap[string, int]()
	_ = m.Insert("a", 1)
	_ = m.Insert("b", 2)
	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	if !set["a"] || !set["b"] {
		t.Fatalf("expected keys {a, b}, got %v", keys)
	}
}

func TestMapGetOrInsertConcurrentSingleWinner(t *testing.T) {
	m := NewMap[string, *int]()
	var constructed int
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = m.GetOrInsert("k", func() *int {
				constructed++
				v := int(constructed)
				return &v
			})
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("expected every caller to observe the same winning value pointer")
		}
	}
}
