package typedesc_test

import (
	"sync"
	"testing"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

func TestObservedValues(t *testing.T) {
	d := newTestDescriptor()
	count, _ := d.GetMember("Count")
	buffer, _ := d.GetMember("Buffer")

	obs := typedesc.NewObservedValues()
	if _, ok := obs.Get(count); ok {
		t.Fatal("empty association returned a value")
	}
	obs.Set(count, 42)
	if v, ok := obs.Get(count); !ok || v != 42 {
		t.Fatalf("Get(count) = %d, %v, want 42, true", v, ok)
	}
	if got := obs.ValueOf(buffer); got != 0 {
		t.Fatalf("ValueOf(buffer) = %d, want fallback 0", got)
	}
	if count.Value() != 0 {
		t.Fatal("observing a value mutated the member")
	}

	clone := count.Clone()
	if _, ok := obs.Get(clone); ok {
		t.Fatal("clone shares the observation of the original")
	}

	obs.Delete(count)
	if obs.Len() != 0 {
		t.Fatalf("Len() = %d after Delete, want 0", obs.Len())
	}
}

func TestObservedValuesFallsBackToConstant(t *testing.T) {
	k := typedesc.NewConstant(typedesc.SymbolInfo{Name: "Red", Size: 4, Tag: typedesc.TagEnum}, 3)
	var obs typedesc.ObservedValues
	if got := obs.ValueOf(k); got != 3 {
		t.Fatalf("ValueOf(Red) = %d, want 3", got)
	}
	obs.Set(k, 9)
	if got := obs.ValueOf(k); got != 9 {
		t.Fatalf("ValueOf(Red) = %d, want 9", got)
	}
}

func TestObservedValuesConcurrent(t *testing.T) {
	d := newTestDescriptor()
	obs := typedesc.NewObservedValues()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m := d.At(n % d.Count())
			obs.Set(m, int64(n))
			obs.ValueOf(m)
		}(i)
	}
	wg.Wait()
	if obs.Len() != d.Count() {
		t.Fatalf("Len() = %d, want %d", obs.Len(), d.Count())
	}
}
