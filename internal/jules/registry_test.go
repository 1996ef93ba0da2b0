package jules

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryGetSet(t *testing.T) {
	reg := NewSessionRegistry()
	if _, ok := reg.Get("conv"); ok {
		t.Fatal("expected empty registry")
	}
	reg.Set("conv", "abc")
	id, ok := reg.Get("conv")
	if !ok || id != "abc" {
		t.Fatalf("Get = %q, %v", id, ok)
	}
	reg.Set("conv", "def")
	if id, _ := reg.Get("conv"); id != "def" {
		t.Fatalf("overwrite failed, got %q", id)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewSessionRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		key := fmt.Sprintf("conv-%d", i%4)
		go func(k, id string) {
			defer wg.Done()
			reg.Set(k, id)
		}(key, fmt.Sprintf("session-%d", i))
		go func(k string) {
			defer wg.Done()
			reg.Get(k)
		}(key)
	}
	wg.Wait()
	if _, ok := reg.Get("conv-0"); !ok {
		t.Fatal("expected conv-0 to be present")
	}
}
