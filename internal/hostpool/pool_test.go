package hostpool

import (
	"errors"
	"sync"
	"testing"
)

func TestNewEmptyGroup(t *testing.T) {
	_, err := New(map[string][]string{"svc": {}})
	if err == nil {
		t.Fatal("expected error for empty host group")
	}
	if !errors.Is(err, ErrEmptyHostGroup) {
		t.Errorf("expected ErrEmptyHostGroup, got: %v", err)
	}
}

func TestNewNoPort(t *testing.T) {
	_, err := New(map[string][]string{"svc": {"127.0.0.1"}})
	if err == nil {
		t.Fatal("expected error for host without port")
	}
	if !errors.Is(err, ErrMalformedHost) {
		t.Errorf("expected ErrMalformedHost, got: %v", err)
	}
}

func TestNewBadPort(t *testing.T) {
	_, err := New(map[string][]string{"svc": {"127.0.0.1:http"}})
	if !errors.Is(err, ErrMalformedHost) {
		t.Errorf("expected ErrMalformedHost, got: %v", err)
	}

	_, err = New(map[string][]string{"svc": {"127.0.0.1:99999"}})
	if !errors.Is(err, ErrMalformedHost) {
		t.Errorf("expected ErrMalformedHost, got: %v", err)
	}
}

func TestHas(t *testing.T) {
	p, err := New(map[string][]string{"svc": {"127.0.0.1:80"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !p.Has("svc") {
		t.Error("expected Has(svc) to be true")
	}
	if p.Has("other") {
		t.Error("expected Has(other) to be false")
	}
}

func TestPickRoundRobin(t *testing.T) {
	p, err := New(map[string][]string{
		"svc": {"h1:1", "h2:2", "h3:3"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"h1", "h2", "h3", "h1", "h2", "h3"}
	for i, addr := range want {
		got := p.Pick("svc")
		if got.Addr != addr {
			t.Errorf("pick %d: expected %s, got %s", i, addr, got.Addr)
		}
	}
}

func TestPickSingleHost(t *testing.T) {
	p, err := New(map[string][]string{"svc": {"10.0.0.1:8080"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		got := p.Pick("svc")
		if got.Addr != "10.0.0.1" || got.Port != 8080 {
			t.Errorf("pick %d: unexpected host %v", i, got)
		}
	}
}

func TestPickConcurrentCoverage(t *testing.T) {
	p, err := New(map[string][]string{
		"svc": {"h1:1", "h2:2", "h3:3"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const rounds = 30
	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := p.Pick("svc")
			mu.Lock()
			counts[h.Addr]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Atomic cursor distributes evenly regardless of interleaving
	for _, addr := range []string{"h1", "h2", "h3"} {
		if counts[addr] != rounds/3 {
			t.Errorf("%s: expected %d picks, got %d", addr, rounds/3, counts[addr])
		}
	}
}
