package types

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewID_SortsInIssueOrder(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id <= prev {
			t.Fatalf("id %d: %s does not sort after %s", i, id, prev)
		}
		prev = id
	}
}

func TestNewID_UniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, perWorker)
			for i := range local {
				local[i] = NewID()
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %s", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d ids, got %d", workers*perWorker, len(seen))
	}
}

func TestIDTime(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := NewID()
	after := time.Now()

	got, err := IDTime(id)
	if err != nil {
		t.Fatalf("IDTime: %v", err)
	}
	if got.Before(before) || got.After(after) {
		t.Errorf("IDTime = %v, want within [%v, %v]", got, before, after)
	}
}

func TestIDTime_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"garbage", "not-an-id"},
		{"random uuid", uuid.NewString()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := IDTime(tt.id); !errors.Is(err, ErrInvalidID) {
				t.Errorf("IDTime(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestIDDefault_FillsPrimaryKey(t *testing.T) {
	col := Column{Name: "id", PrimaryKey: true, DefaultFunc: IDDefault}
	if !col.HasDefault() {
		t.Fatal("expected a default")
	}
	a, b := col.DefaultValue(), col.DefaultValue()
	as, ok := a.(string)
	if !ok || as == "" {
		t.Fatalf("default = %#v, want a non-empty string", a)
	}
	if as == b {
		t.Error("two defaults are equal")
	}
}
