package event

import (
	"reflect"
	"sync"
	"testing"
)

type moved struct{ ID int }

type removed struct{ ID int }

func TestBusDispatchOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e moved) { got = append(got, "moved") })
	Subscribe(b, func(e removed) { got = append(got, "removed") })

	Emit(b, moved{1})
	Emit(b, removed{1})
	Emit(b, moved{2})
	if len(got) != 0 {
		t.Fatalf("events delivered before Dispatch")
	}
	if n := b.Dispatch(); n != 3 {
		t.Fatalf("Dispatch delivered %d events, want 3", n)
	}
	if want := []string{"moved", "removed", "moved"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if b.Dispatch() != 0 {
		t.Fatalf("events delivered twice")
	}
}

func TestBusEmitDuringDispatch(t *testing.T) {
	b := NewBus()
	Subscribe(b, func(e moved) {
		if e.ID < 3 {
			Emit(b, moved{e.ID + 1})
		}
	})
	Emit(b, moved{1})
	b.Dispatch()
	if b.Pending() != 1 {
		t.Fatalf("event emitted by a handler should wait for the next Dispatch")
	}
}

func TestBusConcurrentEmit(t *testing.T) {
	b := NewBus()
	count := 0
	Subscribe(b, func(moved) { count++ })
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Emit(b, moved{j})
			}
		}()
	}
	wg.Wait()
	b.Dispatch()
	if count != 800 {
		t.Fatalf("delivered %d events, want 800", count)
	}
}

func TestBusSubscribeDuringDispatch(t *testing.T) {
	b := NewBus()
	var late []int
	Subscribe(b, func(e moved) {
		if e.ID == 1 {
			Subscribe(b, func(r removed) { late = append(late, r.ID) })
		}
	})
	Emit(b, moved{1})
	Emit(b, removed{2})
	b.Dispatch()
	if len(late) != 1 || late[0] != 2 {
		t.Fatalf("late handler saw %v, want [2]", late)
	}

	// Subscribers racing a Dispatch from another goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			Subscribe(b, func(removed) {})
		}
	}()
	for i := 0; i < 100; i++ {
		Emit(b, removed{i})
		b.Dispatch()
	}
	wg.Wait()
}
