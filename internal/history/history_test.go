package history

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestBuffer_RingEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Push(Sample{Price: float64(i)})
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	if got, want := b.Prices(), []float64{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Prices = %v, want %v", got, want)
	}
}

func TestBuffer_PartiallyFilled(t *testing.T) {
	b := NewBuffer(5)
	b.Push(Sample{Price: 10})
	b.Push(Sample{Price: 11})
	if got, want := b.Prices(), []float64{10, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("Prices = %v, want %v", got, want)
	}
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	if NewBuffer(0).Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d", DefaultCapacity)
	}
}

func TestBook_AppendKeepsNewestPerAsset(t *testing.T) {
	book := NewBook(DefaultCapacity)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 250; i++ {
		book.Append("SOL/USDC", float64(100+i), start.Add(time.Duration(i)*30*time.Minute))
	}
	book.Append("BTC/USDC", 60000, start)

	if n := book.Len("SOL/USDC"); n != DefaultCapacity {
		t.Fatalf("SOL history = %d, want %d", n, DefaultCapacity)
	}
	prices := book.Prices("SOL/USDC")
	if prices[0] != 150 || prices[len(prices)-1] != 349 {
		t.Errorf("unexpected window [%v .. %v]", prices[0], prices[len(prices)-1])
	}
	if got := book.Assets(); !reflect.DeepEqual(got, []string{"BTC/USDC", "SOL/USDC"}) {
		t.Errorf("Assets = %v", got)
	}
	if book.Prices("ETH/USDC") != nil {
		t.Error("expected nil history for unknown asset")
	}
}

func TestBook_Restore(t *testing.T) {
	book := NewBook(2)
	book.Restore("JUP/USDC", []Sample{{Price: 1}, {Price: 2}, {Price: 3}})
	if got := book.Prices("JUP/USDC"); !reflect.DeepEqual(got, []float64{2, 3}) {
		t.Errorf("Prices = %v, want [2 3]", got)
	}
	book.Append("JUP/USDC", 4, time.Now())
	if got := book.Prices("JUP/USDC"); !reflect.DeepEqual(got, []float64{3, 4}) {
		t.Errorf("Prices after append = %v, want [3 4]", got)
	}
}

func TestBook_ConcurrentAppend(t *testing.T) {
	book := NewBook(DefaultCapacity)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				book.Append("SOL/USDC", 1, time.Now())
			}
		}()
	}
	wg.Wait()
	if book.Len("SOL/USDC") != 100 {
		t.Errorf("Len = %d, want 100", book.Len("SOL/USDC"))
	}
}
