// Package history keeps bounded per-asset price histories for the signal
// generator.
package history

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity covers roughly four days of half-hourly samples.
const DefaultCapacity = 200

// Sample is one observed quote.
type Sample struct {
	Price float64   `json:"price"`
	At    time.Time `json:"ts"`
}

// Buffer is a fixed-capacity ring of samples. The oldest sample is
// overwritten once the buffer is full.
type Buffer struct {
	samples  []Sample
	index    int
	capacity int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Push appends s, evicting the oldest sample when full.
func (b *Buffer) Push(s Sample) {
	if len(b.samples) < b.capacity {
		b.samples = append(b.samples, s)
	} else {
		b.samples[b.index] = s
	}
	b.index = (b.index + 1) % b.capacity
}

func (b *Buffer) Len() int {
	return len(b.samples)
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

// Samples returns the samples oldest first.
func (b *Buffer) Samples() []Sample {
	out := make([]Sample, 0, len(b.samples))
	if len(b.samples) < b.capacity {
		return append(out, b.samples...)
	}
	out = append(out, b.samples[b.index:]...)
	return append(out, b.samples[:b.index]...)
}

// Prices returns the sample prices oldest first.
func (b *Buffer) Prices() []float64 {
	samples := b.Samples()
	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	return prices
}

// Book maps asset symbols to their buffers. It is safe for concurrent use.
type Book struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*Buffer
}

func NewBook(capacity int) *Book {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Book{capacity: capacity, buffers: make(map[string]*Buffer)}
}

func (b *Book) Capacity() int {
	return b.capacity
}

// Append records a quote for asset.
func (b *Book) Append(asset string, price float64, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[asset]
	if !ok {
		buf = NewBuffer(b.capacity)
		b.buffers[asset] = buf
	}
	buf.Push(Sample{Price: price, At: at})
}

// Restore replaces asset's history with samples (oldest first). Only the
// newest Capacity samples are kept.
func (b *Book) Restore(asset string, samples []Sample) {
	buf := NewBuffer(b.capacity)
	for _, s := range samples {
		buf.Push(s)
	}
	b.mu.Lock()
	b.buffers[asset] = buf
	b.mu.Unlock()
}

// Prices returns asset's prices oldest first, or nil when unknown.
func (b *Book) Prices(asset string) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if buf, ok := b.buffers[asset]; ok {
		return buf.Prices()
	}
	return nil
}

func (b *Book) Samples(asset string) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if buf, ok := b.buffers[asset]; ok {
		return buf.Samples()
	}
	return nil
}

// Len returns the number of samples held for asset.
func (b *Book) Len(asset string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if buf, ok := b.buffers[asset]; ok {
		return buf.Len()
	}
	return 0
}

// Assets returns the tracked symbols in sorted order.
func (b *Book) Assets() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	assets := make([]string, 0, len(b.buffers))
	for a := range b.buffers {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}
