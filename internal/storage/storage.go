package storage

import (
	"errors"
	"strings"
	"sync"
)

const maxFruitLength = 256

var (
	// ErrInvalidFruit indicates the provided fruit name is empty or too long.
	ErrInvalidFruit = errors.New("fruit must be a non-empty name of at most 256 characters")
)

// Basket holds the fruits added through the API.
type Basket interface {
	Add(fruit string) (string, error)
	List() []string
	Len() int
}

// MemoryBasket keeps fruits in-memory and guards access with a RWMutex.
// Nothing is persisted.
type MemoryBasket struct {
	mu     sync.RWMutex
	fruits []string
}

// NewMemoryBasket returns an empty basket.
func NewMemoryBasket() *MemoryBasket {
	return &MemoryBasket{}
}

// Add appends a fruit and returns the stored value.
func (b *MemoryBasket) Add(fruit string) (string, error) {
	fruit = strings.TrimSpace(fruit)
	if fruit == "" || len(fruit) > maxFruitLength {
		return "", ErrInvalidFruit
	}

	b.mu.Lock()
	b.fruits = append(b.fruits, fruit)
	last := b.fruits[len(b.fruits)-1]
	b.mu.Unlock()

	return last, nil
}

// List returns a defensive copy of the fruits in insertion order.
func (b *MemoryBasket) List() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.fruits))
	copy(out, b.fruits)
	return out
}

// Len returns the number of fruits in the basket.
func (b *MemoryBasket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fruits)
}
