// Package session holds the ordinal handles handed out by the most recent
// listing so later calls can refer to "email 3".
package session

import (
	"fmt"
	"sync"

	"github.com/deskmail/deskmail/internal/mail"
)

// NoEntryError is returned by Get for an empty cache or an unknown ordinal.
type NoEntryError struct {
	Ordinal int
	Empty   bool
}

func (e *NoEntryError) Error() string {
	if e.Empty {
		return "no emails are cached; list or search emails first"
	}
	return fmt.Sprintf("email #%d not found in the current listing", e.Ordinal)
}

// Cache maps 1-based ordinals to messages. It holds a single generation:
// every populating call starts with Reset.
type Cache struct {
	mu    sync.Mutex
	items map[int]*mail.Message
	next  int
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{items: make(map[int]*mail.Message), next: 1}
}

// Reset drops every entry and restarts ordinals at 1.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[int]*mail.Message)
	c.next = 1
}

// Put stores m under ordinal.
func (c *Cache) Put(ordinal int, m *mail.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[ordinal] = m
	if ordinal >= c.next {
		c.next = ordinal + 1
	}
}

// Add stores m under the next free ordinal and returns it.
func (c *Cache) Add(m *mail.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	c.items[n] = m
	c.next++
	return n
}

// Store resets the cache and assigns ordinals 1..len(msgs) in order.
func (c *Cache) Store(msgs []*mail.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[int]*mail.Message, len(msgs))
	for i, m := range msgs {
		c.items[i+1] = m
	}
	c.next = len(msgs) + 1
}

// Get resolves an ordinal.
func (c *Cache) Get(ordinal int) (*mail.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil, &NoEntryError{Ordinal: ordinal, Empty: true}
	}
	m, ok := c.items[ordinal]
	if !ok {
		return nil, &NoEntryError{Ordinal: ordinal}
	}
	return m, nil
}

// Remove forgets an ordinal. Other ordinals keep their numbers.
func (c *Cache) Remove(ordinal int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, ordinal)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
