// Package domain defines the abstract values manipulated by the flow
// analysis: addresses, change-tagged values, environments, stores and heap
// objects, together with their join operations.
package domain

import (
	"fmt"
	"sync/atomic"
)

// Address identifies one abstract storage cell. Addresses are compared by
// identity and ordered by allocation.
type Address uint64

// NoAddress is the zero address; it is never allocated.
const NoAddress Address = 0

func (a Address) String() string { return fmt.Sprintf("@%d", uint64(a)) }

// Defect is the panic value raised when address uniqueness can no longer
// be guaranteed. It must not be recovered from.
type Defect string

func (d Defect) Error() string { return "domain: " + string(d) }

// Allocator hands out unique addresses. It is safe for concurrent use.
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator returns an allocator whose first address is 1.
func NewAllocator() *Allocator { return &Allocator{} }

// DefaultAllocator is shared by analyses that are not given their own
// allocator, so addresses stay unique across concurrently analyzed files.
var DefaultAllocator = NewAllocator()

// Allocate returns a fresh address.
func (a *Allocator) Allocate() Address {
	n := a.next.Add(1)
	if n == 0 {
		// Every result downstream relies on address identity.
		panic(Defect("address space exhausted"))
	}
	return Address(n)
}

// Allocated returns the number of addresses handed out so far.
func (a *Allocator) Allocated() uint64 { return a.next.Load() }
