// Package gc stands in for Tokudae's garbage collector, which spec
// section 1 lists as an external collaborator ("provides barrier(parent,
// child) and allocation hooks") and explicitly out of scope ("GC
// algorithm choice" is a non-goal). The compiler core only ever needs the
// write barrier contract, so that is all this package exposes.
package gc

// Collector is the narrow interface the compiler depends on: a write
// barrier invoked whenever an already-scanned ("black") object gains a
// reference to a not-yet-scanned ("white") one (spec section 5).
type Collector interface {
	Barrier(parent, child interface{})
}

// NopCollector satisfies Collector without tracking anything — the
// default used by a standalone compile session that never runs inside a
// live VM heap.
type NopCollector struct{}

func (NopCollector) Barrier(parent, child interface{}) {}

// CountingCollector is a test/debug Collector that records how many
// barrier calls it received, so compiler tests can assert the invariants
// in spec section 5 ("invoked on every append to proto.k, proto.p, ...")
// without needing a real heap.
type CountingCollector struct {
	Calls int
}

func (c *CountingCollector) Barrier(parent, child interface{}) {
	c.Calls++
}
