// Package code implements the expression descriptor and bytecode
// emitter (spec section 4.5) on top of a bytecode.FunctionProto: constant
// pool deduplication, stack-pointer tracking, line info, jump list
// backpatching and peephole merging. The parser (internal/parser)
// drives this package instruction by instruction; neither package knows
// about the other's grammar-level concerns.
package code

import (
	"math"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/gc"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// floatPerturb is applied to a float key before it's used to probe the
// int/bool/string-keyed kcache, so an integral float like 3.0 doesn't
// collide with the integer constant 3 (spec section 4.4). The exact
// factor mirrors `x * (1 + 2^-52)` for a float64 mantissa.
const floatPerturb = 1 + 1.0/(1<<52)

// kcache is the per-function transient dedup table (spec section 4.4):
// discarded once its owning FunctionState finishes, never persisted.
type kcache struct {
	ints     map[int64]int32
	floats   map[float64]int32
	strs     map[string]int32
	bools    [2]int32
	boolSet  [2]bool
	nilIdx   int32
	nilSet   bool
}

func newKCache() *kcache {
	return &kcache{
		ints:   make(map[int64]int32),
		floats: make(map[float64]int32),
		strs:   make(map[string]int32),
		nilIdx: -1,
	}
}

// ConstPool adds Values to a FunctionProto's constant pool with
// deduplication, invoking the GC write barrier on every fresh append
// (spec section 4.4, section 5 "invoked on every append to proto.k").
type ConstPool struct {
	proto *bytecode.FunctionProto
	gc    gc.Collector
	cache *kcache
}

func NewConstPool(proto *bytecode.FunctionProto, collector gc.Collector) *ConstPool {
	if collector == nil {
		collector = gc.NopCollector{}
	}
	return &ConstPool{proto: proto, gc: collector, cache: newKCache()}
}

func (c *ConstPool) append(v value.Value) int32 {
	idx := int32(len(c.proto.K))
	c.proto.K = append(c.proto.K, v)
	c.gc.Barrier(c.proto, v)
	return idx
}

// Nil returns the index of the (singleton) nil constant, keyed by the
// pool itself since nil cannot key a table (spec section 4.4).
func (c *ConstPool) Nil() int32 {
	if c.cache.nilSet {
		return c.cache.nilIdx
	}
	idx := c.append(value.Nil())
	c.cache.nilIdx = idx
	c.cache.nilSet = true
	return idx
}

func (c *ConstPool) Bool(b bool) int32 {
	i := 0
	if b {
		i = 1
	}
	if c.cache.boolSet[i] {
		return c.cache.bools[i]
	}
	idx := c.append(value.Bool(b))
	c.cache.bools[i] = idx
	c.cache.boolSet[i] = true
	return idx
}

func (c *ConstPool) Int(n int64) int32 {
	if idx, ok := c.cache.ints[n]; ok {
		return idx
	}
	idx := c.append(value.Int(n))
	c.cache.ints[n] = idx
	return idx
}

// Float dedups on a perturbed key (spec section 4.4): NaN is never
// cached (each NaN literal gets its own slot — invariant 5 in section 8
// only forbids NaN from being load-bearing for dedup, not from
// appearing at all) and a perturbation collision just appends a
// harmless duplicate rather than misidentifying the value.
func (c *ConstPool) Float(f float64) int32 {
	if math.IsNaN(f) {
		return c.append(value.Float(f))
	}
	key := f * floatPerturb
	if idx, ok := c.cache.floats[key]; ok {
		if c.proto.K[idx].Kind() == value.KFloat && c.proto.K[idx].AsFloat() == f {
			return idx
		}
	}
	idx := c.append(value.Float(f))
	c.cache.floats[key] = idx
	return idx
}

func (c *ConstPool) String(s *value.String) int32 {
	if idx, ok := c.cache.strs[s.Data]; ok {
		return idx
	}
	var v value.Value
	if len(s.Data) <= shortStringLimit {
		v = value.ShortStr(s)
	} else {
		v = value.LongStr(s)
	}
	idx := c.append(v)
	c.cache.strs[s.Data] = idx
	return idx
}

// shortStringLimit mirrors the classic Lua short/long string cutoff
// used to decide interning eligibility.
const shortStringLimit = 40
