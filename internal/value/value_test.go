package value

import (
	"math"
	"testing"
)

func TestEqualCrossKindNumeric(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{Int(3), Float(3.0), true},
		{Float(3.0), Int(3), true},
		{Int(3), Float(3.5), false},
		{Int(3), Float(math.NaN()), false},
		{Int(-1), Float(-1.0), true},
	}
	for _, c := range cases {
		if got := c.a.Equal(c.b); got != c.want {
			t.Errorf("%v.Equal(%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestEqualStringByContent(t *testing.T) {
	a := ShortStr(&String{Data: "foo", Interned: true})
	b := LongStr(&String{Data: "foo", Interned: false})
	if !a.Equal(b) {
		t.Error("strings with equal content but different kind/interning should compare equal")
	}
}

func TestFalsey(t *testing.T) {
	if !Nil().Falsey() {
		t.Error("nil must be falsey")
	}
	if !Bool(false).Falsey() {
		t.Error("false must be falsey")
	}
	for _, v := range []Value{Bool(true), Int(0), Float(0), ShortStr(&String{})} {
		if v.Falsey() {
			t.Errorf("%v must not be falsey", v)
		}
	}
}

func TestHashKeyIntFloatCollide(t *testing.T) {
	if Int(5).HashKey() != Float(5.0).HashKey() {
		t.Error("HashKey(5) and HashKey(5.0) must collide so map lookups respect numeric equality")
	}
	if Float(5.5).HashKey() == Int(5).HashKey() {
		t.Error("HashKey(5.5) must not collide with HashKey(5)")
	}
}

func TestFloatToInt(t *testing.T) {
	if _, ok := FloatToInt(3.5, N2IEQ); ok {
		t.Error("3.5 is not exactly integral, N2IEQ must fail")
	}
	if i, ok := FloatToInt(3.5, N2IFloor); !ok || i != 3 {
		t.Errorf("floor(3.5) = %d, %v; want 3, true", i, ok)
	}
	if i, ok := FloatToInt(3.5, N2ICeil); !ok || i != 4 {
		t.Errorf("ceil(3.5) = %d, %v; want 4, true", i, ok)
	}
	if _, ok := FloatToInt(math.NaN(), N2IEQ); ok {
		t.Error("NaN must not convert")
	}
	if _, ok := FloatToInt(math.Inf(1), N2IFloor); ok {
		t.Error("+Inf must not convert")
	}
}

func TestRawArithIntOverflowWraps(t *testing.T) {
	v, ok := RawArith(Int(math.MaxInt64), Int(1), OpAdd)
	if !ok || v.AsInt() != math.MinInt64 {
		t.Errorf("MaxInt64+1 = %d, %v; want wraparound to MinInt64", v.AsInt(), ok)
	}
}

func TestRawArithDivByZero(t *testing.T) {
	if _, ok := RawArith(Int(1), Int(0), OpIDiv); ok {
		t.Error("integer floor division by zero must not fold")
	}
	if _, ok := RawArith(Int(1), Int(0), OpMod); ok {
		t.Error("integer modulo by zero must not fold")
	}
	v, ok := RawArith(Int(1), Int(0), OpDiv)
	if !ok || !math.IsInf(v.AsFloat(), 1) {
		t.Error("float division by zero must fold to +Inf, always takes the float path")
	}
}

func TestRawArithFloorDivRoundsTowardNegInf(t *testing.T) {
	v, ok := RawArith(Int(-7), Int(2), OpIDiv)
	if !ok || v.AsInt() != -4 {
		t.Errorf("-7 // 2 = %d, want -4 (floor division)", v.AsInt())
	}
}

func TestRawArithModSignFollowsDivisor(t *testing.T) {
	v, ok := RawArith(Int(-7), Int(2), OpMod)
	if !ok || v.AsInt() != 1 {
		t.Errorf("-7 %% 2 = %d, want 1 (sign of divisor)", v.AsInt())
	}
}

func TestShiftOverflowAndNegative(t *testing.T) {
	if Shift(1, 64, true) != 0 {
		t.Error("shift >= 64 bits must yield zero")
	}
	if Shift(4, -1, true) != 2 {
		t.Error("negative shift amount must reverse direction")
	}
}

func TestRawUnary(t *testing.T) {
	v, ok := RawUnary(Int(5), OpUnm)
	if !ok || v.AsInt() != -5 {
		t.Errorf("-5 expected, got %d", v.AsInt())
	}
	v, ok = RawUnary(Int(0), OpBNot)
	if !ok || v.AsInt() != -1 {
		t.Errorf("^0 expected -1, got %d", v.AsInt())
	}
}

func TestFoldable(t *testing.T) {
	if !Foldable(OpBXor) {
		t.Error("OpBXor must be foldable (last foldable op)")
	}
	if Foldable(OpUnm) {
		t.Error("OpUnm (unary) must not be in the binary foldable range")
	}
}
