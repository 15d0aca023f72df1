// Package marshal implements Tokudae's binary chunk format (spec section
// 4.7): a deterministic dump of a FunctionProto tree with varint/zig-zag
// integers, deduplicated strings and endianness/format sentinels checked
// on load.
package marshal

const (
	magic   = "\x1bTokudae"
	version = 0x01 // major=0, minor=1
	format  = 0x00

	dataCheck = "\x19\x93\r\n\x1a\n"

	intCheckVal  int32   = -69
	byteCheckVal byte    = 0xF1
	hostIntCheck int64   = -69
	hostNumCheck float64 = -69.5
)

// constTag discriminates the payload shape of one constant-pool entry.
type constTag byte

const (
	tagNil constTag = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagShortStr
	tagLongStr
)

// opcodeAlign is the byte alignment padded before the code block (spec
// section 4.7, "align to opcode-size boundary") — every instruction's
// widest operand is a 3-byte long, so 4-byte alignment keeps the whole
// block's start address a multiple of the largest fixed-size unit the
// VM may want to read in place.
const opcodeAlign = 4

// absLineAlign is the alignment of the AbsLineEntry (PC int32, Line
// int32) fixed-size records.
const absLineAlign = 8
