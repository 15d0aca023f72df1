// Command tokuc compiles Tokudae source into binary chunks, the
// ahead-of-time counterpart to cmd/tokudae (spec section 6, `dump`).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/gc"
	"github.com/b-jure/tokudae-sub001/internal/marshal"
	"github.com/b-jure/tokudae-sub001/internal/parser"
	"github.com/b-jure/tokudae-sub001/internal/value"
	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		output  = flag.String("o", "", "output path (default: input with .tokc extension)")
		strip   = flag.Bool("s", false, "strip debug information")
		list    = flag.Bool("l", false, "list decoded bytecode instead of writing a chunk")
		combine = flag.Bool("combine", false, "compile all inputs concurrently and nest them under one top-level proto in one chunk")
	)
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "tokuc: no input files")
		os.Exit(1)
	}

	if *combine {
		if err := runCombine(inputs, *output, *strip); err != nil {
			fmt.Fprintln(os.Stderr, "tokuc:", err)
			os.Exit(1)
		}
		return
	}

	for _, in := range inputs {
		proto, err := compileFile(in)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tokuc:", err)
			os.Exit(1)
		}
		if *list {
			listProto(in, proto)
			continue
		}
		if err := writeChunk(in, *output, proto, *strip); err != nil {
			fmt.Fprintln(os.Stderr, "tokuc:", err)
			os.Exit(1)
		}
	}
}

func compileFile(path string) (*bytecode.FunctionProto, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parser.Parse(string(src), path, gc.NopCollector{})
}

// runCombine compiles every input concurrently (spec section 5: "chunks
// compile independently — only the final concatenation is sequential")
// the way the teacher's build pipeline fans work out with errgroup, then
// makes the resulting protos the nested protos of one vararg top-level
// proto. That top-level proto has no code of its own: the inputs' code is
// not concatenated into its body and nothing in it calls the children.
func runCombine(inputs []string, output string, strip bool) error {
	protos := make([]*bytecode.FunctionProto, len(inputs))
	var g errgroup.Group
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			p, err := compileFile(in)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			protos[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	top := &bytecode.FunctionProto{IsVararg: true, Source: "=(combine)"}
	top.P = protos

	if output == "" {
		output = "combined.tokc"
	}
	return writeChunk("(combine)", output, top, strip)
}

func writeChunk(in, output string, proto *bytecode.FunctionProto, strip bool) error {
	if output == "" {
		output = strings.TrimSuffix(in, filepath.Ext(in)) + ".tokc"
	}
	data := marshal.Dump(proto, strip)
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("%s -> %s (%s)\n", in, output, humanize.Bytes(uint64(len(data))))
	}
	return nil
}

func listProto(name string, proto *bytecode.FunctionProto) {
	fmt.Printf("-- %s --\n", name)
	dumpProto(proto, 0)
}

func dumpProto(p *bytecode.FunctionProto, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%sfunction <%s:%d,%d> (%d instructions, %d bytes)\n",
		indent, p.Source, p.DefLine, p.DefLastLine, len(p.OpcodePC), len(p.Code))
	for i, pc := range p.OpcodePC {
		op := bytecode.OpCode(p.Code[pc])
		fmt.Printf("%s  [%d] %d\t%s\n", indent, i, p.GetLine(pc), op)
	}
	if len(p.K) > 0 {
		fmt.Printf("%s  constants:\n", indent)
		for i, k := range p.K {
			fmt.Printf("%s    %d\t%s\n", indent, i, formatConst(k))
		}
	}
	for _, child := range p.P {
		dumpProto(child, depth+1)
	}
	if depth == 0 {
		fmt.Printf("%s\n", pretty.Sprint(p.Upvals))
	}
}

func formatConst(v value.Value) string {
	switch v.Kind() {
	case value.KNil:
		return "nil"
	case value.KBool:
		return fmt.Sprintf("%v", v.AsBool())
	case value.KInt:
		return fmt.Sprintf("%d", v.AsInt())
	case value.KFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	case value.KShortString, value.KLongString:
		return fmt.Sprintf("%q", v.AsString().Data)
	default:
		return v.Kind().String()
	}
}
