// Command tokudae loads and verifies Tokudae chunks — source or
// precompiled — the front-end shape of `load` (spec section 6) minus
// the VM dispatcher, which is explicitly out of scope for this module.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/b-jure/tokudae-sub001/internal/gc"
	"github.com/b-jure/tokudae-sub001/internal/lexer"
	"github.com/b-jure/tokudae-sub001/internal/marshal"
	"github.com/b-jure/tokudae-sub001/internal/parser"
	"github.com/b-jure/tokudae-sub001/internal/vmhost"
	"github.com/mattn/go-isatty"
)

func main() {
	if len(os.Args) < 2 {
		repl()
		return
	}
	for _, path := range os.Args[1:] {
		if err := loadFile(path); err != nil {
			fmt.Fprintln(os.Stderr, "tokudae:", err)
			os.Exit(1)
		}
	}
}

// loadFile implements `mode ⊆ {"b","t"}`-style dispatch: a chunk
// beginning with the binary magic is undumped, anything else is parsed
// as source (spec section 6, `load`).
func loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	state := vmhost.NewState()
	if isBinaryChunk(data) {
		interner := lexer.NewMapInterner()
		p, err := marshal.Undump(data, path, interner.Intern)
		if err != nil {
			return err
		}
		state.Load(p, path)
	} else {
		p, err := parser.Parse(string(data), path, gc.NopCollector{})
		if err != nil {
			return err
		}
		state.Load(p, path)
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("%s: loaded, session %s\n", path, state.ID)
	}
	return nil
}

func isBinaryChunk(data []byte) bool {
	const magic = "\x1bTokudae"
	return len(data) >= len(magic) && string(data[:len(magic)]) == magic
}

// repl is a minimal read-compile-report loop: each line is parsed as a
// standalone chunk and reported syntactically valid or not — there is no
// execution without a VM dispatcher.
func repl() {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		_, err := parser.Parse(line, "=stdin", gc.NopCollector{})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Println("ok")
	}
}
