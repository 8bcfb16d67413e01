// Command evsc compiles script source to assembler text, and can
// optionally assemble the result into a flat ROM image or execute one of
// its scripts in the bundled interpreter.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evsc/pkg/asm"
	"evsc/pkg/compiler"
	"evsc/pkg/ident"
	"evsc/pkg/vm"
)

func main() {
	output := flag.String("o", "", "output assembly file (default: input with .asm extension)")
	reportUsage := flag.Bool("report-usage", false, "print per-script frame usage")
	romPath := flag.String("rom", "", "also assemble the output into a flat ROM image at this path")
	runScript := flag.String("run", "", "assemble and execute the named script")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input file>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	in := ident.NewInterner()
	rep := compiler.NewReporter(os.Stderr, in)

	roots, err := compiler.LoadProgram(input, in, rep)
	if err != nil {
		rep.Report(err)
		os.Exit(1)
	}
	out, usage, err := compiler.Compile(roots, in, rep)
	if err != nil {
		rep.Report(err)
		os.Exit(1)
	}

	outPath := *output
	if outPath == "" {
		outPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".asm"
	}
	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		rep.Report(err)
		os.Exit(1)
	}

	if *reportUsage {
		for _, u := range usage {
			fmt.Printf("%s: %d bytes of frame space\n", u.Name, u.Bytes)
		}
	}

	if *romPath == "" && *runScript == "" {
		return
	}

	rom, labels, err := asm.Assemble(out)
	if err != nil {
		rep.Report(err)
		os.Exit(1)
	}
	if *romPath != "" {
		if err := os.WriteFile(*romPath, rom, 0o644); err != nil {
			rep.Report(err)
			os.Exit(1)
		}
	}
	if *runScript != "" {
		entry, ok := labels[*runScript]
		if !ok {
			rep.Report(fmt.Errorf("script %s not found in %s", *runScript, input))
			os.Exit(1)
		}
		m := vm.NewMachine(rom)
		m.Reset(entry)
		if err := m.Run(); err != nil {
			rep.Report(fmt.Errorf("script %s: %v", *runScript, err))
			os.Exit(1)
		}
		fmt.Printf("%s: halted normally\n", *runScript)
	}
}
