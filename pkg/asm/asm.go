// Package asm assembles the compiler's textual output into a flat ROM
// image. It understands the small dialect the code generator emits:
// `def name equ value` symbol definitions, section directives, `name::`
// labels, and `db` byte lines.
package asm

import (
	"fmt"
	"strconv"
	"strings"
)

type Assembler struct {
	symbols map[string]int64  // def/equ constants
	labels  map[string]uint16 // label name -> ROM address
}

type parsedLine struct {
	lineNo   int
	label    string
	kind     lineKind
	name     string   // symbol name for defLine
	value    string   // symbol value for defLine
	operands []string // db operands
}

type lineKind int

const (
	emptyLine lineKind = iota
	defLine
	sectionLine
	dbLine
)

func NewAssembler() *Assembler {
	return &Assembler{
		symbols: make(map[string]int64),
		labels:  make(map[string]uint16),
	}
}

// Assemble runs both passes over src and returns the ROM image plus the
// address of every label.
func Assemble(src string) ([]byte, map[string]uint16, error) {
	return NewAssembler().Assemble(src)
}

func (a *Assembler) Assemble(src string) ([]byte, map[string]uint16, error) {
	lines := strings.Split(src, "\n")

	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, nil, err
		}
		parsed = append(parsed, p)
	}

	if err := a.pass1(parsed); err != nil {
		return nil, nil, err
	}
	rom, err := a.pass2(parsed)
	if err != nil {
		return nil, nil, err
	}
	return rom, a.labels, nil
}

// pass1 records every symbol and label address. A db line advances the
// address by one byte per operand.
func (a *Assembler) pass1(lines []parsedLine) error {
	var address uint32
	for _, p := range lines {
		if p.label != "" {
			if address > 0xFFFF {
				return fmt.Errorf("label %q on line %d points past addressable memory", p.label, p.lineNo)
			}
			if _, exists := a.labels[p.label]; exists {
				return fmt.Errorf("duplicate label %q on line %d", p.label, p.lineNo)
			}
			a.labels[p.label] = uint16(address)
		}

		switch p.kind {
		case defLine:
			if _, exists := a.symbols[p.name]; exists {
				return fmt.Errorf("duplicate symbol %q on line %d", p.name, p.lineNo)
			}
			v, err := parseNumber(p.value)
			if err != nil {
				return fmt.Errorf("bad value for symbol %q on line %d: %v", p.name, p.lineNo, err)
			}
			a.symbols[p.name] = v
		case dbLine:
			address += uint32(len(p.operands))
		}
	}
	return nil
}

// pass2 emits the ROM bytes, resolving operands against symbols and
// labels.
func (a *Assembler) pass2(lines []parsedLine) ([]byte, error) {
	var rom []byte
	for _, p := range lines {
		if p.kind != dbLine {
			continue
		}
		for _, operand := range p.operands {
			v, err := a.resolve(operand, p.lineNo)
			if err != nil {
				return nil, err
			}
			if v < -128 || v > 255 {
				return nil, fmt.Errorf("value %d does not fit in a byte on line %d", v, p.lineNo)
			}
			rom = append(rom, byte(v))
		}
	}
	return rom, nil
}

func (a *Assembler) resolve(operand string, lineNo int) (int64, error) {
	if v, err := parseNumber(operand); err == nil {
		return v, nil
	}
	if v, ok := a.symbols[operand]; ok {
		return v, nil
	}
	if v, ok := a.labels[operand]; ok {
		return int64(v), nil
	}
	return 0, fmt.Errorf("unknown symbol %q on line %d", operand, lineNo)
}

// parseLine splits one source line into its label, directive, and
// operands. The dialect has at most one label per line.
func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo, kind: emptyLine}

	line := stripComment(raw)
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return p, nil
	}

	// Labels only appear in column zero; instructions are indented.
	if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
		if name, ok := strings.CutSuffix(trimmed, "::"); ok {
			p.label = strings.TrimSpace(name)
			return p, nil
		}
		if name, ok := strings.CutSuffix(trimmed, ":"); ok {
			p.label = strings.TrimSpace(name)
			return p, nil
		}
	}

	fields := strings.Fields(trimmed)
	switch strings.ToLower(fields[0]) {
	case "def":
		// def <name> equ <value>
		if len(fields) != 4 || !strings.EqualFold(fields[2], "equ") {
			return p, fmt.Errorf("malformed def on line %d: %q", lineNo, trimmed)
		}
		p.kind = defLine
		p.name = fields[1]
		p.value = fields[3]
		return p, nil

	case "section":
		// Sections are a linker concern; a flat ROM ignores them.
		p.kind = sectionLine
		return p, nil

	case "db":
		p.kind = dbLine
		rest := strings.TrimSpace(trimmed[len("db"):])
		if rest == "" {
			return p, fmt.Errorf("db with no operands on line %d", lineNo)
		}
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty db operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
		return p, nil
	}

	return p, fmt.Errorf("unknown directive %q on line %d", fields[0], lineNo)
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

// parseNumber accepts the dialect's literal spellings: decimal, $hex, and
// Go-style 0x/0b prefixes.
func parseNumber(s string) (int64, error) {
	if strings.HasPrefix(s, "$") {
		return strconv.ParseInt(s[1:], 16, 64)
	}
	if strings.HasPrefix(s, "-$") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return -v, err
	}
	return strconv.ParseInt(s, 0, 64)
}
