// Package vm executes assembled script bytecode. The instruction set is
// the compiler's built-in environment: ids 0..21, operating on a 256-byte
// variable frame.
package vm

import (
	"errors"
	"fmt"
)

// Base instruction set opcode ids.
const (
	OpReturn = 0
	OpYield  = 1
	OpPut    = 2
	OpMov    = 3
	OpAdd    = 4
	OpSub    = 5
	OpMul    = 6
	OpDiv    = 7
	OpMod    = 8
	OpShl    = 9
	OpShr    = 10
	OpBand   = 11
	OpBxor   = 12
	OpBor    = 13
	OpEqu    = 14
	OpNequ   = 15
	OpLt     = 16
	OpGt     = 17
	OpLte    = 18
	OpGte    = 19
	OpLand   = 20
	OpLor    = 21
)

// Status reports why a step or run stopped.
type Status int

const (
	StatusRunning Status = iota
	StatusYielded
	StatusHalted
)

var ErrDivideByZero = errors.New("division by zero")

// Machine runs one script against a ROM image. The frame is the script's
// 256-byte scratch space; a put or mov writes it, every arithmetic opcode
// reads and writes it.
type Machine struct {
	rom    []byte
	pc     uint16
	frame  [256]byte
	halted bool
}

func NewMachine(rom []byte) *Machine {
	return &Machine{rom: rom}
}

// Reset rewinds the machine to entry with a cleared frame.
func (m *Machine) Reset(entry uint16) {
	m.pc = entry
	m.frame = [256]byte{}
	m.halted = false
}

// PC returns the current program counter.
func (m *Machine) PC() uint16 { return m.pc }

// Peek reads one frame byte, for inspecting script results.
func (m *Machine) Peek(addr uint8) byte { return m.frame[addr] }

// Poke writes one frame byte, for passing values into a script.
func (m *Machine) Poke(addr uint8, v byte) { m.frame[addr] = v }

func (m *Machine) fetch() (byte, error) {
	if int(m.pc) >= len(m.rom) {
		return 0, fmt.Errorf("program counter %d past end of ROM", m.pc)
	}
	b := m.rom[m.pc]
	m.pc++
	return b, nil
}

// Step executes a single instruction.
func (m *Machine) Step() (Status, error) {
	if m.halted {
		return StatusHalted, nil
	}
	op, err := m.fetch()
	if err != nil {
		return StatusHalted, err
	}

	switch op {
	case OpReturn:
		m.halted = true
		return StatusHalted, nil

	case OpYield:
		return StatusYielded, nil

	case OpPut, OpMov:
		dest, err := m.fetch()
		if err != nil {
			return StatusHalted, err
		}
		src, err := m.fetch()
		if err != nil {
			return StatusHalted, err
		}
		if op == OpPut {
			m.frame[dest] = src
		} else {
			m.frame[dest] = m.frame[src]
		}
		return StatusRunning, nil
	}

	if op > OpLor {
		return StatusHalted, fmt.Errorf("illegal opcode %d at address %d", op, m.pc-1)
	}

	dest, err := m.fetch()
	if err != nil {
		return StatusHalted, err
	}
	l, err := m.fetch()
	if err != nil {
		return StatusHalted, err
	}
	r, err := m.fetch()
	if err != nil {
		return StatusHalted, err
	}
	v, err := binary(op, m.frame[l], m.frame[r])
	if err != nil {
		return StatusHalted, err
	}
	m.frame[dest] = v
	return StatusRunning, nil
}

// Run executes until the script halts, resuming through yields.
func (m *Machine) Run() error {
	for {
		status, err := m.Step()
		if err != nil {
			return err
		}
		if status == StatusHalted {
			return nil
		}
	}
}

// RunToYield executes until the script yields or halts.
func (m *Machine) RunToYield() (Status, error) {
	for {
		status, err := m.Step()
		if err != nil {
			return status, err
		}
		if status != StatusRunning {
			return status, nil
		}
	}
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func binary(op, l, r byte) (byte, error) {
	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l % r, nil
	case OpShl:
		return l << r, nil
	case OpShr:
		return l >> r, nil
	case OpBand:
		return l & r, nil
	case OpBxor:
		return l ^ r, nil
	case OpBor:
		return l | r, nil
	case OpEqu:
		return b2u(l == r), nil
	case OpNequ:
		return b2u(l != r), nil
	case OpLt:
		return b2u(l < r), nil
	case OpGt:
		return b2u(l > r), nil
	case OpLte:
		return b2u(l <= r), nil
	case OpGte:
		return b2u(l >= r), nil
	case OpLand:
		return b2u(l != 0 && r != 0), nil
	case OpLor:
		return b2u(l != 0 || r != 0), nil
	}
	panic(fmt.Sprintf("not a binary opcode: %d", op))
}
