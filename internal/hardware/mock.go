package hardware

import (
	"context"
	"fmt"
	"sync"
)

// WriteOp is one journaled register write on the mock bus.
type WriteOp struct {
	Reg Register
	Val byte
}

// Mock is a thread-safe in-memory register bus for testing and development.
// Every write is journaled so tests can assert on exact register traffic.
type Mock struct {
	mu        sync.Mutex
	regs      map[Register]byte
	journal   []WriteOp
	reads     int
	failWrite bool
	failRead  bool
	failAt    map[Register]bool
	onWrite   func(reg Register, val byte)
}

// NewMock creates a mock bus with all registers reading zero.
func NewMock() *Mock {
	return &Mock{
		regs:   make(map[Register]byte),
		failAt: make(map[Register]bool),
	}
}

// SetFailWrite configures the mock to fail all write operations.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// SetFailRead configures the mock to fail all read operations.
func (m *Mock) SetFailRead(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fail
}

// FailWriteAt makes writes to reg fail until cleared with fail=false.
func (m *Mock) FailWriteAt(reg Register, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fail {
		m.failAt[reg] = true
	} else {
		delete(m.failAt, reg)
	}
}

// OnWrite installs a hook called (without the mock lock held) after every
// successful write. Tests use it to emulate hardware side effects.
func (m *Mock) OnWrite(fn func(reg Register, val byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = fn
}

func (m *Mock) Read(ctx context.Context, reg Register) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return 0, ErrHardware("mock: read failure configured")
	}
	m.reads++
	return m.regs[reg], nil
}

func (m *Mock) Write(ctx context.Context, reg Register, val byte) error {
	m.mu.Lock()
	if m.failWrite || m.failAt[reg] {
		m.mu.Unlock()
		return ErrHardware(fmt.Sprintf("mock: write failure configured (reg 0x%03x)", reg))
	}
	m.regs[reg] = val
	m.journal = append(m.journal, WriteOp{Reg: reg, Val: val})
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(reg, val)
	}
	return nil
}

// GetReg returns a register value for testing purposes.
func (m *Mock) GetReg(reg Register) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// SetReg presets a register as if the hardware had changed it. The write is
// not journaled.
func (m *Mock) SetReg(reg Register, val byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = val
}

// Writes returns a copy of the write journal.
func (m *Mock) Writes() []WriteOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteOp, len(m.journal))
	copy(out, m.journal)
	return out
}

// WriteCount returns the number of journaled writes.
func (m *Mock) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

// ReadCount returns the number of successful bus reads.
func (m *Mock) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// ResetJournal clears the write journal and read counter.
func (m *Mock) ResetJournal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = nil
	m.reads = 0
}
