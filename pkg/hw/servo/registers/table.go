// Package registers models the addressable control table of a servo:
// a fixed set of 1 or 2 byte registers with access modes and a stage of
// buffered writes applied by Commit.
package registers

import (
	"errors"
	"slices"

	"github.com/Manu343726/servoemu/pkg/utils"
)

var (
	ErrNoSuchAddress     = errors.New("no such address")
	ErrReadOnlyViolation = errors.New("read-only register")
	ErrAddressCollision  = errors.New("register address collision")
	ErrInvalidWidth      = errors.New("invalid register width")
	ErrEmptyAccess       = errors.New("empty access range")
)

// Entry is a register and its current (committed) value
type Entry struct {
	Descriptor
	Value uint16
}

// Byte returns the byte at the given offset inside the register, low byte first
func (e *Entry) Byte(offset int) byte {
	return byte(e.Value >> utils.Bits(offset))
}

// PendingWrite is a write staged by BufferedWrite
type PendingWrite struct {
	Address byte
	Data    []byte
}

// WriteHook observes committed writes to read-write registers. It runs
// synchronously, once per touched register, after the value is stored.
type WriteHook func(address byte, value uint16)

// Table is the control table of one servo. It is not safe for concurrent use.
type Table struct {
	entries map[byte]*Entry
	// register owning each mapped byte address
	owners  map[byte]*Entry
	pending []PendingWrite
	hook    WriteHook
}

// NewTable builds a table from a layout. Registers must not overlap.
func NewTable(layout []Descriptor) (*Table, error) {
	t := &Table{
		entries: make(map[byte]*Entry, len(layout)),
		owners:  make(map[byte]*Entry, 2*len(layout)),
	}

	for _, descriptor := range layout {
		if descriptor.Width != 1 && descriptor.Width != 2 {
			return nil, utils.MakeError(ErrInvalidWidth, "register '%v' at %d has width %d", descriptor.Name, descriptor.Address, descriptor.Width)
		}

		entry := &Entry{
			Descriptor: descriptor,
			Value:      descriptor.Default & utils.AllOnes[uint16](utils.Bits(descriptor.Width)),
		}

		for offset := 0; offset < descriptor.Width; offset++ {
			address := int(descriptor.Address) + offset
			if address > 0xFF {
				return nil, utils.MakeError(ErrNoSuchAddress, "register '%v' extends past address 255", descriptor.Name)
			}
			if owner, taken := t.owners[byte(address)]; taken {
				return nil, utils.MakeError(ErrAddressCollision, "'%v' and '%v' both map address %d", owner.Name, descriptor.Name, address)
			}
			t.owners[byte(address)] = entry
		}

		t.entries[descriptor.Address] = entry
	}

	return t, nil
}

// OnWrite installs the hook called after committed writes
func (t *Table) OnWrite(hook WriteHook) {
	t.hook = hook
}

func (t *Table) entry(address byte) (*Entry, error) {
	entry, ok := t.entries[address]
	if !ok {
		return nil, utils.MakeError(ErrNoSuchAddress, "no register starts at address %d", address)
	}
	return entry, nil
}

// Read returns the committed value of the register starting at address
func (t *Table) Read(address byte) (uint16, error) {
	entry, err := t.entry(address)
	if err != nil {
		return 0, err
	}
	return entry.Value, nil
}

// Write stores a value into the read-write register starting at address.
// Bits above the register width are dropped.
func (t *Table) Write(address byte, value uint16) error {
	entry, err := t.entry(address)
	if err != nil {
		return err
	}
	if entry.Access != ReadWrite {
		return utils.MakeError(ErrReadOnlyViolation, "register '%v' at %d", entry.Name, address)
	}

	return t.WriteRange(address, utils.SplitLE(value, entry.Width))
}

// Store sets a register regardless of its access mode, without notifying the
// write hook. The servo uses it to publish its own state (position, speed...).
func (t *Table) Store(address byte, value uint16) error {
	entry, err := t.entry(address)
	if err != nil {
		return err
	}

	entry.Value = value & utils.AllOnes[uint16](utils.Bits(entry.Width))
	return nil
}

// ReadRange returns length bytes starting at address. Every byte in the
// range must belong to a register.
func (t *Table) ReadRange(address byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, utils.MakeError(ErrEmptyAccess, "read of %d bytes at %d", length, address)
	}

	data := make([]byte, length)

	for i := range data {
		current := int(address) + i
		owner, ok := t.owners[byte(current)]
		if current > 0xFF || !ok {
			return nil, utils.MakeError(ErrNoSuchAddress, "address %d is not mapped (read of %d bytes at %d)", current, length, address)
		}
		data[i] = owner.Byte(current - int(owner.Address))
	}

	return data, nil
}

// WriteRange writes data starting at address. The range must only cover
// read-write registers; otherwise nothing is written.
func (t *Table) WriteRange(address byte, data []byte) error {
	if len(data) == 0 {
		return utils.MakeError(ErrEmptyAccess, "write of 0 bytes at %d", address)
	}

	updates := make(map[*Entry]uint16)

	for i, b := range data {
		current := int(address) + i
		owner, ok := t.owners[byte(current)]
		if current > 0xFF || !ok {
			return utils.MakeError(ErrNoSuchAddress, "address %d is not mapped (write of %d bytes at %d)", current, len(data), address)
		}
		if owner.Access != ReadWrite {
			return utils.MakeError(ErrReadOnlyViolation, "register '%v' at %d (write of %d bytes at %d)", owner.Name, owner.Address, len(data), address)
		}

		value, seen := updates[owner]
		if !seen {
			value = owner.Value
		}
		updates[owner] = utils.SetByteLE(value, current-int(owner.Address), b)
	}

	touched := utils.Keys(updates)
	slices.SortFunc(touched, func(a, b *Entry) int { return int(a.Address) - int(b.Address) })

	for _, entry := range touched {
		entry.Value = updates[entry]
	}

	if t.hook != nil {
		for _, entry := range touched {
			t.hook(entry.Address, entry.Value)
		}
	}

	return nil
}

// BufferedWrite stages a write. Staged writes are invisible to reads until Commit.
func (t *Table) BufferedWrite(address byte, data []byte) {
	t.pending = append(t.pending, PendingWrite{
		Address: address,
		Data:    append([]byte(nil), data...),
	})
}

// Pending returns the staged writes in staging order
func (t *Table) Pending() []PendingWrite {
	return slices.Clone(t.pending)
}

// HasPending reports whether any write is staged
func (t *Table) HasPending() bool {
	return len(t.pending) > 0
}

// Commit applies every staged write in staging order and clears the stage.
// Staged writes that violate the table rules are skipped; the returned error
// joins their errors. Committing an empty stage is a no-op.
func (t *Table) Commit() error {
	pending := t.pending
	t.pending = nil

	var errs []error

	for _, write := range pending {
		if err := t.WriteRange(write.Address, write.Data); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Entries returns a snapshot of every register sorted by address
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.entries))

	for _, address := range utils.SortedKeys(t.entries) {
		entries = append(entries, *t.entries[address])
	}

	return entries
}
