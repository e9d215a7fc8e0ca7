package service

import "fmt"

// Entry is a provider record together with its QoS attributes. Entries are
// replaced wholesale when the same record is inserted again.
type Entry struct {
	Record Descriptor
	QoS    []string
}

// Validate requires a fully specified record.
func (e Entry) Validate() error {
	if err := e.Record.Validate(); err != nil {
		return err
	}
	if !e.Record.FullySpecified() {
		return fmt.Errorf("%w: entry record %s is not fully specified", ErrInvalidDescriptor, e.Record)
	}
	return nil
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	return Entry{
		Record: e.Record.Clone(),
		QoS:    append([]string(nil), e.QoS...),
	}
}
