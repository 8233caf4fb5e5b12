package process

import "github.com/fishmodel/asa/partition"

// Null is a no-op process, used as an explicit placeholder in a
// calendar's process order (spec.md §3 names it among the process
// variants).
type Null struct {
	Label_ string
}

func (n *Null) Label() string       { return n.Label_ }
func (n *Null) Type() Type           { return Other }
func (n *Null) Structure() Structure { return AgeStructure }
func (n *Null) Validate() error      { return nil }
func (n *Null) Build() error         { return nil }
func (n *Null) Reset()               {}
func (n *Null) Execute(p *partition.Partition, ctx Context) error { return nil }
func (n *Null) Clone() Process                                    { nn := *n; return &nn }
