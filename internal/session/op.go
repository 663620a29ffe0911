package session

import (
	"fuwachat/internal/ledger"
	"fuwachat/internal/model"
)

type opKind int

const (
	opAppend opKind = iota
	opEdit
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opEdit:
		return "edit"
	case opDelete:
		return "delete"
	default:
		return "append"
	}
}

type replayResult int

const (
	opApplied replayResult = iota
	opSatisfied
	opImpossible
)

// op is a local mutation not yet confirmed by the store.
type op struct {
	seq     uint64
	kind    opKind
	msg     model.Message
	id      string
	content string
}

func (o op) target() string {
	if o.kind == opAppend {
		return o.msg.ID
	}
	return o.id
}

// replay applies o to l. Operations already visible in l are satisfied.
func (o op) replay(l *ledger.Ledger) replayResult {
	if o.kind == opAppend {
		if !l.Restore(o.msg) {
			return opSatisfied
		}
		return opApplied
	}

	m, ok := l.Get(o.id)
	if !ok {
		return opImpossible
	}
	switch o.kind {
	case opEdit:
		if m.IsDeleted {
			return opImpossible
		}
		if m.IsEdited && m.Content == o.content {
			return opSatisfied
		}
	case opDelete:
		if m.IsDeleted {
			return opSatisfied
		}
	}
	if _, err := l.EditOrDelete(o.id, o.content); err != nil {
		return opImpossible
	}
	return opApplied
}
