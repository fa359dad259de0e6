package alarms

import (
	"errors"
	"sort"
	"time"
)

// WordBits is the width of a packed status word.
const WordBits = 16

// Priority classifies an alarm definition.
type Priority string

const (
	PriorityPrio1   Priority = "prio1"
	PriorityPrio2   Priority = "prio2"
	PriorityPrio3   Priority = "prio3"
	PriorityWarning Priority = "warning"
	PriorityInfo    Priority = "info"
)

// Valid returns true when the priority is supported.
func (p Priority) Valid() bool {
	switch p {
	case PriorityPrio1, PriorityPrio2, PriorityPrio3, PriorityWarning, PriorityInfo:
		return true
	default:
		return false
	}
}

// Rank orders priorities; higher is more severe.
func (p Priority) Rank() int {
	switch p {
	case PriorityPrio1:
		return 5
	case PriorityPrio2:
		return 4
	case PriorityPrio3:
		return 3
	case PriorityWarning:
		return 2
	case PriorityInfo:
		return 1
	default:
		return 0
	}
}

// FooterLevel maps the highest active priority to the UI footer level.
func FooterLevel(highest Priority) int {
	switch highest {
	case PriorityPrio1, PriorityPrio2:
		return 3
	case PriorityWarning:
		return 2
	default:
		return 1
	}
}

// Definition maps one bit of a packed status word to an alarm.
type Definition struct {
	ID        string   `json:"id"`
	ConfigID  string   `json:"config_id"`
	BitNumber int      `json:"bit_number"`
	TextKey   string   `json:"text_key"`
	Priority  Priority `json:"priority"`
	Enabled   bool     `json:"enabled"`
}

// Validate checks definition invariants.
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.New("alarm definition: empty id")
	}
	if d.ConfigID == "" {
		return errors.New("alarm definition: empty config id")
	}
	if d.BitNumber < 0 || d.BitNumber >= WordBits {
		return errors.New("alarm definition: bit number out of range")
	}
	if !d.Priority.Valid() {
		return errors.New("alarm definition: invalid priority")
	}
	return nil
}

// Source groups the enabled definitions of one packed-word channel,
// keyed by bit number. Sources are rebuilt wholesale on configuration
// reload and never mutated in place.
type Source struct {
	Identifier  string
	Definitions map[int]Definition
}

// BitAt returns the boolean state of one bit in a packed word.
func BitAt(value int64, bit int) bool {
	if bit < 0 || bit >= WordBits {
		return false
	}
	return value>>uint(bit)&1 == 1
}

// ActiveAlarm is a currently-raised alarm.
type ActiveAlarm struct {
	Definition  Definition `json:"definition"`
	Identifier  string     `json:"identifier"`
	ActivatedAt time.Time  `json:"activated_at"`
}

// SortActive orders alarms by priority descending, then most recent first.
func SortActive(list []ActiveAlarm) {
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := list[i].Definition.Priority.Rank(), list[j].Definition.Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return list[i].ActivatedAt.After(list[j].ActivatedAt)
	})
}

// HighestPriority returns the most severe priority among active alarms.
func HighestPriority(list []ActiveAlarm) Priority {
	var highest Priority
	for _, alarm := range list {
		if alarm.Definition.Priority.Rank() > highest.Rank() {
			highest = alarm.Definition.Priority
		}
	}
	return highest
}
