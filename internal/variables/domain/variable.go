package variables

import (
	"errors"
	"time"
)

// Variable is a named UI state value. Values are stored textually;
// consumers decide how to interpret them.
type Variable struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Visible   bool      `json:"visible"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks variable invariants.
func (v Variable) Validate() error {
	if v.Name == "" {
		return errors.New("variable: empty name")
	}
	return nil
}

// LoggingTopic is a data channel whose recording can be switched by rules.
type LoggingTopic struct {
	Topic     string    `json:"topic"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
