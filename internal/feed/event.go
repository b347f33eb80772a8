package feed

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/nestline/callsync/internal/callrecord"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
)

const (
	TableCalls    = "calls"
	TableMessages = "messages"
)

var envelopeValidator = validator.New()

// Envelope is the wire form of one change-feed event: (op, table, row).
// Rows are decoded into their per-table variant and validated before anything
// downstream of the store boundary sees them.
type Envelope struct {
	Op        string          `json:"op"    validate:"required,oneof=insert update"`
	Table     string          `json:"table" validate:"required,oneof=calls messages"`
	Row       json.RawMessage `json:"row"   validate:"required"`
	EmittedAt string          `json:"emitted_at"`
}

// CallChange is the typed variant of an Envelope carrying a calls row.
type CallChange struct {
	Op  string
	Row callrecord.CallAttempt
}

func DecodeEnvelope(msg []byte) (*Envelope, error) {
	var env Envelope

	err := json.Unmarshal(msg, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal change envelope: %w", err)
	}

	err = envelopeValidator.Struct(&env)
	if err != nil {
		return nil, fmt.Errorf("invalid change envelope: %w", err)
	}

	return &env, nil
}

// DecodeCallChange decodes and validates the calls-table row of env.
func DecodeCallChange(env *Envelope) (*CallChange, error) {
	if env.Table != TableCalls {
		return nil, fmt.Errorf("envelope table is %q, not %q", env.Table, TableCalls)
	}

	var row callrecord.CallAttempt

	err := json.Unmarshal(env.Row, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal calls row: %w", err)
	}

	err = envelopeValidator.Struct(&row)
	if err != nil {
		return nil, fmt.Errorf("invalid calls row: %w", err)
	}

	return &CallChange{Op: env.Op, Row: row}, nil
}
