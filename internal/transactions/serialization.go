package transactions

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// Envelope is the wire-level TransactionCommandLog: a version tag, the
// command variant's fixed id, and an opaque body whose shape is dictated
// by (CommandID, Major, Minor).
type Envelope struct {
	CommandID CommandID       `json:"command_id"`
	Major     uint32          `json:"major"`
	Minor     uint32          `json:"minor"`
	Body      json.RawMessage `json:"body"`
}

type consumeBudgetBody_1_0 struct {
	BudgetKeyName string `json:"budget_key_name"`
	TimeBucket    uint64 `json:"time_bucket"`
	TokenCount    uint8  `json:"token_count"`
}

type consumeBudgetBody_1_1 struct {
	BudgetKeyName string `json:"budget_key_name"`
	TimeBucket    uint64 `json:"time_bucket"`
	TokenCount    uint8  `json:"token_count"`
	RequestIndex  *int   `json:"request_index,omitempty"`
}

type batchConsumeBudgetBody_1_0 struct {
	BudgetKeyName string        `json:"budget_key_name"`
	Intents       []BatchIntent `json:"intents"`
}

// SerializeConsumeBudget encodes cmd at the given version. Version 1.0
// drops RequestIndex; 1.1 carries it when present.
func SerializeConsumeBudget(cmd *ConsumeBudgetCommand, version Version) ([]byte, error) {
	var body any
	switch {
	case version.Major == 1 && version.Minor == 0:
		body = consumeBudgetBody_1_0{
			BudgetKeyName: cmd.BudgetKeyName(),
			TimeBucket:    cmd.TimeBucket(),
			TokenCount:    cmd.TokenCount(),
		}
	case version.Major == 1 && version.Minor == 1:
		body = consumeBudgetBody_1_1{
			BudgetKeyName: cmd.BudgetKeyName(),
			TimeBucket:    cmd.TimeBucket(),
			TokenCount:    cmd.TokenCount(),
			RequestIndex:  cmd.RequestIndex(),
		}
	default:
		return nil, pbserrors.InvalidCommandVersion
	}

	rawBody, err := json.Marshal(body)
	if err != nil {
		return nil, pbserrors.New(pbserrors.Internal, "marshal consume budget body: %v", err)
	}
	return json.Marshal(Envelope{
		CommandID: ConsumeBudgetCommandID,
		Major:     version.Major,
		Minor:     version.Minor,
		Body:      rawBody,
	})
}

// SerializeBatchConsumeBudget encodes cmd at version 1.0, the only
// version BatchConsumeBudget defines.
func SerializeBatchConsumeBudget(cmd *BatchConsumeBudgetCommand, version Version) ([]byte, error) {
	if version.Major != 1 || version.Minor != 0 {
		return nil, pbserrors.InvalidCommandVersion
	}
	rawBody, err := json.Marshal(batchConsumeBudgetBody_1_0{
		BudgetKeyName: cmd.BudgetKeyName(),
		Intents:       cmd.Intents(),
	})
	if err != nil {
		return nil, pbserrors.New(pbserrors.Internal, "marshal batch consume budget body: %v", err)
	}
	return json.Marshal(Envelope{
		CommandID: BatchConsumeBudgetCommandID,
		Major:     version.Major,
		Minor:     version.Minor,
		Body:      rawBody,
	})
}

// Deserialize parses a wire envelope back into a Command, rejecting
// unknown major/minor combinations with InvalidCommandVersion and unknown
// command ids with InvalidCommandType.
func Deserialize(transactionID uuid.UUID, data []byte, helper budget.ConsumptionHelper) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, pbserrors.New(pbserrors.InvalidCommandType, "malformed transaction command log: %v", err)
	}

	switch env.CommandID {
	case ConsumeBudgetCommandID:
		return deserializeConsumeBudget(transactionID, env, helper)
	case BatchConsumeBudgetCommandID:
		return deserializeBatchConsumeBudget(transactionID, env, helper)
	default:
		return nil, pbserrors.InvalidCommandType
	}
}

func deserializeConsumeBudget(transactionID uuid.UUID, env Envelope, helper budget.ConsumptionHelper) (Command, error) {
	switch {
	case env.Major == 1 && env.Minor == 0:
		var body consumeBudgetBody_1_0
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return nil, pbserrors.New(pbserrors.InvalidCommandType, "malformed consume budget 1.0 body: %v", err)
		}
		return NewConsumeBudgetCommand(transactionID, body.BudgetKeyName, body.TimeBucket, body.TokenCount, nil, helper), nil
	case env.Major == 1 && env.Minor == 1:
		var body consumeBudgetBody_1_1
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return nil, pbserrors.New(pbserrors.InvalidCommandType, "malformed consume budget 1.1 body: %v", err)
		}
		return NewConsumeBudgetCommand(transactionID, body.BudgetKeyName, body.TimeBucket, body.TokenCount, body.RequestIndex, helper), nil
	default:
		return nil, pbserrors.InvalidCommandVersion
	}
}

func deserializeBatchConsumeBudget(transactionID uuid.UUID, env Envelope, helper budget.ConsumptionHelper) (Command, error) {
	if env.Major != 1 || env.Minor != 0 {
		return nil, pbserrors.InvalidCommandVersion
	}
	var body batchConsumeBudgetBody_1_0
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return nil, pbserrors.New(pbserrors.InvalidCommandType, "malformed batch consume budget 1.0 body: %v", err)
	}
	return NewBatchConsumeBudgetCommand(transactionID, body.BudgetKeyName, body.Intents, helper), nil
}
