package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"waba-gateway/internal/models"
	"waba-gateway/internal/taskqueue"
)

// TaskTypeSendMessage is the task type for deferred sends.
const TaskTypeSendMessage = "send_message"

// SendMessageParams is the task parameter shape for a deferred send.
type SendMessageParams struct {
	BusinessID string  `json:"business_id"`
	To         string  `json:"to"`
	Payload    Payload `json:"payload"`
}

// SendMessageTaskHandler adapts the dispatcher to the task queue. The
// dispatcher reports provider failures as results, but a deferred send
// wants another attempt, so anything short of status=sent becomes an error
// that triggers the queue's backoff.
func SendMessageTaskHandler(d *Dispatcher) taskqueue.Handler {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var params SendMessageParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("invalid send_message parameters: %w", err)
		}

		record, err := d.Send(ctx, params.BusinessID, params.To, params.Payload)
		if err != nil {
			return nil, err
		}
		if record.Status != models.MessageStatusSent {
			return nil, fmt.Errorf("send to %s ended with status %s: %s", params.To, record.Status, record.ErrorMessage)
		}

		return json.Marshal(record)
	}
}
