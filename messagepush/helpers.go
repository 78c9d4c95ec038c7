package messagepush

import (
	"context"
	"encoding/json"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/pkg/errors"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/utils"
)

func encodeMessage(msg interface{}) (string, error) {
	if s, ok := msg.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("message cannot be encoded to json: %v", err)
		return "", errors.Wrap(err, "messagepush: encoding message")
	}
	return string(b), nil
}

// eventMessages wraps every event in a PushMessage. The request ID is the trace ID of ctx when it has one.
func eventMessages(ctx context.Context, events []models.Event) ([]*PushMessage, error) {
	requestID := utils.GetTraceID(ctx)
	if requestID == "" {
		requestID = utils.GenerateTraceID()
	}
	msgs := make([]*PushMessage, 0, len(events))
	for i := range events {
		b, err := json.Marshal(&events[i])
		if err != nil {
			return nil, errors.Wrap(err, "json marshal error")
		}
		msgs = append(msgs, &PushMessage{
			BizCode:     BizCodeContractEvent,
			EventType:   string(events[i].Type),
			Account:     events[i].Account.Hex(),
			RequestID:   requestID,
			PushContent: string(b),
			Time:        events[i].Timestamp.UnixMilli(),
		})
	}
	return msgs, nil
}
