package messagepush

const (
	// BizCodeContractEvent tags the messages carrying contract events
	BizCodeContractEvent = "batch_deposit_event"
)

// PushMessage is the envelope of every message sent to the topic
type PushMessage struct {
	BizCode     string `json:"bizCode"`
	EventType   string `json:"eventType"`
	Account     string `json:"account"`
	RequestID   string `json:"requestId"`
	PushContent string `json:"pushContent"`
	Time        int64  `json:"time"`
}
