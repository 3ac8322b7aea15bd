// Package queue moves send-missed jobs between the API (which enqueues) and
// the worker (which runs the batch dispatcher), over Kafka. Keying messages
// by purchase id keeps all batches for one purchase on one partition, so a
// single worker processes them in order.
package queue

import "encoding/json"

// DefaultTopic is the Kafka topic carrying send-missed jobs.
const DefaultTopic = "post_delivery.send_missed"

// SendMissedJob asks the worker to catch one purchase up on its missed
// posts, optionally restricted to one workflow.
type SendMissedJob struct {
	PurchaseID string `json:"purchase_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// Marshal encodes the job for the wire.
func (j SendMissedJob) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob decodes a job from a queue message.
func UnmarshalJob(data []byte) (SendMissedJob, error) {
	var j SendMissedJob
	err := json.Unmarshal(data, &j)
	return j, err
}
