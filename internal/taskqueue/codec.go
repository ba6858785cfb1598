package taskqueue

import "encoding/json"

// EncodeTask serializes a Task for queue backends that store opaque
// bytes (Redis, SQLite).
func EncodeTask(t Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask deserializes a Task produced by EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
