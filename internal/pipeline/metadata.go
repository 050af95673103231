package pipeline

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type attemptError struct {
	Attempt int       `json:"attempt"`
	Stage   string    `json:"stage"`
	Class   string    `json:"class"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// mergeMetadata overlays patch on the job's diagnostic blob. The blob is never
// read back for control flow.
func mergeMetadata(raw datatypes.JSON, patch map[string]interface{}) datatypes.JSON {
	m := decodeMetadata(raw)
	for k, v := range patch {
		m[k] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return datatypes.JSON(b)
}

func appendAttemptError(raw datatypes.JSON, e attemptError) datatypes.JSON {
	m := decodeMetadata(raw)
	list, _ := m["attempt_errors"].([]interface{})
	m["attempt_errors"] = append(list, e)
	b, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return datatypes.JSON(b)
}

func decodeMetadata(raw datatypes.JSON) map[string]interface{} {
	m := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}
