package service

import (
	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

// HandlerDeps are the collaborators shared by every event handler.
type HandlerDeps struct {
	Store store.Store
	Blobs blob.Store
}

// payloadString pulls a string field out of an event payload, returning
// "" for absent or non-string values. Offline payloads are client-built
// and untrusted; handlers tolerate shape drift rather than fail on it.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// payloadInt64 pulls a numeric field, tolerating the float64 that
// encoding/json produces for all JSON numbers.
func payloadInt64(payload map[string]any, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
