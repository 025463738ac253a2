package log

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxPayload bounds how much of an MQTT payload ends up in a log line.
const maxPayload = 256

// toFields converts logr-style arguments into zap fields. A bare error or
// zap.Field is taken as-is; everything else is read as key/value pairs.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(v))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i += 2

		name, ok := key.(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("invalid_key_%d", i/2), map[string]any{
				"key":   key,
				"value": val,
			}))
			continue
		}
		fields = append(fields, field(name, val))
	}

	return fields
}

// field renders payload bytes as text when they are printable, since most
// device API payloads are JSON.
func field(key string, val any) zap.Field {
	var raw []byte
	switch v := val.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return zap.Any(key, val)
	}

	if !utf8.Valid(raw) {
		return zap.Binary(key, raw)
	}
	if len(raw) > maxPayload {
		return zap.String(key, string(raw[:maxPayload])+"...")
	}
	return zap.String(key, string(raw))
}
