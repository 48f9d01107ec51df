package signalr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"

	"livetiming/internal/state"
)

// maxInflatedSize caps a single decompressed topic payload
const maxInflatedSize = 32 << 20

// Decoder turns raw upstream frames into normalized field updates
type Decoder struct {
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Decode classifies a frame and extracts its updates.
//
// An undecodable frame returns an error wrapping ErrDecode. A single undecodable field is
// logged and left out; the remaining fields of the frame are still returned.
func (d *Decoder) Decode(data []byte) (state.Frame, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return state.Frame{}, fmt.Errorf("%w: frame: %w", ErrDecode, err)
	}
	if len(top) == 0 {
		return state.Frame{Empty: true}, nil
	}

	if rawInvocations, ok := top["M"]; ok {
		var invocations []json.RawMessage
		if err := json.Unmarshal(rawInvocations, &invocations); err == nil {
			return state.Frame{Updates: d.decodeFeed(invocations)}, nil
		}
	}

	if rawResult, ok := top["R"]; ok && resultID(top["I"]) == snapshotResultID {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawResult, &fields); err == nil && len(fields) > 0 {
			return state.Frame{Snapshot: true, Updates: d.decodeSnapshot(fields)}, nil
		}
	}

	// keep-alive cursors, group tokens and acks carry nothing to merge
	return state.Frame{}, nil
}

func (d *Decoder) decodeFeed(invocations []json.RawMessage) []state.FieldUpdate {
	updates := make([]state.FieldUpdate, 0, len(invocations))
	for _, raw := range invocations {
		var inv invocation
		if err := json.Unmarshal(raw, &inv); err != nil {
			d.logger.Warn("invocation_decode_failed", "error", err.Error())
			continue
		}
		if inv.Method != feedMethod || len(inv.Arguments) < 2 {
			continue
		}

		var name string
		if err := json.Unmarshal(inv.Arguments[0], &name); err != nil {
			d.logger.Warn("feed_topic_decode_failed", "error", err.Error())
			continue
		}
		update, err := DecodeField(name, inv.Arguments[1])
		if err != nil {
			d.logger.Warn("field_decode_failed", "field", name, "error", err.Error())
			continue
		}
		updates = append(updates, update)
	}
	return updates
}

func (d *Decoder) decodeSnapshot(fields map[string]json.RawMessage) []state.FieldUpdate {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	// compressed twins sort after their plain name, so the decoded payload wins
	sort.Strings(names)

	updates := make([]state.FieldUpdate, 0, len(names))
	for _, name := range names {
		update, err := DecodeField(name, fields[name])
		if err != nil {
			d.logger.Warn("field_decode_failed", "field", name, "snapshot", true, "error", err.Error())
			continue
		}
		updates = append(updates, update)
	}
	return updates
}

// DecodeField converts one topic payload into a FieldUpdate, inflating compressed topics
// and storing them under the name without the compression suffix.
func DecodeField(name string, raw json.RawMessage) (state.FieldUpdate, error) {
	if !strings.HasSuffix(name, CompressedSuffix) {
		value, err := state.ParseJSON(raw)
		if err != nil {
			return state.FieldUpdate{}, fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
		}
		return state.FieldUpdate{Name: name, Value: value}, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return state.FieldUpdate{}, fmt.Errorf("%w: %s: compressed payload is not a string: %w", ErrDecode, name, err)
	}
	inflated, err := Inflate(encoded)
	if err != nil {
		return state.FieldUpdate{}, fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	value, err := state.ParseJSON(inflated)
	if err != nil {
		return state.FieldUpdate{}, fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	return state.FieldUpdate{
		Name:          strings.TrimSuffix(name, CompressedSuffix),
		Value:         value,
		WasCompressed: true,
	}, nil
}

// Inflate reverses the upstream encoding of compressed topics: base64 over raw deflate
func Inflate(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()

	inflated, err := io.ReadAll(io.LimitReader(reader, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(inflated) > maxInflatedSize {
		return nil, fmt.Errorf("inflate: payload exceeds %d bytes", maxInflatedSize)
	}
	return inflated, nil
}
