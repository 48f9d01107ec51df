package signalr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetiming/internal/state"
)

// deflate produces the upstream encoding of a compressed topic
func deflate(t testing.TB, payload string) string {
	t.Helper()
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = writer.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func encodeJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func feedFrame(t testing.TB, args ...[]any) []byte {
	t.Helper()
	invocations := make([]map[string]any, 0, len(args))
	for _, a := range args {
		invocations = append(invocations, map[string]any{"H": "Streaming", "M": "feed", "A": a})
	}
	return encodeJSON(t, map[string]any{"C": "d-1", "M": invocations})
}

func valueJSON(t *testing.T, v state.Value) string {
	t.Helper()
	data, err := v.MarshalJSON()
	require.NoError(t, err)
	return string(data)
}

func TestDecoder_EmptyFrame(t *testing.T) {
	frame, err := NewDecoder(nil).Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, frame.Empty)
	assert.Empty(t, frame.Updates)
}

func TestDecoder_IncrementalFeed(t *testing.T) {
	data := encodeJSON(t, map[string]any{
		"C": "d-5",
		"M": []any{
			map[string]any{"H": "Streaming", "M": "feed", "A": []any{"TrackStatus", map[string]any{"Status": "2", "Message": "Yellow"}, "2026-05-24T13:01:00Z"}},
			map[string]any{"H": "Streaming", "M": "somethingElse", "A": []any{"Ignored", 1}},
			map[string]any{"H": "Streaming", "M": "feed", "A": []any{"LapCount", map[string]any{"CurrentLap": 7}}},
			map[string]any{"H": "Streaming", "M": "feed", "A": []any{"TooShort"}},
		},
	})

	frame, err := NewDecoder(nil).Decode(data)
	require.NoError(t, err)
	assert.False(t, frame.Empty)
	assert.False(t, frame.Snapshot)
	require.Len(t, frame.Updates, 2)

	assert.Equal(t, "TrackStatus", frame.Updates[0].Name)
	assert.Equal(t, `{"Message":"Yellow","Status":"2"}`, valueJSON(t, frame.Updates[0].Value))
	assert.Equal(t, "LapCount", frame.Updates[1].Name)
	assert.Equal(t, `{"CurrentLap":7}`, valueJSON(t, frame.Updates[1].Value))
}

func TestDecoder_CompressedFieldRoundTrip(t *testing.T) {
	plain := `{"Entries":[{"Utc":"2026-05-24T13:01:00.123Z","Cars":{"1":{"Channels":{"0":11050,"2":287,"3":7}}}}]}`
	data := feedFrame(t, []any{"CarData.z", deflate(t, plain), "2026-05-24T13:01:00Z"})

	frame, err := NewDecoder(nil).Decode(data)
	require.NoError(t, err)
	require.Len(t, frame.Updates, 1)

	update := frame.Updates[0]
	assert.Equal(t, "CarData", update.Name)
	assert.True(t, update.WasCompressed)
	assert.True(t, update.Value.Equal(state.MustParseJSON(plain)))
}

func TestDecoder_BadCompressedFieldDroppedOthersKept(t *testing.T) {
	data := feedFrame(t,
		[]any{"Position.z", "not base64 !!"},
		[]any{"WeatherData", map[string]any{"AirTemp": "22.1"}},
		[]any{"CarData.z", 42},
	)

	frame, err := NewDecoder(nil).Decode(data)
	require.NoError(t, err)
	require.Len(t, frame.Updates, 1)
	assert.Equal(t, "WeatherData", frame.Updates[0].Name)
}

func TestDecoder_Snapshot(t *testing.T) {
	position := `{"Position":[{"Timestamp":"2026-05-24T13:00:00Z","Entries":{"1":{"Status":"OnTrack","X":1,"Y":2,"Z":3}}}]}`
	data := encodeJSON(t, map[string]any{
		"R": map[string]any{
			"Heartbeat":   map[string]any{"Utc": "2026-05-24T13:00:00Z"},
			"SessionInfo": map[string]any{"Name": "Race"},
			"Position.z":  deflate(t, position),
		},
		"I": "1",
	})

	frame, err := NewDecoder(nil).Decode(data)
	require.NoError(t, err)
	assert.True(t, frame.Snapshot)
	require.Len(t, frame.Updates, 3)

	names := map[string]state.FieldUpdate{}
	for _, u := range frame.Updates {
		names[u.Name] = u
	}
	assert.Contains(t, names, "Heartbeat")
	assert.Contains(t, names, "SessionInfo")
	require.Contains(t, names, "Position")
	assert.NotContains(t, names, "Position.z")
	assert.True(t, names["Position"].Value.Equal(state.MustParseJSON(position)))
}

func TestDecoder_ResultForOtherInvocationIgnored(t *testing.T) {
	frame, err := NewDecoder(nil).Decode([]byte(`{"R":{"SessionInfo":{"Name":"Race"}},"I":"2"}`))
	require.NoError(t, err)
	assert.False(t, frame.Empty)
	assert.False(t, frame.Snapshot)
	assert.Empty(t, frame.Updates)
}

func TestDecoder_NumericResultID(t *testing.T) {
	frame, err := NewDecoder(nil).Decode([]byte(`{"R":{"LapCount":{"CurrentLap":1}},"I":1}`))
	require.NoError(t, err)
	assert.True(t, frame.Snapshot)
	assert.Len(t, frame.Updates, 1)
}

func TestDecoder_KeepAliveFrames(t *testing.T) {
	for _, raw := range []string{`{"C":"d-9","M":[]}`, `{"S":1,"M":[]}`, `{"R":{},"I":"1"}`} {
		frame, err := NewDecoder(nil).Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.False(t, frame.Empty, raw)
		assert.Empty(t, frame.Updates, raw)
	}
}

func TestDecoder_MalformedFrame(t *testing.T) {
	_, err := NewDecoder(nil).Decode([]byte(`{"M":[`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = NewDecoder(nil).Decode([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeField(t *testing.T) {
	update, err := DecodeField("SessionStatus", json.RawMessage(`{"Status":"Started"}`))
	require.NoError(t, err)
	assert.Equal(t, "SessionStatus", update.Name)
	assert.False(t, update.WasCompressed)

	_, err = DecodeField("CarData.z", json.RawMessage(`"`+base64.StdEncoding.EncodeToString([]byte("plain"))+`"`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeField("Position.z", json.RawMessage(`"`+deflate(t, `{"broken":`)+`"`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestInflate(t *testing.T) {
	inflated, err := Inflate(deflate(t, `{"a":[1,2,3]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,2,3]}`, string(inflated))

	_, err = Inflate("%%%")
	assert.Error(t, err)
}
