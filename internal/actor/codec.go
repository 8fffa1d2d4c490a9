package actor

import "encoding/json"

// jsonCodec is the default Codec used when the host does not supply one.
// It round-trips the event payload as a JSON object into a generic map,
// which is sufficient for the in-memory and demonstration wiring; a real
// deployment would supply a Codec backed by a type-code registry.
type jsonCodec struct{}

func (jsonCodec) Encode(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// Decode is never called by the core: replay hands StoredEvent.Payload to
// the applier as raw bytes (see replayOne in recovery.go) so the applier
// controls its own unmarshaling. It's implemented here to satisfy Codec for
// hosts that do want to decode independently of replay.
func (jsonCodec) Decode(payload []byte) (interface{}, error) {
	var v map[string]interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
