package framing

import "encoding/json"

// WireKind discriminates which of the five top-level wire types an Envelope
// carries.
type WireKind string

const (
	WireMessage           WireKind = "message"
	WireReport            WireKind = "report"
	WireAggregatedReport  WireKind = "aggregated_report"
	WireBarycentricReport WireKind = "barycentric_report"
	WireSignal            WireKind = "signal"
)

// Envelope is the self-describing frame placed on every endpoint channel.
// Raw bytes travel the channel mesh; Encode/Decode translate between the
// typed structs and this tagged wrapper.
type Envelope struct {
	Kind    WireKind        `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func encode(kind WireKind, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Payload: payload})
}

func EncodeMessage[T comparable](m Message[T]) ([]byte, error) {
	return encode(WireMessage, m)
}

func EncodeReport[T comparable](r Report[T]) ([]byte, error) {
	return encode(WireReport, r)
}

func EncodeAggregatedReport[T comparable](a AggregatedReport[T]) ([]byte, error) {
	return encode(WireAggregatedReport, a)
}

func EncodeBarycentricReport[T comparable](b BarycentricReport[T]) ([]byte, error) {
	return encode(WireBarycentricReport, b)
}

func EncodeSignal[T comparable](s Signal[T]) ([]byte, error) {
	return encode(WireSignal, s)
}

// PeekKind inspects the envelope without decoding the payload, letting a
// drain loop decide which typed Decode* function to call.
func PeekKind(raw []byte) (WireKind, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Kind, nil
}

func DecodeMessage[T comparable](raw []byte) (Message[T], error) {
	var env Envelope
	var m Message[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return m, err
	}
	err := json.Unmarshal(env.Payload, &m)
	return m, err
}

func DecodeReport[T comparable](raw []byte) (Report[T], error) {
	var env Envelope
	var r Report[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return r, err
	}
	err := json.Unmarshal(env.Payload, &r)
	return r, err
}

func DecodeAggregatedReport[T comparable](raw []byte) (AggregatedReport[T], error) {
	var env Envelope
	var a AggregatedReport[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return a, err
	}
	err := json.Unmarshal(env.Payload, &a)
	return a, err
}

func DecodeBarycentricReport[T comparable](raw []byte) (BarycentricReport[T], error) {
	var env Envelope
	var b BarycentricReport[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return b, err
	}
	err := json.Unmarshal(env.Payload, &b)
	return b, err
}

func DecodeSignal[T comparable](raw []byte) (Signal[T], error) {
	var env Envelope
	var s Signal[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return s, err
	}
	err := json.Unmarshal(env.Payload, &s)
	return s, err
}
