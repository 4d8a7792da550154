package framing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	inst := uint32(3)
	m := Message[string]{Protocol: ProtocolReliable, SenderID: 2, Payload: "hello", InstanceID: &inst, Round: 1}

	raw, err := EncodeMessage(m)
	require.NoError(t, err)

	kind, err := PeekKind(raw)
	require.NoError(t, err)
	require.Equal(t, WireMessage, kind)

	got, err := DecodeMessage[string](raw)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestSignalRoundTrip(t *testing.T) {
	inst := uint32(1)
	m := Message[string]{Protocol: ProtocolReliable, SenderID: 0, Payload: "v", InstanceID: &inst, Round: 0}
	s := Signal[string]{Type: SignalEcho, Content: MessageContent(m), InstanceID: 1, Round: 0}

	raw, err := EncodeSignal(s)
	require.NoError(t, err)

	kind, err := PeekKind(raw)
	require.NoError(t, err)
	require.Equal(t, WireSignal, kind)

	got, err := DecodeSignal[string](raw)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestReportPromotionKeyStability(t *testing.T) {
	r := Report[string]{Kind: ReportKindReport, Protocol: ProtocolWitness, SenderID: 4, InstanceID: 0, Round: 2}
	raw, err := EncodeReport(r)
	require.NoError(t, err)

	got, err := DecodeReport[string](raw)
	require.NoError(t, err)
	got.Kind = ReportKindWitness
	require.Equal(t, r.Key(), got.Key())
}

func TestAggregatedReportRoundTrip(t *testing.T) {
	inst := uint32(2)
	m := Message[string]{Protocol: ProtocolWitness, SenderID: 0, Payload: "v", InstanceID: &inst, Round: 0}
	r := Report[string]{Kind: ReportKindWitness, Protocol: ProtocolWitness, SenderID: 0, Messages: []Message[string]{m}, Round: 0}
	a := AggregatedReport[string]{Kind: ReportKindReport, Protocol: ProtocolAggregatedWitness, SenderID: 1, Reports: []Report[string]{r}, Round: 0}

	raw, err := EncodeAggregatedReport(a)
	require.NoError(t, err)

	kind, err := PeekKind(raw)
	require.NoError(t, err)
	require.Equal(t, WireAggregatedReport, kind)

	got, err := DecodeAggregatedReport[string](raw)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestBarycentricReportRoundTrip(t *testing.T) {
	m := Message[string]{Protocol: ProtocolBarycentric, SenderID: 2, Payload: "v", Round: 0}
	b := BarycentricReport[string]{Protocol: ProtocolBarycentric, SenderID: 2, Messages: []Message[string]{m}, InstanceID: 1, Round: 0}

	raw, err := EncodeBarycentricReport(b)
	require.NoError(t, err)

	kind, err := PeekKind(raw)
	require.NoError(t, err)
	require.Equal(t, WireBarycentricReport, kind)

	got, err := DecodeBarycentricReport[string](raw)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestPeekKindRejectsMalformedFrame(t *testing.T) {
	_, err := PeekKind([]byte("not json at all"))
	require.Error(t, err)
}

func TestInstanceKeyDistinguishesSenderAndRound(t *testing.T) {
	inst := uint32(0)
	m1 := Message[string]{Protocol: ProtocolReliable, SenderID: 1, Payload: "a", InstanceID: &inst, Round: 0}
	m2 := Message[string]{Protocol: ProtocolReliable, SenderID: 2, Payload: "a", InstanceID: &inst, Round: 0}

	s1 := Signal[string]{Type: SignalInput, Content: MessageContent(m1), InstanceID: 0, Round: 0}
	s2 := Signal[string]{Type: SignalInput, Content: MessageContent(m2), InstanceID: 0, Round: 0}

	s3 := Signal[string]{Type: SignalInput, Content: MessageContent(m1), InstanceID: 0, Round: 1}

	k1 := KeyForSignal[string](9, s1)
	k2 := KeyForSignal[string](9, s2)
	k3 := KeyForSignal[string](9, s3)
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)
}
