package codec

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelope_RoundTrip(t *testing.T) {
	env := Envelope{Name: "c-news_crawl-1a2b3c-PROCESSED-deadbeef.blob", Payload: []byte("hello\nworld")}

	framed, err := EncodeEnvelope(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(framed)
	require.NoError(t, err)
	require.Equal(t, env, got)
}

func TestEnvelopeDecoder_ReadsSequentialEnvelopes(t *testing.T) {
	e1 := Envelope{Name: "r-news_crawl-abc123", Payload: []byte("one")}
	e2 := Envelope{Name: "r-news_crawl-def456", Payload: []byte("two")}

	f1, err := EncodeEnvelope(e1)
	require.NoError(t, err)
	f2, err := EncodeEnvelope(e2)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.Write(f1)
	buf.Write(f2)

	dec := NewEnvelopeDecoder(bufio.NewReader(&buf))

	got1, err := dec.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, e1, got1)

	got2, err := dec.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, e2, got2)

	_, err = dec.ReadEnvelope()
	require.ErrorIs(t, err, io.EOF)
}

func TestEnvelopeDecoder_RejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, lengthPrefixSize)
	big := uint32(MaxEnvelopeSize) + 1
	lenBuf[0] = byte(big >> 24)
	lenBuf[1] = byte(big >> 16)
	lenBuf[2] = byte(big >> 8)
	lenBuf[3] = byte(big)
	buf.Write(lenBuf)

	dec := NewEnvelopeDecoder(&buf)
	_, err := dec.ReadEnvelope()
	require.Error(t, err)

	var envErr *EnvelopeError
	require.ErrorAs(t, err, &envErr)
	require.Equal(t, "size", envErr.Kind)
	require.True(t, envErr.IsFatal())
}

func TestEnvelopeDecoder_TruncatedBody(t *testing.T) {
	env := Envelope{Name: "r-h-digest", Payload: []byte("some payload bytes")}
	framed, err := EncodeEnvelope(env)
	require.NoError(t, err)

	truncated := framed[:len(framed)-3]
	dec := NewEnvelopeDecoder(bytes.NewReader(truncated))

	_, err = dec.ReadEnvelope()
	require.Error(t, err)

	var envErr *EnvelopeError
	require.ErrorAs(t, err, &envErr)
	require.Equal(t, "io", envErr.Kind)
	require.False(t, envErr.IsFatal())
}
