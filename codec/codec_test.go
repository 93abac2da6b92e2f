package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justapithecus/quarry-depot/types"
)

func sampleCollection() types.CollectionEvent {
	return types.CollectionEvent{
		HandlerName:    "news_crawl",
		URL:            "https://example.com/a",
		Status:         types.StatusProcessed,
		Timestamp:      time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		OutputBlobName: "deadbeef.blob",
	}
}

func sampleRegistration() types.RegistrationEvent {
	return types.RegistrationEvent{HandlerName: "news_crawl", URL: "https://example.com/b", Overwrite: true}
}

func TestEncodeDecode_Collection_RoundTrip(t *testing.T) {
	e := types.Event{Kind: types.KindCollection, Collection: ptr(sampleCollection())}
	name, payload := Encode(e)

	got, err := Decode(name, payload)
	require.NoError(t, err)
	require.Equal(t, e.Kind, got.Kind)
	require.Equal(t, *e.Collection, *got.Collection)
}

func TestEncodeDecode_Registration_RoundTrip(t *testing.T) {
	reg := sampleRegistration()
	e := types.Event{Kind: types.KindRegistration, Registration: &reg}
	name, payload := Encode(e)

	got, err := Decode(name, payload)
	require.NoError(t, err)
	require.Equal(t, reg, *got.Registration)
}

func TestEncodeName_CollectionFormat(t *testing.T) {
	coll := sampleCollection()
	payload := EncodeCollectionPayload(coll)
	name := EncodeName(types.KindCollection, coll.HandlerName, &coll, payload)

	fields, err := DecodeName(name)
	require.NoError(t, err)
	require.Equal(t, types.KindCollection, fields.Kind)
	require.Equal(t, "news_crawl", fields.HandlerName)
	require.True(t, fields.Timestamp.Equal(coll.Timestamp))
	require.Equal(t, types.StatusProcessed, fields.Status)
	require.NotEmpty(t, fields.Digest)
}

func TestEncodeName_RegistrationFormat(t *testing.T) {
	reg := sampleRegistration()
	payload := EncodeRegistrationPayload(reg)
	name := EncodeName(types.KindRegistration, reg.HandlerName, nil, payload)

	fields, err := DecodeName(name)
	require.NoError(t, err)
	require.Equal(t, types.KindRegistration, fields.Kind)
	require.Equal(t, "news_crawl", fields.HandlerName)
	require.True(t, fields.Timestamp.IsZero())
}

func TestDecodeName_Malformed(t *testing.T) {
	_, err := DecodeName("not-a-valid-name")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedName))
}

func TestDecodeName_UnknownPrefix(t *testing.T) {
	_, err := DecodeName("x-handler-digest")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedName))
}

func TestPartialEvent_ExtendMemoizes(t *testing.T) {
	coll := sampleCollection()
	payload := EncodeCollectionPayload(coll)
	name := EncodeName(types.KindCollection, coll.HandlerName, &coll, payload)

	calls := 0
	loader := func(n string) ([]byte, error) {
		calls++
		require.Equal(t, name, n)
		return payload, nil
	}

	pe, err := NewPartialEvent(name, loader)
	require.NoError(t, err)
	require.Equal(t, "news_crawl", pe.Fields.HandlerName)

	full1, err := pe.Extend()
	require.NoError(t, err)
	full2, err := pe.Extend()
	require.NoError(t, err)

	require.Same(t, full1, full2)
	require.Equal(t, 1, calls)
}

func TestPartialEvent_ExtendPropagatesLoaderError(t *testing.T) {
	coll := sampleCollection()
	payload := EncodeCollectionPayload(coll)
	name := EncodeName(types.KindCollection, coll.HandlerName, &coll, payload)

	boom := errors.New("boom")
	pe, err := NewPartialEvent(name, func(string) ([]byte, error) { return nil, boom })
	require.NoError(t, err)

	_, err = pe.Extend()
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
}

func TestRecencyHeap_OrdersMostRecentFirst(t *testing.T) {
	older := sampleCollection()
	older.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleCollection()
	newer.Timestamp = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mkPartial := func(c types.CollectionEvent) *PartialEvent {
		payload := EncodeCollectionPayload(c)
		name := EncodeName(types.KindCollection, c.HandlerName, &c, payload)
		pe, err := NewPartialEvent(name, func(string) ([]byte, error) { return payload, nil })
		require.NoError(t, err)
		return pe
	}

	h := NewRecencyHeap([]*PartialEvent{mkPartial(older), mkPartial(newer)})
	require.Equal(t, 2, h.Len())

	first := h.Pop()
	require.True(t, first.Fields.Timestamp.Equal(newer.Timestamp))

	second := h.Pop()
	require.True(t, second.Fields.Timestamp.Equal(older.Timestamp))

	require.Nil(t, h.Pop())
}

func TestRecencyHeap_TieBreaksByHandlerThenName(t *testing.T) {
	same := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := sampleCollection()
	a.HandlerName, a.Timestamp = "aaa_handler", same
	b := sampleCollection()
	b.HandlerName, b.Timestamp = "zzz_handler", same

	mkPartial := func(c types.CollectionEvent) *PartialEvent {
		payload := EncodeCollectionPayload(c)
		name := EncodeName(types.KindCollection, c.HandlerName, &c, payload)
		pe, err := NewPartialEvent(name, func(string) ([]byte, error) { return payload, nil })
		require.NoError(t, err)
		return pe
	}

	h := NewRecencyHeap([]*PartialEvent{mkPartial(b), mkPartial(a)})
	first := h.Pop()
	require.Equal(t, "aaa_handler", first.Fields.HandlerName)
}

func ptr[T any](v T) *T { return &v }
