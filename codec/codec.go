// Package codec implements the event file name/payload encoding (spec §4.B,
// §6 "Event file names"/"Event payload").
//
// An event file's name encodes its non-payload fields; its bytes encode
// payload fields joined by a reserved separator. Decoding is lazy: a
// PartialEvent carries name-level fields immediately and defers payload
// materialization to a caller-supplied loader.
package codec

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/justapithecus/quarry-depot/types"
)

// fieldSep is the reserved byte joining payload fields (spec §6: "fields
// joined by a single newline byte").
const fieldSep = "\n"

const (
	collectionPrefix  = "c"
	registrationPrefix = "r"
)

// ErrMalformedName is returned when an event file name doesn't match either
// variant's expected field count.
var ErrMalformedName = errors.New("codec: malformed event file name")

// digestName returns a short hex digest over payload bytes, used as the
// trailing field of an event file name (spec §4.B). crypto/sha256 is
// stdlib: hashing a handful of payload bytes for a name suffix is not a
// concern any example repo reaches for a third-party library to do.
func digestName(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func encodeBool(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

func decodeBool(s string) (bool, error) {
	switch s {
	case "T":
		return true, nil
	case "F":
		return false, nil
	default:
		return false, fmt.Errorf("codec: invalid bool field %q", s)
	}
}

func encodeHexInt(n int64) string {
	return strconv.FormatInt(n, 16)
}

func decodeHexInt(s string) (int64, error) {
	return strconv.ParseInt(s, 16, 64)
}

// EncodeCollectionPayload joins a Collection event's payload fields.
func EncodeCollectionPayload(e types.CollectionEvent) []byte {
	fields := []string{
		e.URL,
		string(e.Status),
		encodeHexInt(e.Timestamp.UnixNano()),
		e.OutputBlobName,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeCollectionPayload splits a Collection event's payload bytes back
// into field values, given the handler name already known from the name.
func DecodeCollectionPayload(handlerName string, payload []byte) (types.CollectionEvent, error) {
	parts := strings.Split(string(payload), fieldSep)
	if len(parts) != 4 {
		return types.CollectionEvent{}, fmt.Errorf("codec: collection payload has %d fields, want 4", len(parts))
	}
	ns, err := decodeHexInt(parts[2])
	if err != nil {
		return types.CollectionEvent{}, fmt.Errorf("codec: decode timestamp: %w", err)
	}
	return types.CollectionEvent{
		HandlerName:    handlerName,
		URL:            parts[0],
		Status:         types.SourceStatus(parts[1]),
		Timestamp:      time.Unix(0, ns).UTC(),
		OutputBlobName: parts[3],
	}, nil
}

// EncodeRegistrationPayload joins a Registration event's payload fields.
func EncodeRegistrationPayload(e types.RegistrationEvent) []byte {
	fields := []string{e.URL, encodeBool(e.Overwrite)}
	return []byte(strings.Join(fields, fieldSep))
}

// DecodeRegistrationPayload splits a Registration event's payload bytes.
func DecodeRegistrationPayload(handlerName string, payload []byte) (types.RegistrationEvent, error) {
	parts := strings.Split(string(payload), fieldSep)
	if len(parts) != 2 {
		return types.RegistrationEvent{}, fmt.Errorf("codec: registration payload has %d fields, want 2", len(parts))
	}
	overwrite, err := decodeBool(parts[1])
	if err != nil {
		return types.RegistrationEvent{}, err
	}
	return types.RegistrationEvent{HandlerName: handlerName, URL: parts[0], Overwrite: overwrite}, nil
}

// EncodeName builds an event file's name from its kind, handler, and
// payload bytes. Collection names additionally embed the hex timestamp and
// status (spec §6: "c-<handler>-<hex_timestamp>-<status>-<digest>").
func EncodeName(kind types.EventKind, handlerName string, coll *types.CollectionEvent, payload []byte) string {
	digest := digestName(payload)
	switch kind {
	case types.KindCollection:
		return strings.Join([]string{
			collectionPrefix, handlerName, encodeHexInt(coll.Timestamp.UnixNano()), string(coll.Status), digest,
		}, "-")
	default:
		return strings.Join([]string{registrationPrefix, handlerName, digest}, "-")
	}
}

// NameFields holds the fields recoverable from an event file name alone,
// without touching the payload.
type NameFields struct {
	Kind        types.EventKind
	HandlerName string
	Timestamp   time.Time // zero for Registration events
	Status      types.SourceStatus // empty for Registration events
	Digest      string
}

// DecodeName parses an event file name into its name-level fields.
func DecodeName(name string) (NameFields, error) {
	parts := strings.Split(name, "-")
	if len(parts) == 0 {
		return NameFields{}, ErrMalformedName
	}
	switch parts[0] {
	case collectionPrefix:
		if len(parts) != 5 {
			return NameFields{}, fmt.Errorf("%w: %s", ErrMalformedName, name)
		}
		ns, err := decodeHexInt(parts[2])
		if err != nil {
			return NameFields{}, fmt.Errorf("codec: decode timestamp in %q: %w", name, err)
		}
		return NameFields{
			Kind:        types.KindCollection,
			HandlerName: parts[1],
			Timestamp:   time.Unix(0, ns).UTC(),
			Status:      types.SourceStatus(parts[3]),
			Digest:      parts[4],
		}, nil
	case registrationPrefix:
		if len(parts) != 3 {
			return NameFields{}, fmt.Errorf("%w: %s", ErrMalformedName, name)
		}
		return NameFields{Kind: types.KindRegistration, HandlerName: parts[1], Digest: parts[2]}, nil
	default:
		return NameFields{}, fmt.Errorf("%w: unknown prefix in %s", ErrMalformedName, name)
	}
}

// Encode serializes a full Event into its (name, payload) pair.
func Encode(e types.Event) (name string, payload []byte) {
	switch e.Kind {
	case types.KindCollection:
		payload = EncodeCollectionPayload(*e.Collection)
		name = EncodeName(e.Kind, e.Collection.HandlerName, e.Collection, payload)
	default:
		payload = EncodeRegistrationPayload(*e.Registration)
		name = EncodeName(e.Kind, e.Registration.HandlerName, nil, payload)
	}
	return name, payload
}

// Decode fully materializes an Event from its (name, payload) pair.
func Decode(name string, payload []byte) (types.Event, error) {
	fields, err := DecodeName(name)
	if err != nil {
		return types.Event{}, err
	}
	switch fields.Kind {
	case types.KindCollection:
		coll, err := DecodeCollectionPayload(fields.HandlerName, payload)
		if err != nil {
			return types.Event{}, err
		}
		return types.Event{Kind: types.KindCollection, Collection: &coll}, nil
	default:
		reg, err := DecodeRegistrationPayload(fields.HandlerName, payload)
		if err != nil {
			return types.Event{}, err
		}
		return types.Event{Kind: types.KindRegistration, Registration: &reg}, nil
	}
}

// BlobLoader fetches the raw payload bytes for a named event, typically
// backed by the run archive's loose event file directory.
type BlobLoader func(name string) ([]byte, error)

// PartialEvent carries name-level fields eagerly and defers payload
// decoding to Extend, memoizing the result (spec §4.B "lazy load").
type PartialEvent struct {
	Name   string
	Fields NameFields
	loader BlobLoader
	full   *types.Event
}

// NewPartialEvent parses name eagerly and closes over loader for payload
// materialization.
func NewPartialEvent(name string, loader BlobLoader) (*PartialEvent, error) {
	fields, err := DecodeName(name)
	if err != nil {
		return nil, err
	}
	return &PartialEvent{Name: name, Fields: fields, loader: loader}, nil
}

// Extend materializes the payload fields on first call and memoizes the
// result; subsequent calls return the cached Event.
func (p *PartialEvent) Extend() (*types.Event, error) {
	if p.full != nil {
		return p.full, nil
	}
	payload, err := p.loader(p.Name)
	if err != nil {
		return nil, fmt.Errorf("codec: load payload for %s: %w", p.Name, err)
	}
	full, err := Decode(p.Name, payload)
	if err != nil {
		return nil, err
	}
	p.full = &full
	return p.full, nil
}

// byRecency orders PartialEvents so more recent timestamps sort first,
// ties broken by handler name, then by event file name, both
// lexicographically. The URL lives in the payload and is not consulted.
// Registration events (zero timestamp) sort after all Collection events.
type byRecency []*PartialEvent

func (b byRecency) Len() int { return len(b) }
func (b byRecency) Less(i, j int) bool {
	ti, tj := b[i].Fields.Timestamp, b[j].Fields.Timestamp
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	if b[i].Fields.HandlerName != b[j].Fields.HandlerName {
		return b[i].Fields.HandlerName < b[j].Fields.HandlerName
	}
	return b[i].Name < b[j].Name
}
func (b byRecency) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b *byRecency) Push(x any)        { *b = append(*b, x.(*PartialEvent)) }
func (b *byRecency) Pop() any {
	old := *b
	n := len(old)
	item := old[n-1]
	*b = old[:n-1]
	return item
}

// RecencyHeap is a min-heap (by the byRecency ordering: most-recent-first)
// over PartialEvents, for "latest only" queries over thousands of events
// without materializing every payload (spec §4.B rationale).
type RecencyHeap struct {
	items byRecency
}

// NewRecencyHeap builds a heap from the given partial events.
func NewRecencyHeap(events []*PartialEvent) *RecencyHeap {
	h := &RecencyHeap{items: append(byRecency(nil), events...)}
	heap.Init(&h.items)
	return h
}

// Push adds an event to the heap.
func (h *RecencyHeap) Push(e *PartialEvent) { heap.Push(&h.items, e) }

// Pop removes and returns the most-recent remaining event, or nil if empty.
func (h *RecencyHeap) Pop() *PartialEvent {
	if h.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&h.items).(*PartialEvent)
}

// Len returns the number of events remaining in the heap.
func (h *RecencyHeap) Len() int { return h.items.Len() }
