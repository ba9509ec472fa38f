package nodestore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// record is the persisted form of one node.
type record struct {
	id          string
	name        string
	parentID    string
	primaryType string
	mixins      []string
	children    []string
	properties  map[string]*propertyRecord
	created     int64 // unix nanos
	checkedOut  bool

	versions    []versionRecord
	baseVersion string
	nextVersion uint64

	// frozen copies created by checkin
	frozen        bool
	frozenUUID    string
	frozenOf      string
	frozenVersion string
	frozenCreated int64

	persisted bool
}

type propertyRecord struct {
	name     string
	typ      repository.PropertyType
	multiple bool
	values   []valueRecord
}

type valueRecord struct {
	str      string
	long     int64
	double   float64
	boolV    bool
	dateNano int64
	zoneName string
	zoneOff  int32
	blob     *blobRef
}

type blobRef struct {
	size   int64
	chunks []types.Hash
}

type versionRecord struct {
	name     string
	created  int64
	frozenID string
}

var errCorruptRecord = errors.New("nodestore: corrupt record")

func newRecord(id, name, parentID, primaryType string) *record {
	return &record{
		id:          id,
		name:        name,
		parentID:    parentID,
		primaryType: primaryType,
		properties:  map[string]*propertyRecord{},
		created:     time.Now().UnixNano(),
		checkedOut:  true,
	}
}

func (r *record) hasMixin(name string) bool {
	for _, m := range r.mixins {
		if m == name {
			return true
		}
	}
	return false
}

func (r *record) isVersionable() bool {
	return r.hasMixin(repository.MixinVersionable)
}

func (r *record) isReferenceable() bool {
	return r.hasMixin(repository.MixinReferenceable) || r.isVersionable()
}

func (r *record) childIndex(id string) int {
	for i, c := range r.children {
		if c == id {
			return i
		}
	}
	return -1
}

func (r *record) version(name string) (versionRecord, bool) {
	for _, v := range r.versions {
		if v.name == name {
			return v, true
		}
	}
	return versionRecord{}, false
}

func (r *record) sortedPropertyNames() []string {
	names := make([]string, 0, len(r.properties))
	for name := range r.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func recordToByte(r *record) []byte {
	var b []byte
	b = appendString(b, 1, r.id)
	b = appendString(b, 2, r.name)
	b = appendString(b, 3, r.parentID)
	b = appendString(b, 4, r.primaryType)
	for _, m := range r.mixins {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	for _, c := range r.children {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, c)
	}
	for _, name := range r.sortedPropertyNames() {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, propertyToByte(r.properties[name]))
	}
	b = appendSint(b, 8, r.created)
	b = appendBool(b, 9, r.checkedOut)
	for _, v := range r.versions {
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendBytes(b, versionToByte(v))
	}
	b = appendString(b, 11, r.baseVersion)
	b = appendVarint(b, 12, r.nextVersion)
	b = appendBool(b, 13, r.frozen)
	b = appendString(b, 14, r.frozenUUID)
	b = appendString(b, 15, r.frozenOf)
	b = appendString(b, 16, r.frozenVersion)
	b = appendSint(b, 17, r.frozenCreated)
	return b
}

func byteToRecord(data []byte) (*record, error) {
	r := &record{properties: map[string]*propertyRecord{}, persisted: true}
	var nested error

	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.id = v
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.name = v
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.parentID = v
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.primaryType = v
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.mixins = append(r.mixins, v)
			return n
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.children = append(r.children, v)
			return n
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			p, err := byteToProperty(v)
			if err != nil {
				nested = err
				return -1
			}
			r.properties[p.name] = p
			return n
		case num == 8 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.created = protowire.DecodeZigZag(v)
			return n
		case num == 9 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.checkedOut = protowire.DecodeBool(v)
			return n
		case num == 10 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			vr, err := byteToVersion(v)
			if err != nil {
				nested = err
				return -1
			}
			r.versions = append(r.versions, vr)
			return n
		case num == 11 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.baseVersion = v
			return n
		case num == 12 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.nextVersion = v
			return n
		case num == 13 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.frozen = protowire.DecodeBool(v)
			return n
		case num == 14 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.frozenUUID = v
			return n
		case num == 15 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.frozenOf = v
			return n
		case num == 16 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.frozenVersion = v
			return n
		case num == 17 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.frozenCreated = protowire.DecodeZigZag(v)
			return n
		}
		return 0
	})
	if nested != nil {
		return nil, nested
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptRecord, err)
	}
	if r.id == "" {
		return nil, fmt.Errorf("%w: missing id", errCorruptRecord)
	}
	return r, nil
}

func propertyToByte(p *propertyRecord) []byte {
	var b []byte
	b = appendString(b, 1, p.name)
	b = appendVarint(b, 2, uint64(p.typ))
	b = appendBool(b, 3, p.multiple)
	for _, v := range p.values {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, valueToByte(v))
	}
	return b
}

func byteToProperty(data []byte) (*propertyRecord, error) {
	p := &propertyRecord{}
	var nested error

	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.name = v
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.typ = repository.PropertyType(v)
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.multiple = protowire.DecodeBool(v)
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			vr, err := byteToValue(v)
			if err != nil {
				nested = err
				return -1
			}
			p.values = append(p.values, vr)
			return n
		}
		return 0
	})
	if nested != nil {
		return nil, nested
	}
	if err != nil {
		return nil, fmt.Errorf("%w: property: %v", errCorruptRecord, err)
	}
	return p, nil
}

func valueToByte(v valueRecord) []byte {
	var b []byte
	b = appendString(b, 1, v.str)
	b = appendSint(b, 2, v.long)
	if v.double != 0 {
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.double))
	}
	b = appendBool(b, 4, v.boolV)
	b = appendSint(b, 5, v.dateNano)
	b = appendString(b, 6, v.zoneName)
	b = appendSint(b, 7, int64(v.zoneOff))
	if v.blob != nil {
		var bb []byte
		bb = appendVarint(bb, 1, uint64(v.blob.size))
		for _, h := range v.blob.chunks {
			bb = protowire.AppendTag(bb, 2, protowire.BytesType)
			bb = protowire.AppendBytes(bb, h.Bytes())
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, bb)
	}
	return b
}

func byteToValue(data []byte) (valueRecord, error) {
	var v valueRecord
	var nested error

	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			v.str = s
			return n
		case num == 2 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.long = protowire.DecodeZigZag(x)
			return n
		case num == 3 && typ == protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(b)
			v.double = math.Float64frombits(x)
			return n
		case num == 4 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.boolV = protowire.DecodeBool(x)
			return n
		case num == 5 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.dateNano = protowire.DecodeZigZag(x)
			return n
		case num == 6 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			v.zoneName = s
			return n
		case num == 7 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.zoneOff = int32(protowire.DecodeZigZag(x))
			return n
		case num == 8 && typ == protowire.BytesType:
			bb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			ref, err := byteToBlobRef(bb)
			if err != nil {
				nested = err
				return -1
			}
			v.blob = ref
			return n
		}
		return 0
	})
	if nested != nil {
		return valueRecord{}, nested
	}
	if err != nil {
		return valueRecord{}, fmt.Errorf("%w: value: %v", errCorruptRecord, err)
	}
	return v, nil
}

func byteToBlobRef(data []byte) (*blobRef, error) {
	ref := &blobRef{}
	var nested error

	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			ref.size = int64(x)
			return n
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			var h types.Hash
			if err := h.HashFromBytes(raw); err != nil {
				nested = err
				return -1
			}
			ref.chunks = append(ref.chunks, h)
			return n
		}
		return 0
	})
	if nested != nil {
		return nil, fmt.Errorf("%w: blob: %v", errCorruptRecord, nested)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: blob: %v", errCorruptRecord, err)
	}
	return ref, nil
}

func versionToByte(v versionRecord) []byte {
	var b []byte
	b = appendString(b, 1, v.name)
	b = appendSint(b, 2, v.created)
	b = appendString(b, 3, v.frozenID)
	return b
}

func byteToVersion(data []byte) (versionRecord, error) {
	var v versionRecord
	err := decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			v.name = s
			return n
		case num == 2 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			v.created = protowire.DecodeZigZag(x)
			return n
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			v.frozenID = s
			return n
		}
		return 0
	})
	if err != nil {
		return versionRecord{}, fmt.Errorf("%w: version: %v", errCorruptRecord, err)
	}
	return v, nil
}

// decodeFields walks the fields of one message. field returns the number of
// bytes it consumed, 0 to skip an unknown field, or a negative protowire
// error code.
func decodeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n = field(num, typ, b)
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

// toValueRecord converts a value whose binary content, if any, has already
// been stored.
func toValueRecord(v repository.Value, blob *blobRef) (valueRecord, error) {
	var vr valueRecord
	var err error
	switch v.Type() {
	case repository.TypeString, repository.TypeReference:
		vr.str, err = v.String()
	case repository.TypeLong:
		vr.long, err = v.Long()
	case repository.TypeDouble:
		vr.double, err = v.Double()
	case repository.TypeBoolean:
		vr.boolV, err = v.Boolean()
	case repository.TypeDate:
		var t time.Time
		t, err = v.Date()
		vr.dateNano = t.UnixNano()
		vr.zoneName, vr.zoneOff = zoneOf(t)
	case repository.TypeBinary:
		vr.blob = blob
	default:
		err = fmt.Errorf("%w: undefined value", repository.ErrValueFormat)
	}
	return vr, err
}

func zoneOf(t time.Time) (string, int32) {
	name, offset := t.Zone()
	return name, int32(offset)
}

func dateOf(vr valueRecord) time.Time {
	t := time.Unix(0, vr.dateNano)
	if vr.zoneName == "UTC" && vr.zoneOff == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone(vr.zoneName, int(vr.zoneOff)))
}

func (s *Store) fromValueRecord(typ repository.PropertyType, vr valueRecord) repository.Value {
	switch typ {
	case repository.TypeString:
		return repository.StringValue(vr.str)
	case repository.TypeReference:
		return repository.ReferenceValue(vr.str)
	case repository.TypeLong:
		return repository.LongValue(vr.long)
	case repository.TypeDouble:
		return repository.DoubleValue(vr.double)
	case repository.TypeBoolean:
		return repository.BooleanValue(vr.boolV)
	case repository.TypeDate:
		return repository.DateValue(dateOf(vr))
	case repository.TypeBinary:
		ref := vr.blob
		if ref == nil {
			ref = &blobRef{}
		}
		return repository.BlobValue(&storedBlob{store: s, ref: *ref})
	}
	return repository.Value{}
}

func cloneProperty(p *propertyRecord) *propertyRecord {
	out := *p
	out.values = make([]valueRecord, len(p.values))
	for i, v := range p.values {
		out.values[i] = v
		if v.blob != nil {
			ref := *v.blob
			ref.chunks = append([]types.Hash(nil), v.blob.chunks...)
			out.values[i].blob = &ref
		}
	}
	return &out
}
