package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Hello is the handshake frame a peer session sends first (spec.md §6
// "Hello{version, app_key_hash, rooms_digest}"). AppKeyHash lets the
// receiver reject a peer running a different application outright
// ("mismatched app_key_hash terminates the session"); RoomsDigest
// summarizes the sender's Room set. internal/session's handshake sends
// the full RoomList every time and does not use RoomsDigest to skip it.
type Hello struct {
	ProtocolVersion uint64
	AppKeyHash      []byte
	RoomsDigest     []byte
}

func (h *Hello) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, h.ProtocolVersion)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, h.AppKeyHash)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, h.RoomsDigest)
	return b
}

func UnmarshalHello(data []byte) (*Hello, error) {
	h := &Hello{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, fmt.Errorf("wire: hello: protocol_version: %w", err)
			}
			h.ProtocolVersion = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, fmt.Errorf("wire: hello: app_key_hash: %w", err)
			}
			h.AppKeyHash = v
			data = data[n:]
		case 3:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, fmt.Errorf("wire: hello: rooms_digest: %w", err)
			}
			h.RoomsDigest = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return h, nil
}

// RoomList carries the Rooms a peer belongs to, so the receiving side
// can compute the intersection the handshake shares sync tasks for
// (spec.md §4.8).
type RoomList struct {
	RoomIDs []string
}

func (r *RoomList) Marshal() []byte {
	var b []byte
	for _, id := range r.RoomIDs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

func UnmarshalRoomList(data []byte) (*RoomList, error) {
	r := &RoomList{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		if num == 1 {
			v, n, err := consumeString(data)
			if err != nil {
				return nil, fmt.Errorf("wire: room_list: room id: %w", err)
			}
			r.RoomIDs = append(r.RoomIDs, v)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return r, nil
}

// AuthorCursor is one author's high-water mark within a Room (spec.md
// §4.7 step 1).
type AuthorCursor struct {
	Author []byte
	MDate  uint64
	ID     string
}

func (c *AuthorCursor) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Author)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, c.MDate)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, c.ID)
	return b
}

func unmarshalAuthorCursor(data []byte) (*AuthorCursor, error) {
	c := &AuthorCursor{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			c.Author = v
			data = data[n:]
		case 2:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			c.MDate = v
			data = data[n:]
		case 3:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			c.ID = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return c, nil
}

// CursorSet is the per-Room cursor exchange of spec.md §4.7 step 1, one
// entry per author the sender has observed rows from.
type CursorSet struct {
	RoomID  string
	Cursors []AuthorCursor
}

func (c *CursorSet) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, c.RoomID)
	for i := range c.Cursors {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Cursors[i].marshal())
	}
	return b
}

func UnmarshalCursorSet(data []byte) (*CursorSet, error) {
	c := &CursorSet{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			c.RoomID = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			cur, err := unmarshalAuthorCursor(v)
			if err != nil {
				return nil, fmt.Errorf("wire: cursor_set: %w", err)
			}
			c.Cursors = append(c.Cursors, *cur)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return c, nil
}

// EpochDigest carries a Room's current authorization-epoch digest
// (spec.md §4.7 step 2; internal/ir.EpochDigest computes the value).
type EpochDigest struct {
	RoomID string
	Digest []byte
}

func (d *EpochDigest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, d.RoomID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Digest)
	return b
}

func UnmarshalEpochDigest(data []byte) (*EpochDigest, error) {
	d := &EpochDigest{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			d.RoomID = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			d.Digest = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return d, nil
}

// AdvertiseItem names one row the sender holds, by id plus a short
// signature-derived digest (internal/ir.RowDigest) so the receiver can
// detect divergence on the same id without transferring the row
// (spec.md §4.7 step 3).
type AdvertiseItem struct {
	ID     string
	Digest []byte
	MDate  uint64
}

func (a *AdvertiseItem) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, a.ID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Digest)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, a.MDate)
	return b
}

func unmarshalAdvertiseItem(data []byte) (*AdvertiseItem, error) {
	a := &AdvertiseItem{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			a.ID = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			a.Digest = v
			data = data[n:]
		case 3:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			a.MDate = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return a, nil
}

// Advertise is one author's, one entity's worth of AdvertiseItems within
// a Room (spec.md §6 "Advertise{author, entity, (mdate,id,digest)*}";
// §4.7 step 3 "grouped by entity, in (mdate, id) order").
type Advertise struct {
	RoomID string
	Author []byte
	Entity string
	Items  []AdvertiseItem
}

func (a *Advertise) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, a.RoomID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Author)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, a.Entity)
	for i := range a.Items {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Items[i].marshal())
	}
	return b
}

func UnmarshalAdvertise(data []byte) (*Advertise, error) {
	a := &Advertise{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			a.RoomID = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			a.Author = v
			data = data[n:]
		case 3:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			a.Entity = v
			data = data[n:]
		case 4:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			item, err := unmarshalAdvertiseItem(v)
			if err != nil {
				return nil, fmt.Errorf("wire: advertise: %w", err)
			}
			a.Items = append(a.Items, *item)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return a, nil
}

// Request asks for the subset of a prior Advertise the receiver lacks
// (spec.md §4.7 step 4).
type Request struct {
	RoomID string
	Entity string
	IDs    []string
}

func (r *Request) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.RoomID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, r.Entity)
	for _, id := range r.IDs {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

func UnmarshalRequest(data []byte) (*Request, error) {
	r := &Request{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.RoomID = v
			data = data[n:]
		case 2:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.Entity = v
			data = data[n:]
		case 3:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.IDs = append(r.IDs, v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return r, nil
}

// Row is a full signed row transferred in spec.md §4.7 step 5.
// FieldsJSON carries the entity's declared field values as opaque JSON
// bytes; internal/sync owns translating between this and
// internal/ir.Row, since that translation needs the entity's
// internal/schema.Registry declaration to interpret the JSON back into
// typed internal/ir.Value fields.
type Row struct {
	ID            string
	RoomID        string
	EntityName    string
	MDate         uint64
	Author        []byte
	Signature     []byte
	SchemaVersion uint64
	Deleted       bool
	FieldsJSON    []byte
}

func (r *Row) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.ID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, r.RoomID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, r.EntityName)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, r.MDate)
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Author)
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Signature)
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, r.SchemaVersion)
	b = protowire.AppendTag(b, 8, protowire.VarintType)
	deleted := uint64(0)
	if r.Deleted {
		deleted = 1
	}
	b = protowire.AppendVarint(b, deleted)
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, r.FieldsJSON)
	return b
}

func UnmarshalRow(data []byte) (*Row, error) {
	r := &Row{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.ID = v
			data = data[n:]
		case 2:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.RoomID = v
			data = data[n:]
		case 3:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			r.EntityName = v
			data = data[n:]
		case 4:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			r.MDate = v
			data = data[n:]
		case 5:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			r.Author = v
			data = data[n:]
		case 6:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			r.Signature = v
			data = data[n:]
		case 7:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			r.SchemaVersion = v
			data = data[n:]
		case 8:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			r.Deleted = v != 0
			data = data[n:]
		case 9:
			v, n, err := consumeBytes(data)
			if err != nil {
				return nil, err
			}
			r.FieldsJSON = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return r, nil
}

// BatchEnd closes one entity's transferred batch within a Room (spec.md
// §4.7 step 6).
type BatchEnd struct {
	RoomID string
	Entity string
	Count  uint64
}

func (b *BatchEnd) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, b.RoomID)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendString(out, b.Entity)
	out = protowire.AppendTag(out, 3, protowire.VarintType)
	out = protowire.AppendVarint(out, b.Count)
	return out
}

func UnmarshalBatchEnd(data []byte) (*BatchEnd, error) {
	be := &BatchEnd{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			be.RoomID = v
			data = data[n:]
		case 2:
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			be.Entity = v
			data = data[n:]
		case 3:
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			be.Count = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return be, nil
}

// Ping is the liveness frame spec.md §4.8 requires per session.
type Ping struct {
	TimestampMillis uint64
}

func (p *Ping) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, p.TimestampMillis)
	return b
}

func UnmarshalPing(data []byte) (*Ping, error) {
	p := &Ping{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		if num == 1 {
			v, n, err := consumeVarint(data)
			if err != nil {
				return nil, err
			}
			p.TimestampMillis = v
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return p, nil
}

// Bye announces a graceful teardown (spec.md §4.8).
type Bye struct {
	Reason string
}

func (b *Bye) Marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, b.Reason)
	return out
}

func UnmarshalBye(data []byte) (*Bye, error) {
	b := &Bye{}
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		if num == 1 {
			v, n, err := consumeString(data)
			if err != nil {
				return nil, err
			}
			b.Reason = v
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return b, nil
}

func consumeTag(data []byte) (protowire.Number, protowire.Type, int, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return 0, 0, 0, protowire.ParseError(n)
	}
	return num, typ, n, nil
}

func consumeVarint(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(data []byte) (string, int, error) {
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(data []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte{}, v...), n, nil
}
