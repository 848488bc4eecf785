// File: netio/address.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Immutable resolved endpoint.

package netio

import (
	"context"
	"net/netip"
	"strconv"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
)

// SockType restricts a record to stream or datagram use.
type SockType int

const (
	SockAny SockType = iota
	SockStream
	SockDatagram
)

func (t SockType) transport() transport.SockType {
	switch t {
	case SockDatagram:
		return transport.SockDatagram
	case SockStream:
		return transport.SockStream
	default:
		return transport.SockAny
	}
}

// Record is one resolved candidate of an Address.
type Record struct {
	Family   api.IPVersion
	SockType SockType
	Protocol int // IANA protocol number, 0 when unspecified
	raw      []byte
}

// Raw returns a copy of the platform socket address bytes.
func (r Record) Raw() []byte {
	return append([]byte(nil), r.raw...)
}

// AddrPort decodes the record into a netip.AddrPort.
func (r Record) AddrPort() netip.AddrPort {
	ap, _ := transport.DecodeAddrPort(r.raw)
	return ap
}

func (r Record) transportFamily() transport.Family {
	if r.Family == api.IPv6 {
		return transport.FamilyIPv6
	}
	return transport.FamilyIPv4
}

func newRecord(ap netip.AddrPort, typ SockType) Record {
	ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	fam := api.IPv4
	if ap.Addr().Is6() {
		fam = api.IPv6
	}
	proto := 0
	switch typ {
	case SockStream:
		proto = 6
	case SockDatagram:
		proto = 17
	}
	return Record{Family: fam, SockType: typ, Protocol: proto, raw: transport.EncodeAddrPort(ap)}
}

// Address is an immutable set of resolved endpoints. It is safe to share
// between goroutines.
type Address struct {
	records  []Record
	passive  bool
	reusable bool
	resolver *Resolver
}

// AddressFromAddrPorts builds an Address from already known endpoints.
func AddressFromAddrPorts(passive bool, aps ...netip.AddrPort) (*Address, error) {
	if len(aps) == 0 {
		return nil, api.NewError(api.KindInvalidAddress, "empty address")
	}
	a := &Address{passive: passive}
	for _, ap := range aps {
		if !ap.IsValid() {
			return nil, api.NewError(api.KindInvalidAddress, "invalid endpoint").
				WithContext("endpoint", ap.String())
		}
		a.records = append(a.records, newRecord(ap, SockAny))
	}
	return a, nil
}

// AddressFromRaw wraps a platform socket address, as produced by Raw or
// by a datagram receive, into a single-record Address.
func AddressFromRaw(raw []byte) (*Address, error) {
	if len(raw) == 0 || len(raw) > transport.MaxRawAddrLen {
		return nil, api.NewError(api.KindInvalidAddress, "raw address length").
			WithContext("len", len(raw))
	}
	ap, err := transport.DecodeAddrPort(raw)
	if err != nil {
		return nil, api.NewError(api.KindInvalidAddress, "raw address").Wrap(err)
	}
	return &Address{records: []Record{newRecord(ap, SockAny)}}, nil
}

// Family is the family shared by every record, or api.IPAny when mixed.
func (a *Address) Family() api.IPVersion {
	if a == nil || len(a.records) == 0 {
		return api.IPAny
	}
	fam := a.records[0].Family
	for _, r := range a.records[1:] {
		if r.Family != fam {
			return api.IPAny
		}
	}
	return fam
}

// Records returns the resolved candidates in resolver order.
func (a *Address) Records() []Record {
	if a == nil {
		return nil
	}
	return append([]Record(nil), a.records...)
}

// Passive reports whether the address was resolved for binding.
func (a *Address) Passive() bool { return a != nil && a.passive }

// Reusable reports whether listeners bound to a should set SO_REUSEADDR.
func (a *Address) Reusable() bool { return a != nil && a.reusable }

// WithReuse returns a copy of a marked reusable.
func (a *Address) WithReuse() *Address {
	b := *a
	b.reusable = true
	return &b
}

// Port returns the port of the first record.
func (a *Address) Port() uint16 {
	if a == nil || len(a.records) == 0 {
		return 0
	}
	return a.records[0].AddrPort().Port()
}

// AddrPort returns the first record as a netip.AddrPort.
func (a *Address) AddrPort() netip.AddrPort {
	if a == nil || len(a.records) == 0 {
		return netip.AddrPort{}
	}
	return a.records[0].AddrPort()
}

// Raw returns a copy of the first record's platform socket address.
func (a *Address) Raw() []byte {
	if a == nil || len(a.records) == 0 {
		return nil
	}
	return a.records[0].Raw()
}

// CopyRaw copies the first record into buf and returns its length. It
// fails with an InvalidAddress error when buf is too small.
func (a *Address) CopyRaw(buf []byte) (int, error) {
	if a == nil || len(a.records) == 0 {
		return 0, api.NewError(api.KindInvalidAddress, "empty address")
	}
	raw := a.records[0].raw
	if len(raw) > len(buf) {
		return 0, api.NewError(api.KindInvalidAddress, "raw address too long").
			WithContext("len", len(raw)).WithContext("capacity", len(buf))
	}
	return copy(buf, raw), nil
}

// String renders the first record as host:port ([host]:port for IPv6).
// With reverseDNS false the output is always numeric and never touches
// the network; with reverseDNS true the host is looked up and the numeric
// form is used when the lookup fails.
func (a *Address) String(reverseDNS bool) string {
	if a == nil || len(a.records) == 0 {
		return "<nil>"
	}
	ap := a.records[0].AddrPort()
	if !reverseDNS {
		return ap.String()
	}
	r := a.resolver
	if r == nil {
		r = NewResolver(0, nil, nil)
	}
	name, ok := r.reverse(context.Background(), ap.Addr())
	if !ok {
		return ap.String()
	}
	if ap.Addr().Is6() {
		return "[" + name + "]:" + strconv.Itoa(int(ap.Port()))
	}
	return name + ":" + strconv.Itoa(int(ap.Port()))
}

// Equal reports whether a and b resolve to the same endpoints.
func (a *Address) Equal(b *Address) bool {
	return a.Compare(b) == 0
}

// Compare orders addresses by their records: family, then address bytes,
// then port. Host names play no part.
func (a *Address) Compare(b *Address) int {
	var ra, rb []Record
	if a != nil {
		ra = a.records
	}
	if b != nil {
		rb = b.records
	}
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if c := compareRecord(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	}
	return 0
}

func compareRecord(x, y Record) int {
	if x.Family != y.Family {
		if x.Family < y.Family {
			return -1
		}
		return 1
	}
	px, py := x.AddrPort(), y.AddrPort()
	if c := px.Addr().Compare(py.Addr()); c != 0 {
		return c
	}
	switch {
	case px.Port() < py.Port():
		return -1
	case px.Port() > py.Port():
		return 1
	}
	return 0
}
