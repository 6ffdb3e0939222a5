// Package registry maps extension names to the opcodes and event and error
// code ranges a server assigned them, and classifies inbound messages by
// those ranges.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedExtension is returned when the server does not implement an
// extension a caller asked for.
var ErrUnsupportedExtension = errors.New("registry: extension not supported by server")

// Extension is the static catalog entry of an extension: what it is called
// and how to decode the events and errors it defines. Event and error
// decoders are keyed by their offset from the first code the server assigns.
type Extension struct {
	Name      string
	NumEvents uint8
	NumErrors uint8
	Events    map[uint8]xproto.EventDecoder
	Errors    map[uint8]xproto.ErrorDecoder
	// GenericEvents are keyed by the 16-bit event type at bytes 8..10 of a
	// generic event whose byte 1 carries the extension's major opcode. A nil
	// map means the extension sends no generic events.
	GenericEvents map[uint16]xproto.EventDecoder
}

// Descriptor is what a connection learned about an extension.
type Descriptor struct {
	Name        string
	Present     bool
	MajorOpcode uint8
	FirstEvent  uint8
	FirstError  uint8
	ext         *Extension
}

func (d *Descriptor) Extension() *Extension {
	return d.ext
}

func (d *Descriptor) ownsEvent(code uint8) bool {
	return d.ext.NumEvents > 0 && code >= d.FirstEvent && int(code) < int(d.FirstEvent)+int(d.ext.NumEvents)
}

func (d *Descriptor) ownsError(code uint8) bool {
	return d.ext.NumErrors > 0 && code >= d.FirstError && int(code) < int(d.FirstError)+int(d.ext.NumErrors)
}

// Querier issues a QueryExtension round trip.
type Querier interface {
	QueryExtension(ctx context.Context, name string) (xproto.QueryExtensionReply, error)
}

type Kind int

const (
	UnknownExtension Kind = iota
	CoreError
	CoreEvent
	CoreReply
	ExtensionEvent
	ExtensionError
)

func (k Kind) String() string {
	switch k {
	case CoreError:
		return "core-error"
	case CoreEvent:
		return "core-event"
	case CoreReply:
		return "core-reply"
	case ExtensionEvent:
		return "extension-event"
	case ExtensionError:
		return "extension-error"
	}
	return "unknown-extension"
}

// Classification is the outcome of Classify. Descriptor is set for the
// extension kinds.
type Classification struct {
	Kind       Kind
	Descriptor *Descriptor
}

// Registry is the per-connection extension table.
type Registry struct {
	core xproto.Table

	mu     sync.RWMutex
	byName map[string]*Descriptor
	// present holds the descriptors in registration order; Classify scans
	// it and the first match wins.
	present []*Descriptor

	// resolveMu serializes round trips without holding mu, so the router
	// keeps classifying while a resolution is in flight.
	resolveMu sync.Mutex
	logger    *logrus.Logger
}

func New(core xproto.Table, logger *logrus.Logger) *Registry {
	return &Registry{
		core:   core,
		byName: map[string]*Descriptor{},
		logger: logger,
	}
}

// Core returns the table the registry consults before any extension.
func (r *Registry) Core() xproto.Table {
	return r.core
}

// Lookup returns the cached descriptor for name, if resolved.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Resolve returns the descriptor of ext, querying the server the first time
// the name is seen. Absent extensions are cached too and come back with
// Present set to false.
func (r *Registry) Resolve(ctx context.Context, q Querier, ext *Extension) (*Descriptor, error) {
	if d, ok := r.Lookup(ext.Name); ok {
		return d, nil
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	if d, ok := r.Lookup(ext.Name); ok {
		return d, nil
	}

	reply, err := q.QueryExtension(ctx, ext.Name)
	if err != nil {
		return nil, fmt.Errorf("query extension %s: %w", ext.Name, err)
	}
	d := &Descriptor{Name: ext.Name, Present: reply.Present, ext: ext}
	if reply.Present {
		d.MajorOpcode = reply.MajorOpcode
		d.FirstEvent = reply.FirstEvent
		d.FirstError = reply.FirstError
	}
	r.store(d)
	r.logger.Debug(
		"resolved extension ", ext.Name, " present: ", d.Present,
		" major: ", d.MajorOpcode, " first event: ", d.FirstEvent, " first error: ", d.FirstError,
	)
	return d, nil
}

// Require is Resolve for callers that cannot work without the extension.
func (r *Registry) Require(ctx context.Context, q Querier, ext *Extension) (*Descriptor, error) {
	d, err := r.Resolve(ctx, q, ext)
	if err != nil {
		return nil, err
	}
	if !d.Present {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext.Name)
	}
	return d, nil
}

// Install records a descriptor without asking the server. It is used when
// the assignment is known from elsewhere, such as a capture's metadata.
func (r *Registry) Install(ext *Extension, major, firstEvent, firstError uint8) *Descriptor {
	d := &Descriptor{
		Name:        ext.Name,
		Present:     true,
		MajorOpcode: major,
		FirstEvent:  firstEvent,
		FirstError:  firstError,
		ext:         ext,
	}
	r.store(d)
	return d
}

func (r *Registry) store(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName[d.Name]; ok && old.Present {
		for i, p := range r.present {
			if p == old {
				r.present = append(r.present[:i], r.present[i+1:]...)
				break
			}
		}
	}
	r.byName[d.Name] = d
	if d.Present {
		r.present = append(r.present, d)
	}
}

// Classify decides who owns an inbound message. responseType is byte 0 of
// the message and opcode is byte 1, which for generic events carries the
// major opcode of the extension that sent it.
func (r *Registry) Classify(responseType, opcode uint8) Classification {
	switch responseType {
	case wire.ResponseError:
		return r.classifyError(opcode)
	case wire.ResponseReply:
		return Classification{Kind: CoreReply}
	}

	code := responseType &^ wire.SyntheticBit
	if code == wire.GenericEventCode {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, d := range r.present {
			if d.MajorOpcode == opcode && d.ext.GenericEvents != nil {
				return Classification{Kind: ExtensionEvent, Descriptor: d}
			}
		}
		return Classification{Kind: UnknownExtension}
	}
	if r.core.OwnsEvent(code) {
		return Classification{Kind: CoreEvent}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.present {
		if d.ownsEvent(code) {
			return Classification{Kind: ExtensionEvent, Descriptor: d}
		}
	}
	return Classification{Kind: UnknownExtension}
}

func (r *Registry) classifyError(code uint8) Classification {
	if r.core.OwnsError(code) {
		return Classification{Kind: CoreError}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.present {
		if d.ownsError(code) {
			return Classification{Kind: ExtensionError, Descriptor: d}
		}
	}
	return Classification{Kind: UnknownExtension}
}
