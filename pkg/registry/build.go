package registry

import (
	"encoding/binary"
	"fmt"

	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// BuildEvent decodes one complete event message into its typed variant.
// A message nobody owns is malformed: dropping it would hide whatever
// desynchronized the stream.
func (r *Registry) BuildEvent(order binary.ByteOrder, msg []byte) (xproto.Event, error) {
	if len(msg) < wire.MessageSize {
		return nil, fmt.Errorf("%w: event is %d bytes", wire.ErrMalformed, len(msg))
	}
	c := r.Classify(msg[0], msg[1])
	code := msg[0] &^ wire.SyntheticBit
	switch c.Kind {
	case CoreEvent:
		decode, ok := r.core.Events[code]
		if !ok {
			decode = xproto.DecodeRawEvent
		}
		return decode(order, msg)
	case ExtensionEvent:
		d := c.Descriptor
		var decode xproto.EventDecoder
		if code == wire.GenericEventCode {
			decode = d.ext.GenericEvents[order.Uint16(msg[8:10])]
			if decode == nil {
				decode = xproto.DecodeGenericEvent
			}
		} else {
			decode = d.ext.Events[code-d.FirstEvent]
			if decode == nil {
				decode = xproto.DecodeRawEvent
			}
		}
		ev, err := decode(order, msg)
		if err != nil {
			return nil, fmt.Errorf("%s event %d: %w", d.Name, code, err)
		}
		ev.Header().Extension = d.Name
		return ev, nil
	}
	return nil, fmt.Errorf("%w: event code %d (opcode %d) belongs to no registered extension", wire.ErrMalformed, code, msg[1])
}

// BuildError decodes one error message into its typed variant.
func (r *Registry) BuildError(order binary.ByteOrder, msg []byte) (xproto.Error, error) {
	if len(msg) < wire.MessageSize || msg[0] != wire.ResponseError {
		return nil, fmt.Errorf("%w: not an error message", wire.ErrMalformed)
	}
	c := r.Classify(msg[0], msg[1])
	switch c.Kind {
	case CoreError:
		decode, ok := r.core.Errors[msg[1]]
		if !ok {
			decode = xproto.DecodeRawError
		}
		return decode(order, msg)
	case ExtensionError:
		d := c.Descriptor
		decode := d.ext.Errors[msg[1]-d.FirstError]
		if decode == nil {
			decode = xproto.DecodeRawError
		}
		e, err := decode(order, msg)
		if err != nil {
			return nil, fmt.Errorf("%s error %d: %w", d.Name, msg[1], err)
		}
		e.Details().Extension = d.Name
		return e, nil
	}
	return nil, fmt.Errorf("%w: error code %d belongs to no registered extension", wire.ErrMalformed, msg[1])
}
