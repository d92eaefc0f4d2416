package runtime

import (
	"strings"

	"github.com/jabolina/go-o2rt/pkg/o2rt/codec"
	"github.com/jabolina/go-o2rt/pkg/o2rt/directory"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/osc"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// CreateOscPort opens an inbound OSC bridge on port, mirroring
// create_osc_port(service, port, udp?). Incoming OSC packets surface as
// ordinary messages addressed under service, drained by Poll alongside
// every other socket (spec.md §4.8). If service is not registered yet, it
// is added as a local service so handlers can be installed under it.
func (rt *Runtime) CreateOscPort(service string, port int, udp bool) error {
	in, err := osc.OpenInbound(service, port, udp, rt.log)
	if err != nil {
		return err
	}
	if _, exists := rt.dir.Get(service); !exists {
		if err := rt.AddService(service); err != nil {
			in.Close()
			return err
		}
	}
	rt.oscIn[service] = in
	return nil
}

// DelegateToOsc registers an outbound OSC bridge, mirroring
// delegate_to_osc(service, ip, port, reliable?). Messages sent to service
// are forwarded as OSC packets instead of dispatched locally or routed to
// a peer.
func (rt *Runtime) DelegateToOsc(service, ip string, port int, reliable bool) error {
	if err := rt.dir.AddOscDelegate(service, ip, port, reliable); err != nil {
		return err
	}
	rt.oscOut[service] = osc.NewOutboundDelegate(service, ip, port, reliable)
	return nil
}

// SendOscMessage builds a message from a type descriptor and positional
// arguments and routes it directly to an OSC delegate, mirroring
// send_osc_message(service, path, typestr, args...). It bypasses the
// scheduler entirely: OSC sends are always immediate.
func (rt *Runtime) SendOscMessage(service, path, typeTag string, args ...interface{}) error {
	entry, ok := rt.dir.Get(service)
	if !ok || entry.Kind != directory.KindOscDelegate {
		return errs.ErrServiceMissing
	}
	delegate, ok := rt.oscOut[service]
	if !ok {
		return errs.ErrServiceMissing
	}
	values, err := codec.Assemble(typeTag, args)
	if err != nil {
		return err
	}
	address := "/" + service
	if trimmed := strings.TrimPrefix(path, "/"); trimmed != "" {
		address += "/" + trimmed
	}
	return delegate.Forward(types.Message{Time: types.Immediate, Address: address, Args: values})
}
