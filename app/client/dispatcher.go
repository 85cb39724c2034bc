package client

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teabreakninja/go-meshcore/app/protocol"
	"github.com/teabreakninja/go-meshcore/app/transport"
)

// DefaultCommandTimeout bounds a command's wait for its matching response.
const DefaultCommandTimeout = 30 * time.Second

// dispatcher is the protocol state machine between the transport byte
// stream and the typed API. It delimits no frames itself (the transport
// does); its job is correlation: classify each inbound frame as the reply
// to the single in-flight command, a streamed reply, or an unsolicited
// push, and route it accordingly.
//
// Only one command may be in flight at a time; the firmware does not
// pipeline. Callers queue on the slot channel.
type dispatcher struct {
	tr      transport.Transport
	log     zerolog.Logger
	timeout time.Duration

	// slot holds the in-flight token. Sending acquires, receiving releases.
	slot chan struct{}

	waitersMu sync.Mutex
	// waiters are one-shot reply channels keyed by expected response code.
	// A single channel may be registered under several codes; the first
	// matching frame claims it everywhere.
	waiters map[protocol.ResponseCode][]chan []byte
	// subs are persistent subscriptions used for streamed replies
	// (contact listing) and never consumed by delivery.
	subs map[protocol.ResponseCode][]chan []byte

	// push receives every frame no waiter or subscriber claimed.
	push func(frame []byte)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newDispatcher(tr transport.Transport, log zerolog.Logger, timeout time.Duration, push func([]byte)) *dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &dispatcher{
		tr:      tr,
		log:     log,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
		waiters: make(map[protocol.ResponseCode][]chan []byte),
		subs:    make(map[protocol.ResponseCode][]chan []byte),
		push:    push,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// run is the single reader loop. Read timeouts are idle periods, not
// failures; any other transport error ends the loop.
func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		frame, err := d.tr.ReadFrame()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-d.stop:
			default:
				d.log.Debug().Err(err).Msg("read loop stopped")
			}
			return
		}
		d.deliver(frame)
	}
}

func (d *dispatcher) close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// deliver routes one inbound frame: first to a one-shot waiter, then to
// persistent subscribers, finally to the push sink. Empty frames carry no
// code and are dropped.
func (d *dispatcher) deliver(frame []byte) {
	if len(frame) == 0 {
		return
	}
	code := protocol.ResponseCode(frame[0])

	d.waitersMu.Lock()
	if chans := d.waiters[code]; len(chans) > 0 {
		ch := chans[0]
		d.waiters[code] = chans[1:]
		d.removeWaiterLocked(ch)
		d.waitersMu.Unlock()
		select {
		case ch <- frame:
		default:
			d.log.Warn().Stringer("code", code).Msg("reply waiter full, dropping frame")
		}
		return
	}
	if subs := d.subs[code]; len(subs) > 0 {
		delivered := false
		for _, ch := range subs {
			select {
			case ch <- frame:
				delivered = true
			default:
			}
		}
		d.waitersMu.Unlock()
		if !delivered {
			d.log.Warn().Stringer("code", code).Msg("subscriber buffers full, dropping frame")
		}
		return
	}
	d.waitersMu.Unlock()

	d.push(frame)
}

// addWaiter registers ch as a one-shot reply waiter for every given code.
func (d *dispatcher) addWaiter(ch chan []byte, codes ...protocol.ResponseCode) {
	d.waitersMu.Lock()
	defer d.waitersMu.Unlock()
	for _, code := range codes {
		d.waiters[code] = append(d.waiters[code], ch)
	}
}

// removeWaiter drops ch from every code's waiter list.
func (d *dispatcher) removeWaiter(ch chan []byte) {
	d.waitersMu.Lock()
	defer d.waitersMu.Unlock()
	d.removeWaiterLocked(ch)
}

func (d *dispatcher) removeWaiterLocked(ch chan []byte) {
	for code, chans := range d.waiters {
		for i, c := range chans {
			if c == ch {
				d.waiters[code] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
}

// subscribe registers a persistent stream for the given codes. The returned
// cancel function must be called to stop delivery.
func (d *dispatcher) subscribe(codes ...protocol.ResponseCode) (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	d.waitersMu.Lock()
	for _, code := range codes {
		d.subs[code] = append(d.subs[code], ch)
	}
	d.waitersMu.Unlock()

	cancel := func() {
		d.waitersMu.Lock()
		defer d.waitersMu.Unlock()
		for _, code := range codes {
			subs := d.subs[code]
			for i, c := range subs {
				if c == ch {
					d.subs[code] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
	}
	return ch, cancel
}

// acquire takes the single in-flight slot, queueing behind other callers.
func (d *dispatcher) acquire(ctx context.Context) error {
	select {
	case d.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stop:
		return ErrNotConnected
	}
}

// release frees the in-flight slot.
func (d *dispatcher) release() {
	select {
	case <-d.slot:
	default:
	}
}

// sendCommand performs one request/response exchange: acquire the slot,
// write opcode+payload, wait for a frame matching one of the expected codes
// or the device's explicit error response.
//
// An Err frame completes the exchange with a DeviceError. A timeout fails
// it with a TimeoutError. Context cancellation returns immediately to the
// caller, but the slot stays occupied until the device's reply or the
// protocol timeout: the wire exchange cannot be aborted mid-flight.
func (d *dispatcher) sendCommand(ctx context.Context, opcode byte, payload []byte, expect ...protocol.ResponseCode) ([]byte, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}

	reply := make(chan []byte, 1)
	codes := append([]protocol.ResponseCode{protocol.RespErr}, expect...)
	d.addWaiter(reply, codes...)

	frame := make([]byte, 1+len(payload))
	frame[0] = opcode
	copy(frame[1:], payload)
	if err := d.tr.WriteFrame(frame); err != nil {
		d.removeWaiter(reply)
		d.release()
		return nil, err
	}

	timer := time.NewTimer(d.timeout)
	select {
	case resp := <-reply:
		timer.Stop()
		d.release()
		if protocol.ResponseCode(resp[0]) == protocol.RespErr && !expectsErr(expect) {
			var status byte
			if len(resp) > 1 {
				status = resp[1]
			}
			return nil, &DeviceError{Opcode: opcode, Status: status}
		}
		return resp, nil

	case <-timer.C:
		d.removeWaiter(reply)
		d.release()
		return nil, &TimeoutError{Opcode: opcode}

	case <-ctx.Done():
		// The caller gave up, but the device may still answer. Hold the
		// slot until it does or the protocol timeout fires, so a queued
		// command cannot collide with the stale reply.
		go func() {
			select {
			case <-reply:
			case <-timer.C:
				d.removeWaiter(reply)
			case <-d.stop:
				d.removeWaiter(reply)
			}
			timer.Stop()
			d.release()
		}()
		return nil, ctx.Err()
	}
}

func expectsErr(expect []protocol.ResponseCode) bool {
	for _, c := range expect {
		if c == protocol.RespErr {
			return true
		}
	}
	return false
}

// fireAndForget writes a command that has no reply frame (advert sends).
// It still serializes through the slot to keep frame ordering intact.
func (d *dispatcher) fireAndForget(ctx context.Context, opcode byte, payload []byte) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	frame := make([]byte, 1+len(payload))
	frame[0] = opcode
	copy(frame[1:], payload)
	return d.tr.WriteFrame(frame)
}
