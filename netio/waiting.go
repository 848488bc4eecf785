// File: netio/waiting.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness multiplexer over many resources with a cross-goroutine wake-up.

package netio

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"github.com/momentics/hioload-net/reactor"
	"go.uber.org/zap"
)

// Event is one result of a WaitingObject. Resource is nil for wake-ups,
// in which case Reason carries the value passed to WakeUp. A registered
// resource whose timeout elapsed is reported with an empty Mask.
type Event struct {
	Resource api.Resource
	Mask     api.EventMask
	Reason   int
}

// IsWakeUp reports whether the event was produced by WakeUp.
func (e Event) IsWakeUp() bool { return e.Resource == nil }

type registration struct {
	res      api.Resource
	mask     api.EventMask
	deadline time.Time

	// delegated registrations belong to a WaitFd call in progress
	delegated bool
	fired     bool
	got       api.EventMask
}

// WaitingObject waits for readiness across a changing set of resources.
// Registrations are one-shot: a resource is dropped from the active set
// as soon as it is reported and must be added again to be watched.
//
// A WaitingObject is driven by a single goroutine. WakeUp may be called
// from any goroutine.
type WaitingObject struct {
	svc    *Services
	logger *zap.Logger

	reactor reactor.Reactor
	waker   *transport.Waker
	events  []reactor.Event

	regs    map[uintptr]*registration
	pending *queue.Queue // of Event, fired but not consumed

	wakeMu  sync.Mutex
	reasons *queue.Queue // of int
	wakes   atomic.Uint64

	closed atomic.Bool
}

var _ api.WaitHandler = (*WaitingObject)(nil)

// NewWaitingObject creates the multiplexer and its wake channel.
func NewWaitingObject(svc *Services) (*WaitingObject, error) {
	svc = orDefault(svc)
	r, err := reactor.NewReactor()
	if err != nil {
		return nil, ioError("reactor failed", err)
	}
	w, err := transport.NewWaker()
	if err != nil {
		r.Close()
		return nil, ioError("wake channel failed", err)
	}
	if err := r.Arm(w.Fd(), api.EventReadable); err != nil {
		w.Close()
		r.Close()
		return nil, ioError("wake channel failed", err)
	}
	return &WaitingObject{
		svc:     svc,
		logger:  svc.Logger(),
		reactor: r,
		waker:   w,
		events:  make([]reactor.Event, 64),
		regs:    make(map[uintptr]*registration),
		pending: queue.New(),
		reasons: queue.New(),
	}, nil
}

// Add watches res for the events in mask (the resource's default mask
// when empty) until timeout elapses. api.UseResourceTimeout takes the
// resource's own timeout. A previous registration of res is replaced.
func (w *WaitingObject) Add(res api.Resource, mask api.EventMask, timeout time.Duration) error {
	if w.closed.Load() {
		return closedError("add on closed waiting object")
	}
	if res == nil {
		return api.NewError(api.KindInvalidAddress, "nil resource")
	}
	if mask == api.EventNone {
		mask = res.DefaultWaitMask()
	}
	if timeout == api.UseResourceTimeout {
		timeout = res.Timeout()
	}
	reg := &registration{res: res, mask: mask, deadline: api.Deadline(timeout)}
	return w.arm(res.Fd(), reg)
}

func (w *WaitingObject) arm(fd uintptr, reg *registration) error {
	if err := w.reactor.Arm(fd, reg.mask); err != nil {
		return ioError("register failed", err)
	}
	w.regs[fd] = reg
	return nil
}

// Remove stops watching res and drops its unconsumed events. Unknown
// resources are ignored.
func (w *WaitingObject) Remove(res api.Resource) error {
	if res == nil || w.closed.Load() {
		return nil
	}
	fd := res.Fd()
	if reg, ok := w.regs[fd]; ok && reg.res == res {
		delete(w.regs, fd)
		if err := w.reactor.Disarm(fd); err != nil {
			return ioError("unregister failed", err)
		}
	}
	for i, n := 0, w.pending.Length(); i < n; i++ {
		ev := w.pending.Remove().(Event)
		if ev.Resource != res {
			w.pending.Add(ev)
		}
	}
	return nil
}

// HasItems reports whether any resource is registered.
func (w *WaitingObject) HasItems() bool {
	for _, reg := range w.regs {
		if !reg.delegated {
			return true
		}
	}
	return false
}

// Len returns the number of registered resources.
func (w *WaitingObject) Len() int {
	n := 0
	for _, reg := range w.regs {
		if !reg.delegated {
			n++
		}
	}
	return n
}

// Next blocks until a registered resource is ready or timed out, or a
// WakeUp arrives, and consumes that event.
func (w *WaitingObject) Next() (Event, error) {
	return w.fetch(true)
}

// Peek is Next without consuming: repeated calls return the same event
// until Next takes it.
func (w *WaitingObject) Peek() (Event, error) {
	return w.fetch(false)
}

func (w *WaitingObject) fetch(consume bool) (Event, error) {
	for {
		if w.closed.Load() {
			return Event{}, closedError("wait on closed waiting object")
		}
		if w.pending.Length() > 0 {
			if consume {
				return w.pending.Remove().(Event), nil
			}
			return w.pending.Peek().(Event), nil
		}
		if err := w.poll(time.Time{}); err != nil {
			return Event{}, err
		}
	}
}

// Sleep waits for d while still collecting events. It returns true when
// the whole duration passed undisturbed and false as soon as an event is
// pending; that event must be drained with Next before sleeping again.
func (w *WaitingObject) Sleep(d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	for {
		if w.closed.Load() {
			return false, closedError("sleep on closed waiting object")
		}
		if w.pending.Length() > 0 {
			return false, nil
		}
		if !time.Now().Before(deadline) {
			return true, nil
		}
		if err := w.poll(deadline); err != nil {
			return false, err
		}
	}
}

// WakeUp makes exactly one pending or future Next, Peek, Sleep or
// delegated wait return with reason. Safe for concurrent use.
func (w *WaitingObject) WakeUp(reason int) error {
	if w.closed.Load() {
		return closedError("wake-up on closed waiting object")
	}
	w.wakeMu.Lock()
	w.reasons.Add(reason)
	w.wakeMu.Unlock()
	w.wakes.Add(1)
	w.svc.Metrics().Add(MetricWakeUps, 1)
	if err := w.waker.Signal(); err != nil {
		return ioError("wake-up failed", err)
	}
	return nil
}

// WakeCount returns how many times WakeUp has been called.
func (w *WaitingObject) WakeCount() uint64 { return w.wakes.Load() }

// poll performs one reactor wait bounded by limit and by the earliest
// registration deadline, and queues whatever fired.
func (w *WaitingObject) poll(limit time.Time) error {
	earliest := limit
	for _, reg := range w.regs {
		if !reg.deadline.IsZero() && (earliest.IsZero() || reg.deadline.Before(earliest)) {
			earliest = reg.deadline
		}
	}

	n, err := w.reactor.Wait(w.events, api.Remaining(earliest))
	if err != nil {
		return ioError("wait failed", err)
	}

	// wake-ups are queued ahead of descriptor events of the same round
	for _, ev := range w.events[:n] {
		if ev.Fd == w.waker.Fd() {
			w.collectWakeUps()
			break
		}
	}
	for _, ev := range w.events[:n] {
		if ev.Fd == w.waker.Fd() {
			continue
		}
		reg, ok := w.regs[ev.Fd]
		if !ok {
			continue
		}
		w.fire(ev.Fd, reg, ev.Mask)
	}

	now := time.Now()
	var expired []uintptr
	for fd, reg := range w.regs {
		if !reg.deadline.IsZero() && !now.Before(reg.deadline) {
			expired = append(expired, fd)
		}
	}
	slices.Sort(expired)
	for _, fd := range expired {
		reg := w.regs[fd]
		if err := w.reactor.Disarm(fd); err != nil {
			w.logger.Debug("disarm expired registration", zap.Uintptr("fd", fd), zap.Error(err))
		}
		w.fire(fd, reg, api.EventNone)
	}
	return nil
}

func (w *WaitingObject) fire(fd uintptr, reg *registration, mask api.EventMask) {
	delete(w.regs, fd)
	if reg.delegated {
		reg.fired = true
		reg.got = mask
		return
	}
	w.svc.Metrics().Add(MetricRegistrationsHit, 1)
	w.pending.Add(Event{Resource: reg.res, Mask: mask})
}

func (w *WaitingObject) collectWakeUps() {
	if err := w.waker.Drain(); err != nil {
		w.logger.Debug("drain wake channel", zap.Error(err))
	}
	w.wakeMu.Lock()
	for w.reasons.Length() > 0 {
		w.pending.Add(Event{Reason: w.reasons.Remove().(int)})
	}
	w.wakeMu.Unlock()
	if err := w.reactor.Arm(w.waker.Fd(), api.EventReadable); err != nil {
		w.logger.Error("re-arm wake channel", zap.Error(err))
	}
}

// takeWakeUp removes the oldest pending wake-up, if any.
func (w *WaitingObject) takeWakeUp() (Event, bool) {
	var (
		found Event
		ok    bool
	)
	for i, n := 0, w.pending.Length(); i < n; i++ {
		ev := w.pending.Remove().(Event)
		if !ok && ev.IsWakeUp() {
			found, ok = ev, true
			continue
		}
		w.pending.Add(ev)
	}
	return found, ok
}

// WaitFd implements api.WaitHandler so that resources can delegate their
// blocking waits here. Events of other registrations that fire meanwhile
// stay queued. A WakeUp fails the wait with an Interrupted error carrying
// the reason.
func (w *WaitingObject) WaitFd(fd uintptr, mask api.EventMask, deadline time.Time) (api.EventMask, error) {
	if w.closed.Load() {
		return api.EventNone, closedError("wait on closed waiting object")
	}
	prev := w.regs[fd]
	reg := &registration{mask: mask, deadline: deadline, delegated: true}
	if err := w.arm(fd, reg); err != nil {
		return api.EventNone, err
	}
	restore := func() {
		if prev == nil {
			return
		}
		if err := w.arm(fd, prev); err != nil {
			w.logger.Debug("restore registration", zap.Uintptr("fd", fd), zap.Error(err))
		}
	}

	for {
		if reg.fired {
			restore()
			if reg.got == api.EventNone {
				return api.EventNone, timeoutError("wait timed out")
			}
			return reg.got, nil
		}
		if ev, ok := w.takeWakeUp(); ok {
			w.dropDelegated(fd, reg)
			restore()
			return api.EventNone, api.NewError(api.KindInterrupted, "wait interrupted").
				WithContext("reason", ev.Reason)
		}
		if err := w.poll(deadline); err != nil {
			w.dropDelegated(fd, reg)
			restore()
			return api.EventNone, err
		}
	}
}

func (w *WaitingObject) dropDelegated(fd uintptr, reg *registration) {
	if cur, ok := w.regs[fd]; ok && cur == reg {
		delete(w.regs, fd)
		if err := w.reactor.Disarm(fd); err != nil {
			w.logger.Debug("disarm delegated wait", zap.Uintptr("fd", fd), zap.Error(err))
		}
	}
}

// Close releases the reactor and the wake channel. Registered resources
// are not closed.
func (w *WaitingObject) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.regs = nil
	werr := w.waker.Close()
	if err := w.reactor.Close(); err != nil {
		return ioError("close failed", err)
	}
	if werr != nil {
		return ioError("close failed", werr)
	}
	return nil
}
