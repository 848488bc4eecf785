package main

import (
	"context"
	"errors"
	"io"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
)

// wake-up reasons of the relay loop
const (
	wakeInput = iota + 1
	wakeCancel
)

type canceler interface {
	Cancel() bool
}

// relay copies in to st and st to out on a single goroutine driving a
// WaitingObject. A reader goroutine hands input chunks over and wakes the
// loop; end of input half-closes the stream. relay returns once the peer
// closed its side or ctx is done.
func relay(ctx context.Context, svc *netio.Services, st *netio.Stream, in io.Reader, out io.Writer) (err error) {
	wo, err := netio.NewWaitingObject(svc)
	if err != nil {
		return err
	}

	chunks := make(chan []byte, 16)
	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, rerr := in.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-quit:
					return
				}
				_ = wo.WakeUp(wakeInput)
			}
			if rerr != nil {
				// the close must be visible before the wake-up is handled
				close(chunks)
				_ = wo.WakeUp(wakeInput)
				return
			}
		}
	}()
	stopWatch := context.AfterFunc(ctx, func() { _ = wo.WakeUp(wakeCancel) })

	defer func() {
		stopWatch()
		close(quit)
		if c, ok := in.(canceler); ok {
			c.Cancel()
			<-done
		}
		if cerr := wo.Close(); err == nil {
			err = cerr
		}
	}()

	if err := wo.Add(st, api.EventReadable, api.Infinite); err != nil {
		return err
	}
	input := (<-chan []byte)(chunks)
	buf := make([]byte, 32<<10)
	for {
		ev, err := wo.Next()
		if err != nil {
			return err
		}
		if ev.IsWakeUp() {
			if ev.Reason == wakeCancel {
				return ctx.Err()
			}
			if err := forward(st, &input); err != nil {
				return err
			}
			continue
		}

		n, err := st.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := wo.Add(st, api.EventReadable, api.Infinite); err != nil {
			return err
		}
	}
}

// forward writes every queued chunk to st. A closed channel half-closes
// the stream once and is then disabled.
func forward(st *netio.Stream, chunks *<-chan []byte) error {
	for {
		select {
		case c, ok := <-*chunks:
			if !ok {
				*chunks = nil
				return st.CloseOutput()
			}
			if _, err := st.Write(c); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
