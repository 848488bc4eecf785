// File: netio/connect_race.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Parallel non-blocking connect over the resolved candidates of an address.

package netio

import (
	"slices"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"go.uber.org/zap"
)

type candidate struct {
	fd  uintptr
	rec Record
}

// connectRace tracks the candidate sockets of one connect attempt. It is
// not safe for concurrent use.
type connectRace struct {
	pending []candidate
	lastErr error
	logger  *zap.Logger
}

// startRace opens one non-blocking socket per candidate record, up to the
// configured cap, and issues connect on each of them.
func (s *StreamSource) startRace() error {
	logger := s.svc.Logger()
	recs := s.addr.records
	if limit := s.svc.Config().ConnectCandidates; len(recs) > limit {
		recs = recs[:limit]
	}
	race := &connectRace{logger: logger}
	for _, rec := range recs {
		fd, err := transport.Socket(rec.transportFamily(), transport.SockStream)
		if err != nil {
			race.lastErr = err
			logger.Debug("candidate socket failed", zap.Stringer("family", rec.Family), zap.Error(err))
			continue
		}
		err = transport.Connect(fd, rec.raw)
		if err != nil && !transport.IsInProgress(err) && !transport.IsWouldBlock(err) {
			race.lastErr = err
			transport.Close(fd)
			logger.Debug("candidate connect failed", zap.String("target", rec.AddrPort().String()), zap.Error(err))
			continue
		}
		race.pending = append(race.pending, candidate{fd: fd, rec: rec})
	}
	slices.SortFunc(race.pending, func(a, b candidate) int {
		switch {
		case a.fd < b.fd:
			return -1
		case a.fd > b.fd:
			return 1
		}
		return 0
	})
	if len(race.pending) == 0 {
		s.svc.Metrics().Add(MetricConnectFailures, 1)
		return s.connectFailed(race.lastErr)
	}
	s.race = race
	logger.Debug("connect race started", zap.String("addr", s.addr.String(false)), zap.Int("candidates", len(race.pending)))
	return nil
}

// wait multiplexes all pending candidates in one poll call.
func (r *connectRace) wait(mask api.EventMask, deadline time.Time) (api.EventMask, error) {
	if mask == api.EventNone {
		mask = api.EventWritable | api.EventExceptional
	}
	fds := make([]transport.PollFd, len(r.pending))
	for i, c := range r.pending {
		fds[i] = transport.PollFd{Fd: c.fd, Events: mask}
	}
	for {
		if _, err := transport.Poll(fds, api.Remaining(deadline)); err != nil {
			return api.EventNone, ioError("poll failed", err)
		}
		var got api.EventMask
		for _, p := range fds {
			got |= p.Revents
		}
		if got != api.EventNone {
			return got, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return api.EventNone, timeoutError("connect timed out")
		}
	}
}

// connect runs the race to completion: the first candidate whose
// SO_ERROR probe is clean wins and every other candidate is closed.
func (s *StreamSource) connect() (*Stream, error) {
	deadline := api.Deadline(s.timeout)
	if s.race == nil {
		if err := s.startRace(); err != nil {
			return nil, err
		}
	}
	race := s.race
	for len(race.pending) > 0 {
		fds := make([]transport.PollFd, len(race.pending))
		for i, c := range race.pending {
			fds[i] = transport.PollFd{Fd: c.fd, Events: api.EventWritable | api.EventExceptional}
		}
		if _, err := transport.Poll(fds, api.Remaining(deadline)); err != nil {
			s.abortRace()
			return nil, ioError("poll failed", err)
		}

		var (
			winner *candidate
			still  []candidate
		)
		for i, p := range fds {
			c := race.pending[i]
			if p.Revents == api.EventNone || winner != nil {
				still = append(still, c)
				continue
			}
			if err := transport.SocketError(c.fd); err != nil {
				race.lastErr = err
				transport.Close(c.fd)
				race.logger.Debug("candidate refused", zap.String("target", c.rec.AddrPort().String()), zap.Error(err))
				continue
			}
			winner = &c
		}
		race.pending = still

		if winner != nil {
			s.abortRace()
			s.svc.Metrics().Add(MetricConnected, 1)
			peer := &Address{records: []Record{winner.rec}, resolver: s.addr.resolver}
			s.lastPeer = peer
			race.logger.Debug("connected", zap.Uintptr("fd", winner.fd), zap.String("peer", peer.String(false)))
			return newStream(s.svc, winner.fd), nil
		}
		if len(race.pending) > 0 && !deadline.IsZero() && !time.Now().Before(deadline) {
			s.abortRace()
			s.svc.Metrics().Add(MetricConnectFailures, 1)
			return nil, s.connectFailed(timeoutError("connect timed out"))
		}
	}
	s.race = nil
	s.svc.Metrics().Add(MetricConnectFailures, 1)
	return nil, s.connectFailed(race.lastErr)
}

// abortRace closes every pending candidate and clears the bookkeeping so
// the next Next starts a fresh race.
func (s *StreamSource) abortRace() {
	if s.race == nil {
		return
	}
	for _, c := range s.race.pending {
		transport.Close(c.fd)
	}
	s.race = nil
}

func (s *StreamSource) connectFailed(cause error) error {
	e := api.NewError(api.KindConnectFailed, "connect failed").
		WithContext("address", s.addr.String(false))
	if cause != nil {
		e.WithErrno(transport.Errno(cause)).Wrap(cause)
	}
	return e
}
