package identity

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/watch"
)

// SessionOptions controls session initialization. SuppressWatch skips the
// live account watch; registration flows pass it explicitly instead of
// flipping a process-wide toggle.
type SessionOptions struct {
	SuppressWatch bool
}

// Session is an active, gated principal session. The gate re-evaluates on
// every account change, not just at login: approval can be revoked at any
// time and the session terminates within one notification cycle.
type Session struct {
	Account domain.Account

	sub    *watch.Subscription
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// StartSession resolves the principal and, unless suppressed, watches its
// account document for the lifetime of the session. Close is mandatory
// teardown and cancels the watch.
func (r *Resolver) StartSession(ctx context.Context, principalID string, opts SessionOptions) (*Session, error) {
	acc, err := r.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}

	s := &Session{Account: acc, done: make(chan struct{})}
	if opts.SuppressWatch {
		return s, nil
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.sub = r.watcher.Observe(watch.AccountKey(principalID))
	go r.gateLoop(watchCtx, s, principalID)
	return s, nil
}

// Done is closed when the session has been terminated, either by Close or by
// the approval gate.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended. It is nil until Done is closed and nil
// after a plain Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close signs the session out and releases the watch.
func (s *Session) Close() {
	s.terminate(nil)
}

func (s *Session) terminate(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.sub != nil {
			s.sub.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

func (r *Resolver) gateLoop(ctx context.Context, s *Session, principalID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.sub.Updates():
		}

		acc, err := r.store.GetAccount(ctx, principalID)
		if err != nil {
			r.logger.WithError(err).WithField("account", principalID).Error("gate re-evaluation failed")
			continue
		}
		if acc == nil {
			s.terminate(domain.ErrAccountNotFound)
			return
		}
		if acc.GateApproved() {
			continue
		}

		// Revoked mid-session. Give in-flight work a moment to settle, then
		// re-check once in case the flag flipped back.
		if r.graceDelay > 0 {
			timer := time.NewTimer(r.graceDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if again, err := r.store.GetAccount(ctx, principalID); err == nil && again != nil && again.GateApproved() {
				continue
			}
		}
		r.logger.WithFields(log.Fields{"account": principalID}).Warn("admin approval revoked, terminating session")
		s.terminate(domain.ErrNotApproved)
		return
	}
}
