// Package manager implements the optimistic mutation protocol that keeps the
// in-memory entity stores, the local snapshot cache, and the remote store
// consistent.
//
// One manager owns one data domain: Courses owns courses and assignments,
// Planner owns events and categories. Every mutation of a domain's stores,
// whether a local call or a realtime reconciliation, serializes through the domain's
// single lock, so observers never see a torn collection. Remote calls run as
// independent goroutines whose continuations re-acquire the lock before
// touching the stores; completions of different operations may therefore land
// in any order, and the last completion wins the final value at an identifier.
//
// The protocol per logical operation:
//
//	Idle → OptimisticApplied → RemotePending → Confirmed
//	                           RemotePending → RetryPending → Confirmed | RolledBack
//	                           RemotePending → RolledBack
//
// Mutating calls return a Pending handle in addition to mutating the store,
// so callers and tests can observe the remote leg's outcome instead of
// inferring it from store state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSignInDeclined settles a Pending whose operation was deferred to a
// sign-in prompt that the user dismissed. The operation was dropped; the
// store was never touched.
var ErrSignInDeclined = errors.New("sign-in declined, operation dropped")

// ValidationError reports a precondition failure. The mutation was never
// applied anywhere.
type ValidationError struct {
	Table    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: %s", e.Table, strings.Join(e.Problems, "; "))
}

// Pending is the handle to an in-flight operation's remote leg. The
// optimistic store mutation has already happened when a Pending is returned;
// Wait settles with the terminal outcome after any rollback or reload has
// been applied. Callers that only care about optimistic state may discard it.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// settled returns an already-resolved Pending, used for synchronous no-ops.
func settled(err error) *Pending {
	p := newPending()
	p.settle(err)
	return p
}

func (p *Pending) settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the operation has reached a terminal state.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the terminal outcome. Only valid after Done is closed.
func (p *Pending) Err() error { return p.err }

// Wait blocks until the operation settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate is the authentication collaborator. The engine never renders a prompt
// itself; it asks the gate, and the gate reports back on the user's decision.
type Gate interface {
	// IsAuthenticated reports whether mutations may proceed right now.
	IsAuthenticated() bool
	// PromptSignIn asks the collaborator to obtain a session and invoke
	// resume with the outcome. resume must be called exactly once.
	PromptSignIn(ctx context.Context, resume func(ok bool))
}

// OpenGate is a Gate that is always authenticated, for wiring the engine in
// single-user contexts and tests.
type OpenGate struct{}

func (OpenGate) IsAuthenticated() bool                          { return true }
func (OpenGate) PromptSignIn(_ context.Context, resume func(bool)) { resume(true) }

// gated defers op until the gate reports an authenticated session. If the
// session already exists, op runs inline. If the prompt is declined, the
// captured operation is dropped and the Pending settles with
// ErrSignInDeclined.
func gated(ctx context.Context, gate Gate, op func() (*Pending, error)) (*Pending, error) {
	if gate.IsAuthenticated() {
		return op()
	}
	p := newPending()
	gate.PromptSignIn(ctx, func(ok bool) {
		if !ok {
			p.settle(ErrSignInDeclined)
			return
		}
		inner, err := op()
		if err != nil {
			p.settle(err)
			return
		}
		go func() {
			<-inner.Done()
			p.settle(inner.Err())
		}()
	})
	return p, nil
}
