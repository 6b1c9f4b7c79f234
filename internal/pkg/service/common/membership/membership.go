// Package membership answers the question "is this node the master right now".
//
// The answer comes from an external oracle, the package does not implement any consensus.
// Master and Follower are fixed roles, Switchable is controlled by the caller
// and EtcdElection delegates to the etcd election recipe.
package membership

import (
	"context"

	"go.uber.org/atomic"
)

type Oracle interface {
	IsMaster(ctx context.Context) (bool, error)
}

type fixed bool

// Master returns an oracle which always reports the master role.
func Master() Oracle {
	return fixed(true)
}

// Follower returns an oracle which never reports the master role.
func Follower() Oracle {
	return fixed(false)
}

func (f fixed) IsMaster(context.Context) (bool, error) {
	return bool(f), nil
}

// Switchable role, it is used in tests and in the standalone mode.
type Switchable struct {
	master *atomic.Bool
	err    *atomic.Error
}

func NewSwitchable(master bool) *Switchable {
	return &Switchable{master: atomic.NewBool(master), err: atomic.NewError(nil)}
}

func (s *Switchable) IsMaster(context.Context) (bool, error) {
	if err := s.err.Load(); err != nil {
		return false, err
	}
	return s.master.Load(), nil
}

func (s *Switchable) Set(master bool) {
	s.master.Store(master)
}

// SetError makes IsMaster fail until the error is cleared by SetError(nil).
func (s *Switchable) SetError(err error) {
	s.err.Store(err)
}
