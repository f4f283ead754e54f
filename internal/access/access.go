// Package access implements the capability gate shared by the pricing
// engine and the collateral ledger: a permission check over a caller
// identity and an operation tag, independent of any credential scheme.
package access

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the caller does not hold the
// capability for the requested operation.
var ErrUnauthorized = errors.New("caller is not authorized for operation")

// Operation tags the capability an operation requires.
type Operation string

const (
	// OpConfigure covers every administrative setter.
	OpConfigure Operation = "configure"
	// OpReport covers push-feed price reporting.
	OpReport Operation = "report"
)

// Controller holds the admin identity plus per-operation grants.
type Controller struct {
	mu     sync.RWMutex
	admin  common.Address
	grants map[Operation]map[common.Address]bool
	l      *zap.Logger
}

// NewController returns a gate where admin holds OpConfigure and nobody
// else holds anything yet.
func NewController(admin common.Address, l *zap.Logger) *Controller {
	return &Controller{
		admin:  admin,
		grants: make(map[Operation]map[common.Address]bool),
		l:      l,
	}
}

// Require rejects with ErrUnauthorized unless caller holds op. The admin
// identity implicitly holds OpConfigure.
func (c *Controller) Require(caller common.Address, op Operation) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if op == OpConfigure && caller == c.admin {
		return nil
	}
	if c.grants[op][caller] {
		return nil
	}
	return ErrUnauthorized
}

// Holds reports whether holder currently has an explicit grant for op.
func (c *Controller) Holds(holder common.Address, op Operation) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.grants[op][holder]
}

// Grant gives holder the capability for op. Only the admin may grant.
func (c *Controller) Grant(caller common.Address, op Operation, holder common.Address) error {
	if err := c.Require(caller, OpConfigure); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grants[op] == nil {
		c.grants[op] = make(map[common.Address]bool)
	}
	c.grants[op][holder] = true
	c.l.Info("capability granted",
		zap.String("operation", string(op)),
		zap.String("holder", holder.Hex()))
	return nil
}

// Revoke removes holder's capability for op. Only the admin may revoke.
func (c *Controller) Revoke(caller common.Address, op Operation, holder common.Address) error {
	if err := c.Require(caller, OpConfigure); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.grants[op], holder)
	c.l.Info("capability revoked",
		zap.String("operation", string(op)),
		zap.String("holder", holder.Hex()))
	return nil
}
