// Package dedup collapses concurrent resolutions of the same key into one
// in-flight call.
package dedup

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Group tracks outstanding resolutions by key. The zero value is ready to use.
type Group struct {
	sf       singleflight.Group
	inFlight atomic.Int64
}

// JoinOrCreate runs factory for key unless a call for key is already
// outstanding, in which case it waits for that call's result. The factory
// runs on a context detached from ctx so one caller giving up does not fail
// the others; ctx only bounds this caller's wait. shared reports whether the
// result was delivered to more than one caller.
func (g *Group) JoinOrCreate(ctx context.Context, key string, factory func(context.Context) (string, error)) (string, error, bool) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		g.inFlight.Add(1)
		defer g.inFlight.Add(-1)
		return factory(detached)
	})
	select {
	case res := <-ch:
		v, _ := res.Val.(string)
		return v, res.Err, res.Shared
	case <-ctx.Done():
		return "", ctx.Err(), false
	}
}

// InFlight is the number of factories currently running.
func (g *Group) InFlight() int {
	return int(g.inFlight.Load())
}
