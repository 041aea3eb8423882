// Package service implements the entity stores and derived statistics that
// make up the aggregation core. Each store reconciles three sources of truth
// into one consistent in-memory collection: the initial backend load, the
// realtime change feed, and locally-originated optimistic writes.
package service

import "time"

// tempIDSource hands out temporary ids for optimistic entries. Ids are
// negative and strictly decreasing, so they can never collide with the
// backend's positive serial space nor with each other. Callers hold their
// store's mutex.
type tempIDSource struct {
	last int64
}

func (s *tempIDSource) next() int64 {
	id := -time.Now().UnixNano()
	if id >= s.last {
		id = s.last - 1
	}
	s.last = id
	return id
}
