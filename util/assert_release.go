//go:build !debug

package util

import "sync"

// Assert, AssertFunc and AssertMutexHeld are no-ops in release builds; the
// checked invariant is still documented at each call site, but paying for
// runtime.Caller on every hot-path check isn't worth it outside of
// debug-tagged test runs. Build with -tags debug to get panics instead of
// silently trusting the invariant.

func Assert(cond bool) {}

func AssertFunc(fn func() bool) {}

func AssertMutexHeld(mu *sync.Mutex) {}
