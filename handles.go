package kms

import "sync"

type handleKey struct {
	dev Device
	id  uint32
}

// handleRefs counts the buffer objects sharing a kernel handle. Importing a buffer that
// a device already holds yields the existing handle, so the handle is only destroyed
// when its last owner is.
var handleRefs = struct {
	sync.Mutex
	refs map[handleKey]int
}{refs: make(map[handleKey]int)}

func acquireHandle(h Handle) {
	handleRefs.Lock()
	defer handleRefs.Unlock()
	handleRefs.refs[handleKey{h.dev, h.id}]++
}

// releaseHandleRef drops one reference to h and reports whether it was the last one.
func releaseHandleRef(h Handle) bool {
	handleRefs.Lock()
	defer handleRefs.Unlock()
	key := handleKey{h.dev, h.id}
	switch n := handleRefs.refs[key]; n {
	case 0, 1:
		delete(handleRefs.refs, key)
		return true
	default:
		handleRefs.refs[key] = n - 1
		return false
	}
}
