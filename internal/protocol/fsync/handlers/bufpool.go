package handlers

import "sync"

// copyBufferSize is the chunk size used to move file data between the
// network and the store.
const copyBufferSize = 32 << 10

// copyBufferPool provides reusable copy buffers for GET and PUT so a busy
// server does not allocate one per transfer.
var copyBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

func getCopyBuffer() *[]byte {
	return copyBufferPool.Get().(*[]byte)
}

func putCopyBuffer(buf *[]byte) {
	copyBufferPool.Put(buf)
}
