package buffer

import (
	"bytes"
	"io"
)

// BufferManager hands out scratch buffers for reading upstream responses.
// bpool.SizedBufferPool satisfies it.
type BufferManager interface {
	Get() *bytes.Buffer
	Put(*bytes.Buffer)
}

type OnDemandBufferManager struct{}

func (bm *OnDemandBufferManager) Get() *bytes.Buffer {
	return &bytes.Buffer{}
}

func (bm *OnDemandBufferManager) Put(buf *bytes.Buffer) {
}

// ReadAll reads r through a pooled buffer and returns a copy of the bytes,
// so the buffer can go back to the pool straight away.
func ReadAll(bm BufferManager, r io.Reader) ([]byte, error) {
	buf := bm.Get()
	defer bm.Put(buf)

	buf.Reset()
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
