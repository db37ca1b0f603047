package buffer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oxtoacart/bpool"
)

func TestReadAllCopiesOutOfPool(t *testing.T) {
	pool := bpool.NewSizedBufferPool(1, 64)

	data, err := ReadAll(pool, strings.NewReader("tile-bytes"))
	if err != nil {
		t.Fatalf("Unexpected error reading: %s", err)
	}

	// reuse the pooled buffer, the returned slice must not change
	buf := pool.Get()
	buf.WriteString("overwritten")
	pool.Put(buf)

	if !bytes.Equal(data, []byte("tile-bytes")) {
		t.Fatalf("Expected copied bytes, got %#v", string(data))
	}
}

func TestReadAllOnDemand(t *testing.T) {
	data, err := ReadAll(&OnDemandBufferManager{}, strings.NewReader(""))
	if err != nil {
		t.Fatalf("Unexpected error reading: %s", err)
	}
	if len(data) != 0 {
		t.Fatalf("Expected empty result, got %d bytes", len(data))
	}
}
