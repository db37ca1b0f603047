package writer

import "fmt"

// StorageWriteError is a failed durable write. Nothing is enqueued after
// one.
type StorageWriteError struct {
	Bucket string
	Key    string
	Err    error
}

func (swe *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to write %s/%s: %s", swe.Bucket, swe.Key, swe.Err)
}

func (swe *StorageWriteError) Unwrap() error {
	return swe.Err
}
