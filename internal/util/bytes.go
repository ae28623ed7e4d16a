package util

// WipeBytes zeroes each buffer in place. Buffers handed to memguard are
// already wiped; this covers copies that never reach an enclave.
func WipeBytes(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
