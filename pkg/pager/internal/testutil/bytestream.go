// Package testutil turns fuzz input into deterministic pager operations.
package testutil

// ByteStream hands out values derived from a fuzz input one byte at a
// time. Once the input is used up every read returns zero, so the same
// input always yields the same sequence.
type ByteStream struct {
	buf []byte
	pos int
}

// NewByteStream returns a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{buf: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.buf)
}

// Byte returns the next byte, or 0 once exhausted.
func (s *ByteStream) Byte() byte {
	if s.pos >= len(s.buf) {
		return 0
	}

	b := s.buf[s.pos]
	s.pos++

	return b
}

// Intn returns a value in [0, n). n <= 0 returns 0.
func (s *ByteStream) Intn(n int) int {
	if n <= 0 {
		return 0
	}

	return int(s.Byte()) % n
}

// Percent reports whether the next byte falls under rate out of 100.
func (s *ByteStream) Percent(rate int) bool {
	return s.Intn(100) < rate
}

// Bool returns the low bit of the next byte.
func (s *ByteStream) Bool() bool {
	return s.Byte()&1 == 1
}
