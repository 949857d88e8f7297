package protocol

// Stuff writes src into dst, replacing every control byte with ESC followed by the
// byte XOR EscapeMask. It returns the number of bytes written.
//
// Capacity is checked before every byte is written. When dst cannot hold the
// stuffed form of src, Stuff returns ErrBufferExhausted and the contents of dst
// are undefined.
func Stuff(dst, src []byte) (int, error) {
	n := 0

	for _, b := range src {
		if IsControl(b) {
			if n+2 > len(dst) {
				return 0, ErrBufferExhausted
			}

			dst[n] = ESC
			dst[n+1] = b ^ EscapeMask
			n += 2
			continue
		}

		if n+1 > len(dst) {
			return 0, ErrBufferExhausted
		}

		dst[n] = b
		n++
	}

	return n, nil
}

// Unstuff is the inverse of Stuff. An ESC byte marks the following byte as escaped,
// which is XORed with EscapeMask and written. A trailing ESC with nothing after it
// is dropped.
func Unstuff(dst, src []byte) (int, error) {
	n := 0
	escaped := false

	for _, b := range src {
		if !escaped && b == ESC {
			escaped = true
			continue
		}

		if n >= len(dst) {
			return 0, ErrBufferExhausted
		}

		if escaped {
			b ^= EscapeMask
			escaped = false
		}

		dst[n] = b
		n++
	}

	return n, nil
}

// StuffedLen returns the length of src once stuffed.
func StuffedLen(src []byte) int {
	n := len(src)

	for _, b := range src {
		if IsControl(b) {
			n++
		}
	}

	return n
}

// AppendStuffed appends the stuffed form of src to dst.
func AppendStuffed(dst, src []byte) []byte {
	for _, b := range src {
		if IsControl(b) {
			dst = append(dst, ESC, b^EscapeMask)
			continue
		}

		dst = append(dst, b)
	}

	return dst
}
