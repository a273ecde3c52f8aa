// Package conv formats integers without fmt or strconv so drivers stay
// usable on TinyGo targets.
package conv

const hexd = "0123456789ABCDEF"

// Utoa writes base-10 n into the tail of buf and returns the used slice.
// buf should be at least 20 bytes for uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf[i:]
}

// U32 returns n in base 10.
func U32(n uint32) string {
	var b [10]byte
	return string(Utoa(b[:], uint64(n)))
}

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// Hex32 returns n as 8 uppercase hex digits.
func Hex32(n uint32) string {
	var b [8]byte
	return string(U32Hex(b[:], n))
}

// HexBytes renders p as uppercase hex pairs separated by sep (0 for none).
func HexBytes(p []byte, sep byte) string {
	if len(p) == 0 {
		return ""
	}
	n := len(p) * 2
	if sep != 0 {
		n += len(p) - 1
	}
	out := make([]byte, 0, n)
	for i, b := range p {
		if i > 0 && sep != 0 {
			out = append(out, sep)
		}
		out = append(out, hexd[b>>4], hexd[b&0xF])
	}
	return string(out)
}
