// Package utils holds byte helpers shared by the stream layer and the
// benchmark commands.
package utils

// JoinBytes concatenates chunks into one newly allocated slice. The send path
// uses it to coalesce queued chunks into a single write.
//
// Parameters:
//   - chunks: Byte slices to concatenate, in order
//
// Returns:
//   - A new slice holding every chunk back to back
func JoinBytes(chunks ...[]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}

	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}

	return out
}

// RepeatToLength fills a new slice of size n by repeating pattern. An empty
// pattern yields a zero-filled slice.
//
// Parameters:
//   - pattern: Bytes to repeat
//   - n: Length of the result
//
// Returns:
//   - A slice of n bytes
func RepeatToLength(pattern []byte, n int) []byte {
	out := make([]byte, n)
	if len(pattern) == 0 {
		return out
	}

	for i := 0; i < n; i += len(pattern) {
		copy(out[i:], pattern)
	}

	return out
}
