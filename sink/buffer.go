package sink

// accumulator is the ordered sequence of buffered chunks for the current
// epoch. Insertion order is the byte order of the final object. It is not
// safe for concurrent use; the sink's mutex guards it.
type accumulator struct {
	chunks [][]byte
}

// append stores its own copy of p, so callers may reuse the slice.
func (a *accumulator) append(p []byte) {
	chunk := make([]byte, len(p))
	copy(chunk, p)
	a.chunks = append(a.chunks, chunk)
}

// totalBytes recomputes from the live chunk sequence rather than from the
// unwritten counter: the two differ whenever a flush is in flight.
func (a *accumulator) totalBytes() int {
	var n int
	for _, c := range a.chunks {
		n += len(c)
	}
	return n
}

func (a *accumulator) len() int {
	return len(a.chunks)
}

// snapshot returns the current chunk sequence. Chunks are never mutated
// after append, so the snapshot stays valid while writers keep appending.
func (a *accumulator) snapshot() [][]byte {
	return a.chunks[:len(a.chunks):len(a.chunks)]
}

// trim drops the first n chunks: the ones covered by a committed rotating
// upload. Chunks appended while that upload was in flight are kept for the
// next epoch.
func (a *accumulator) trim(n int) {
	rest := a.chunks[n:]
	a.chunks = make([][]byte, len(rest))
	copy(a.chunks, rest)
}
