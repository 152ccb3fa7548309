package bitreader

import "golang.org/x/exp/mmap"

// memSource is an in-memory Source, used by tests and by small files already
// held in memory.
type memSource struct {
	b []byte
}

// FromBytes builds a Reader directly over an in-memory byte slice. Intended
// for tests and for small, already-loaded inputs.
func FromBytes(b []byte) *Reader {
	return New(memSource{b: b})
}

func (m memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.b)) {
		return 0, nil
	}
	n := copy(p, m.b[off:])
	return n, nil
}

func (m memSource) Size() int64 {
	return int64(len(m.b))
}

// mappedSource adapts golang.org/x/exp/mmap's read-only memory-mapped
// ReaderAt to Source.
type mappedSource struct {
	r *mmap.ReaderAt
}

// OpenMapped memory-maps path read-only and returns a Reader over it plus a
// closer the caller must invoke when done inspecting the file.
func OpenMapped(path string) (*Reader, func() error, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	src := mappedSource{r: r}
	return New(src), r.Close, nil
}

func (m mappedSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(m.r.Len()) {
		if off == int64(m.r.Len()) {
			return 0, nil
		}
		return 0, nil
	}
	return m.r.ReadAt(p, off)
}

func (m mappedSource) Size() int64 {
	return int64(m.r.Len())
}
