// bitstream.go manages writes to the bitstream
package mp3

const (
	// Maximum length of word written to the bit stream
	MAX_LENGTH  = 32
	BUFFER_SIZE = 4096
)

// BitSink accepts bits msb-first. Only the low n bits of val are written.
type BitSink interface {
	PutBits(val uint32, n uint)
}

type bitstream struct {
	data         []uint8
	dataSize     int
	dataPosition int
	cache        uint32
	cacheBits    int
}

func (bs *bitstream) open(size int) {
	bs.data = make([]uint8, size)
	bs.dataSize = size
	bs.dataPosition = 0
	bs.cache = 0
	bs.cacheBits = 32
}

// PutBits writes N bits of val into the bit stream.
func (bs *bitstream) PutBits(val uint32, N uint) {
	if N == 0 {
		return
	}
	if N < MAX_LENGTH {
		val &= 1<<N - 1
	}
	if bs.cacheBits > int(N) {
		bs.cacheBits -= int(N)
		bs.cache |= val << uint32(bs.cacheBits)
	} else {
		bs.grow(4)
		N -= uint(bs.cacheBits)
		bs.cache |= val >> N
		bs.data[bs.dataPosition] = uint8(bs.cache >> 24)
		bs.data[bs.dataPosition+1] = uint8(bs.cache >> 16)
		bs.data[bs.dataPosition+2] = uint8(bs.cache >> 8)
		bs.data[bs.dataPosition+3] = uint8(bs.cache)

		bs.dataPosition += 4
		bs.cacheBits = int(32 - N)
		if N != 0 {
			bs.cache = val << uint(bs.cacheBits)
		} else {
			bs.cache = 0
		}
	}
}

// grow makes room for n more bytes.
func (bs *bitstream) grow(n int) {
	if bs.dataPosition+n < bs.dataSize {
		return
	}
	newCapacity := bs.dataSize + (bs.dataSize >> 1)
	if newCapacity < bs.dataPosition+n+1 {
		newCapacity = bs.dataPosition + n + 1
	}
	newSlice := make([]byte, newCapacity)
	copy(newSlice, bs.data)
	bs.data = newSlice
	bs.dataSize = newCapacity
}

// flush moves the cached bits to the buffer, padding the last byte with zeros.
func (bs *bitstream) flush() {
	cached := 32 - bs.cacheBits
	if cached == 0 {
		return
	}
	bs.grow(4)
	for shift := 24; cached > 0; shift -= 8 {
		bs.data[bs.dataPosition] = uint8(bs.cache >> shift)
		bs.dataPosition++
		cached -= 8
	}
	bs.cache = 0
	bs.cacheBits = 32
}

// take returns the complete bytes written so far and rewinds the buffer.
// The returned slice is valid until the next write.
func (bs *bitstream) take() []uint8 {
	written := bs.data[:bs.dataPosition]
	bs.dataPosition = 0
	return written
}

func (bs *bitstream) getBitsCount() int {
	return bs.dataPosition*8 + 32 - bs.cacheBits
}
