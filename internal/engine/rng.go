package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// FloatStream turns HMAC-SHA256(seed, "salt:nonce:block") blocks into a
// reproducible stream of floats in [0, 1), four bytes per float.
type FloatStream struct {
	seed  string
	salt  string
	nonce uint64
	block uint64
	pos   int
	buf   [32]byte
}

// NewFloatStream starts a stream at the given byte cursor.
func NewFloatStream(seed, salt string, nonce uint64, cursor uint64) *FloatStream {
	fs := &FloatStream{
		seed:  seed,
		salt:  salt,
		nonce: nonce,
		block: cursor / 32,
		pos:   int(cursor % 32),
	}
	fs.fill()
	return fs
}

func (fs *FloatStream) nextByte() byte {
	if fs.pos >= 32 {
		fs.block++
		fs.pos = 0
		fs.fill()
	}
	b := fs.buf[fs.pos]
	fs.pos++
	return b
}

// Float64 returns the next float.
func (fs *FloatStream) Float64() float64 {
	return bytesToFloat([4]byte{fs.nextByte(), fs.nextByte(), fs.nextByte(), fs.nextByte()})
}

func (fs *FloatStream) fill() {
	h := hmac.New(sha256.New, []byte(fs.seed))
	fmt.Fprintf(h, "%s:%d:%d", fs.salt, fs.nonce, fs.block)
	copy(fs.buf[:], h.Sum(nil))
}

// bytesToFloat computes b0/256 + b1/256² + b2/256³ + b3/256⁴.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats returns count floats from the stream starting at cursor.
func Floats(seed, salt string, nonce uint64, cursor uint64, count int) []float64 {
	fs := NewFloatStream(seed, salt, nonce, cursor)
	out := make([]float64, count)
	for i := range out {
		out[i] = fs.Float64()
	}
	return out
}
