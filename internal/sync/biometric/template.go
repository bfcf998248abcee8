// Package biometric holds the template encoding and scoring used by the
// enrollment worker and the identification endpoint. The current encoder
// is a deterministic stand-in, not a real face model; everything above it
// only depends on the Encoder interface so a real model can slot in
// without touching the workflow.
package biometric

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Version tags the encoder that produced a template. Templates from
// different versions never score against each other meaningfully, so the
// tag is persisted alongside every template.
const Version = "hashvec-v1"

// Dimensions of the derived vector.
const Dimensions = 64

var (
	ErrEmptyInput      = errors.New("biometric: no image bytes supplied")
	ErrInvalidTemplate = errors.New("biometric: malformed template")
)

// Template is the opaque derived representation of a capture. Raw images
// are never compared directly.
type Template []byte

// Encoder turns captured image bytes into a comparable template.
type Encoder interface {
	Encode(images [][]byte) (Template, error)
}

// HashEncoder derives a unit vector from a blake2b hash of the
// concatenated image bytes. Deterministic: the same capture set always
// yields the same template.
type HashEncoder struct{}

func NewHashEncoder() HashEncoder { return HashEncoder{} }

func (HashEncoder) Encode(images [][]byte) (Template, error) {
	total := 0
	for _, img := range images {
		total += len(img)
	}
	if total == 0 {
		return nil, ErrEmptyInput
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		_, _ = h.Write(img)
	}
	seed := h.Sum(nil)

	// Expand the 32-byte digest into Dimensions float32 components by
	// rehashing a counter-suffixed seed, then normalize to unit length.
	vec := make([]float32, Dimensions)
	var counter [4]byte
	var norm float64
	for i := 0; i < Dimensions; i += 8 {
		binary.LittleEndian.PutUint32(counter[:], uint32(i))
		block := blake2b.Sum256(append(seed, counter[:]...))
		for j := 0; j < 8 && i+j < Dimensions; j++ {
			bits := binary.LittleEndian.Uint32(block[j*4 : j*4+4])
			// Map to [-1, 1)
			v := float64(int32(bits)) / float64(math.MaxInt32)
			vec[i+j] = float32(v)
			norm += v * v
		}
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, ErrEmptyInput
	}

	out := make(Template, 0, Dimensions*4)
	var buf [4]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(float64(v)/norm)))
		out = append(out, buf[:]...)
	}
	return out, nil
}

// Similarity is the cosine similarity between two templates. Both inputs
// must come from the same encoder version; a malformed or mismatched
// template yields an error rather than a bogus score.
func Similarity(a, b Template) (float64, error) {
	va, err := decode(a)
	if err != nil {
		return 0, err
	}
	vb, err := decode(b)
	if err != nil {
		return 0, err
	}
	if len(va) != len(vb) {
		return 0, ErrInvalidTemplate
	}

	var dot, na, nb float64
	for i := range va {
		dot += float64(va[i]) * float64(vb[i])
		na += float64(va[i]) * float64(va[i])
		nb += float64(vb[i]) * float64(vb[i])
	}
	if na == 0 || nb == 0 {
		return 0, ErrInvalidTemplate
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func decode(t Template) ([]float32, error) {
	if len(t) == 0 || len(t)%4 != 0 {
		return nil, ErrInvalidTemplate
	}
	vec := make([]float32, len(t)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(t[i*4 : i*4+4]))
	}
	return vec, nil
}
