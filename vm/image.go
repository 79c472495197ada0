package vm

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current program image format version.
// Increment when making incompatible changes to Instruction.
const ImageVersion uint16 = 1

// ImageMagic prefixes every program image: "EXGW" (ExoMars GridWorld).
var ImageMagic = []byte{'E', 'X', 'G', 'W'}

// image is the on-disk form of a compiled program.
type image struct {
	Version      uint16        `cbor:"1,keyasint"`
	Source       string        `cbor:"2,keyasint,omitempty"`
	Instructions []Instruction `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serialises p, optionally carrying its source text, to a
// deterministic CBOR image.
func MarshalProgram(p *Program, source string) ([]byte, error) {
	body, err := cborEncMode.Marshal(image{
		Version:      ImageVersion,
		Source:       source,
		Instructions: p.Instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("vm: marshal program: %w", err)
	}
	return append(append([]byte(nil), ImageMagic...), body...), nil
}

// UnmarshalProgram decodes an image produced by MarshalProgram and validates
// the program. It returns the embedded source text, if any.
func UnmarshalProgram(data []byte) (*Program, string, error) {
	if !bytes.HasPrefix(data, ImageMagic) {
		return nil, "", fmt.Errorf("vm: not a program image")
	}
	var img image
	if err := cbor.Unmarshal(data[len(ImageMagic):], &img); err != nil {
		return nil, "", fmt.Errorf("vm: unmarshal program: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, "", fmt.Errorf("vm: image version %d, want %d", img.Version, ImageVersion)
	}
	p := &Program{Instructions: img.Instructions}
	if err := p.Validate(); err != nil {
		return nil, "", fmt.Errorf("vm: invalid image: %w", err)
	}
	return p, img.Source, nil
}

// ProgramHash returns the SHA-256 of p's canonical encoding. Source line
// numbers are part of the encoding.
func ProgramHash(p *Program) ([32]byte, error) {
	body, err := cborEncMode.Marshal(p.Instructions)
	if err != nil {
		return [32]byte{}, fmt.Errorf("vm: hash program: %w", err)
	}
	return sha256.Sum256(body), nil
}
