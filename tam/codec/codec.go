// Package codec provides a CBOR-encoded alternative to tam.Image's
// mandated big-endian binary wire format, grounded on the teacher's
// canonical-mode CBOR encoder for its own wire types.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/tamlang/tamvm/tam"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireInstruction is the CBOR-visible shape of a tam.Instruction. It
// deliberately omits Debug: like the binary format, the CBOR encoding
// carries code and data only, never debug symbols.
type wireInstruction struct {
	Op     int  `cbor:"op"`
	Reg    int  `cbor:"reg"`
	HasReg bool `cbor:"hasReg"`
	N      int  `cbor:"n"`
	D      int  `cbor:"d"`
}

// wireImage is the CBOR-visible shape of a tam.Image.
type wireImage struct {
	Instructions []wireInstruction `cbor:"instructions"`
	Strings      []string          `cbor:"strings"`
}

// MarshalImage encodes an Image's instructions and string pool as CBOR in
// canonical mode. Debug symbols are never included, matching the binary
// format's own symbol/image split.
func MarshalImage(img *tam.Image) ([]byte, error) {
	w := wireImage{
		Instructions: make([]wireInstruction, len(img.Instructions)),
		Strings:      img.Strings,
	}
	for i, inst := range img.Instructions {
		w.Instructions[i] = wireInstruction{
			Op:     int(inst.Op),
			Reg:    int(inst.Register),
			HasReg: inst.HasReg,
			N:      inst.N,
			D:      inst.D,
		}
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalImage decodes CBOR bytes produced by MarshalImage back into an
// Image with a fresh (empty) debug-symbol container on every instruction.
func UnmarshalImage(data []byte) (*tam.Image, error) {
	var w wireImage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: unmarshal image: %w", err)
	}

	img := &tam.Image{
		Instructions: make([]tam.Instruction, len(w.Instructions)),
		Strings:      w.Strings,
	}
	for i, wi := range w.Instructions {
		op, err := tam.OpcodeFromID(wi.Op)
		if err != nil {
			return nil, fmt.Errorf("codec: instruction %d: %w", i, err)
		}
		inst := tam.Instruction{Op: op, N: wi.N, D: wi.D}
		if wi.HasReg {
			reg, ok := tam.RegisterFromID(wi.Reg)
			if !ok {
				return nil, fmt.Errorf("codec: instruction %d: invalid register id %d", i, wi.Reg)
			}
			inst.Register = reg
			inst.HasReg = true
		}
		img.Instructions[i] = inst
	}
	return img, nil
}
