// types.go - Datentypen fuer gespeicherte Gewichte
// Dieses Modul definiert DType fuer die Tensor-Elemente in Gewichtsdateien
// und die Konvertierung F16/BF16 <-> float32.
package ml

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType represents the on-disk data type of tensor elements. Tensors are
// always expanded to float32 in memory.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// Size gibt die Groesse eines Elements in Bytes zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// ParseDType parst einen Typnamen wie er in safetensors-Headern vorkommt
func ParseDType(s string) (DType, error) {
	switch s {
	case "F32", "f32", "float32":
		return DTypeF32, nil
	case "F16", "f16", "float16":
		return DTypeF16, nil
	case "BF16", "bf16", "bfloat16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported tensor type %s", s)
	}
}

// DecodeFloats expandiert rohe little-endian Elemente vom Typ d zu float32
func DecodeFloats(d DType, raw []byte) ([]float32, error) {
	if d.Size() == 0 {
		return nil, fmt.Errorf("unsupported tensor type %s", d)
	}

	if len(raw)%d.Size() != 0 {
		return nil, fmt.Errorf("%d bytes are not a multiple of %s element size", len(raw), d)
	}

	n := len(raw) / d.Size()
	switch d {
	case DTypeF32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case DTypeF16:
		out := make([]float32, n)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	default:
		return bfloat16.DecodeFloat32(raw), nil
	}
}

// EncodeFloats serialisiert float32-Werte als little-endian Elemente vom Typ d
func EncodeFloats(d DType, values []float32) ([]byte, error) {
	switch d {
	case DTypeF32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case DTypeF16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case DTypeBF16:
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("unsupported tensor type %s", d)
	}
}
