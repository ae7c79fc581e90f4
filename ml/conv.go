// conv.go - Faltungen fuer das CNN-Backbone
// Dieses Modul implementiert Conv2D (HWIO-Kernel, via im2col + GEMM),
// Depthwise-Conv, Zero-Padding und Global-Average-Pooling auf [H, W, C].
package ml

import (
	"fmt"
)

// Padding describes explicit zero padding around the spatial dimensions.
type Padding struct {
	Top, Bottom, Left, Right int
}

// SamePadding returns the padding of a "same" convolution with stride 1.
func SamePadding(kernel int) Padding {
	total := kernel - 1
	return Padding{
		Top:    total / 2,
		Bottom: total - total/2,
		Left:   total / 2,
		Right:  total - total/2,
	}
}

// CorrectPad returns the zero padding applied before a strided "valid"
// convolution in Keras applications (imagenet_utils.correct_pad).
func CorrectPad(h, w, kernel int) Padding {
	adjustH, adjustW := 1-h%2, 1-w%2
	half := kernel / 2
	return Padding{
		Top:    half - adjustH,
		Bottom: half,
		Left:   half - adjustW,
		Right:  half,
	}
}

func outSize(in, kernel, stride, padBefore, padAfter int) int {
	return (in+padBefore+padAfter-kernel)/stride + 1
}

func checkHWC(x *Tensor) (h, w, c int) {
	if len(x.Shape) != 3 {
		panic(fmt.Sprintf("ml: expected [H, W, C] tensor, got %v", x.Shape))
	}
	return x.Shape[0], x.Shape[1], x.Shape[2]
}

// Conv2D convolves x[H, W, Cin] with kernel[kh, kw, Cin, Cout]. A nil bias
// is skipped.
func Conv2D(x, kernel, bias *Tensor, stride int, pad Padding) *Tensor {
	h, w, cin := checkHWC(x)
	if len(kernel.Shape) != 4 || kernel.Shape[2] != cin {
		panic(fmt.Sprintf("ml: conv kernel %v does not match input %v", kernel.Shape, x.Shape))
	}
	kh, kw, cout := kernel.Shape[0], kernel.Shape[1], kernel.Shape[3]

	oh := outSize(h, kh, stride, pad.Top, pad.Bottom)
	ow := outSize(w, kw, stride, pad.Left, pad.Right)
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("ml: conv output empty for input %v, kernel %v", x.Shape, kernel.Shape))
	}

	var cols *Tensor
	if kh == 1 && kw == 1 && stride == 1 && pad == (Padding{}) {
		// pointwise: direkt als GEMM
		cols = x
	} else {
		cols = im2col(x, kh, kw, stride, pad, oh, ow)
	}

	flat, err := kernel.Reshape(kh*kw*cin, cout)
	if err != nil {
		panic(err)
	}
	in, err := cols.Reshape(oh*ow, kh*kw*cin)
	if err != nil {
		panic(err)
	}

	out := MatMul(in, flat)
	if bias != nil {
		AddBiasInPlace(out, bias)
	}

	out.Shape = []int{oh, ow, cout}
	return out
}

// im2col gathers every receptive field into one row ordered (ky, kx, ci),
// matching a flattened HWIO kernel.
func im2col(x *Tensor, kh, kw, stride int, pad Padding, oh, ow int) *Tensor {
	h, w, c := checkHWC(x)
	patch := kh * kw * c
	cols := Zeros(oh*ow, patch)

	for oy := range oh {
		for ox := range ow {
			row := cols.Data[(oy*ow+ox)*patch : (oy*ow+ox+1)*patch]
			for ky := range kh {
				iy := oy*stride + ky - pad.Top
				if iy < 0 || iy >= h {
					continue
				}
				for kx := range kw {
					ix := ox*stride + kx - pad.Left
					if ix < 0 || ix >= w {
						continue
					}
					src := x.Data[(iy*w+ix)*c : (iy*w+ix+1)*c]
					copy(row[(ky*kw+kx)*c:], src)
				}
			}
		}
	}

	return cols
}

// DepthwiseConv2D convolves every channel of x[H, W, C] with its own filter
// from kernel[kh, kw, C, 1].
func DepthwiseConv2D(x, kernel *Tensor, stride int, pad Padding) *Tensor {
	h, w, c := checkHWC(x)
	if len(kernel.Shape) != 4 || kernel.Shape[2] != c || kernel.Shape[3] != 1 {
		panic(fmt.Sprintf("ml: depthwise kernel %v does not match input %v", kernel.Shape, x.Shape))
	}
	kh, kw := kernel.Shape[0], kernel.Shape[1]

	oh := outSize(h, kh, stride, pad.Top, pad.Bottom)
	ow := outSize(w, kw, stride, pad.Left, pad.Right)
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("ml: depthwise output empty for input %v, kernel %v", x.Shape, kernel.Shape))
	}

	out := Zeros(oh, ow, c)
	for oy := range oh {
		for ox := range ow {
			dst := out.Data[(oy*ow+ox)*c : (oy*ow+ox+1)*c]
			for ky := range kh {
				iy := oy*stride + ky - pad.Top
				if iy < 0 || iy >= h {
					continue
				}
				for kx := range kw {
					ix := ox*stride + kx - pad.Left
					if ix < 0 || ix >= w {
						continue
					}
					src := x.Data[(iy*w+ix)*c : (iy*w+ix+1)*c]
					k := kernel.Data[(ky*kw+kx)*c : (ky*kw+kx+1)*c]
					for ci, v := range src {
						dst[ci] += v * k[ci]
					}
				}
			}
		}
	}

	return out
}

// ZeroPad surrounds x[H, W, C] with zeros.
func ZeroPad(x *Tensor, pad Padding) *Tensor {
	h, w, c := checkHWC(x)
	nh, nw := h+pad.Top+pad.Bottom, w+pad.Left+pad.Right
	out := Zeros(nh, nw, c)
	for y := range h {
		src := x.Data[y*w*c : (y+1)*w*c]
		dst := out.Data[((y+pad.Top)*nw+pad.Left)*c:]
		copy(dst, src)
	}
	return out
}

// GlobalAveragePool mittelt ueber H und W: [H, W, C] -> [C]
func GlobalAveragePool(x *Tensor) *Tensor {
	h, w, c := checkHWC(x)
	out := Zeros(c)
	for off := 0; off < len(x.Data); off += c {
		for i, v := range x.Data[off : off+c] {
			out.Data[i] += v
		}
	}

	n := float32(h * w)
	for i := range out.Data {
		out.Data[i] /= n
	}
	return out
}

// ScaleChannelsInPlace multiplies every pixel of x[H, W, C] by s[C].
func ScaleChannelsInPlace(x, s *Tensor) {
	_, c := x.Rows()
	if len(s.Data) != c {
		panic(fmt.Sprintf("ml: channel scale %v does not match %v", s.Shape, x.Shape))
	}
	for off := 0; off < len(x.Data); off += c {
		row := x.Data[off : off+c]
		for i := range row {
			row[i] *= s.Data[i]
		}
	}
}
