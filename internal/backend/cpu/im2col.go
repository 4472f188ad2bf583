package cpu

import (
	"fmt"

	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Im2Col unfolds one 2-d image into its column matrix.
//
// NCHW: image [C, H, W] -> columns [C*K_h*K_w, H_out*W_out]
// NHWC: image [H, W, C] -> columns [H_out*W_out, K_h*K_w*C]
//
// Each column entry is the input element under one kernel tap at one output
// position; taps that land in the padding read as zero.
func (k *Kernels[T]) Im2Col(order tensor.StorageOrder, src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T) {
	check2D("im2col", imageDims, outputDims, w)
	h, wd := imageDims[0], imageDims[1]
	outH, outW := outputDims[0], outputDims[1]
	checkLen("im2col", "image", src, channels*h*wd)
	checkLen("im2col", "columns", dst, channels*w.Size()*outH*outW)

	if order == tensor.NHWC {
		im2colNHWC(src, channels, h, wd, outH, outW, w, dst, k.par)
		return
	}
	im2colNCHW(src, channels, h, wd, outH, outW, w, dst, k.par)
}

// im2colNCHW fills one row per (channel, kh, kw) tap; rows are independent.
func im2colNCHW[T tensor.Float](src []T, channels, h, wd, outH, outW int, w conv.Window, dst []T, par parallel.Config) {
	kH, kW := w.Kernel[0], w.Kernel[1]
	sH, sW := w.Stride[0], w.Stride[1]
	dH, dW := w.Dilation[0], w.Dilation[1]
	padT, padL := w.PadBegin(0), w.PadBegin(1)
	outSize := outH * outW

	parallel.For(channels*kH*kW, func(row int) {
		c := row / (kH * kW)
		kh := (row / kW) % kH
		kw := row % kW
		plane := src[c*h*wd : (c+1)*h*wd]
		out := dst[row*outSize : (row+1)*outSize]

		for oh := 0; oh < outH; oh++ {
			ih := oh*sH - padT + kh*dH
			line := out[oh*outW : (oh+1)*outW]
			if ih < 0 || ih >= h {
				clear(line)
				continue
			}
			for ow := 0; ow < outW; ow++ {
				iw := ow*sW - padL + kw*dW
				if iw >= 0 && iw < wd {
					line[ow] = plane[ih*wd+iw]
				} else {
					line[ow] = 0
				}
			}
		}
	}, par)
}

// im2colNHWC fills one row per output position; rows are independent.
func im2colNHWC[T tensor.Float](src []T, channels, h, wd, outH, outW int, w conv.Window, dst []T, par parallel.Config) {
	kH, kW := w.Kernel[0], w.Kernel[1]
	sH, sW := w.Stride[0], w.Stride[1]
	dH, dW := w.Dilation[0], w.Dilation[1]
	padT, padL := w.PadBegin(0), w.PadBegin(1)
	rowLen := kH * kW * channels

	parallel.For(outH*outW, func(pos int) {
		oh, ow := pos/outW, pos%outW
		out := dst[pos*rowLen : (pos+1)*rowLen]
		idx := 0
		for kh := 0; kh < kH; kh++ {
			ih := oh*sH - padT + kh*dH
			for kw := 0; kw < kW; kw++ {
				iw := ow*sW - padL + kw*dW
				if ih >= 0 && ih < h && iw >= 0 && iw < wd {
					pixel := (ih*wd + iw) * channels
					copy(out[idx:idx+channels], src[pixel:pixel+channels])
				} else {
					clear(out[idx : idx+channels])
				}
				idx += channels
			}
		}
	}, par)
}

// Im2ColNd unfolds one channel-first image of any spatial rank.
//
// image [C, d_0, ..., d_{n-1}] -> columns [C*prod(K), prod(out)]
//
// Row r encodes (c, k_0, ..., k_{n-1}) with the last kernel axis fastest,
// the same ordering Im2Col uses for 2-d NCHW.
func (k *Kernels[T]) Im2ColNd(src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T) {
	checkNd("im2col nd", imageDims, outputDims, w)
	imageSize := tensor.Product(imageDims)
	outSize := tensor.Product(outputDims)
	taps := w.Size()
	checkLen("im2col nd", "image", src, channels*imageSize)
	checkLen("im2col nd", "columns", dst, channels*taps*outSize)

	imageStrides := tensor.Shape(imageDims).ComputeStrides()

	parallel.For(channels*taps, func(row int) {
		c := row / taps
		kernelIdx := unravel(row%taps, w.Kernel)
		plane := src[c*imageSize : (c+1)*imageSize]
		out := dst[row*outSize : (row+1)*outSize]

		forEachWindowTap(outputDims, kernelIdx, w, imageDims, imageStrides, func(col, offset int) {
			if offset < 0 {
				out[col] = 0
				return
			}
			out[col] = plane[offset]
		})
	}, k.par)
}

// forEachWindowTap walks every output position for one kernel tap and calls
// fn with the column index and the flat image offset it reads, or -1 when the
// tap falls into padding.
func forEachWindowTap(outputDims, kernelIdx []int, w conv.Window, imageDims, imageStrides []int, fn func(col, offset int)) {
	ndim := len(outputDims)
	outIdx := make([]int, ndim)
	outSize := tensor.Product(outputDims)

	for col := 0; col < outSize; col++ {
		offset := 0
		for d := 0; d < ndim; d++ {
			pos := outIdx[d]*w.Stride[d] - w.PadBegin(d) + kernelIdx[d]*w.Dilation[d]
			if pos < 0 || pos >= imageDims[d] {
				offset = -1
				break
			}
			offset += pos * imageStrides[d]
		}
		fn(col, offset)
		increment(outIdx, outputDims)
	}
}

// unravel converts a flat row-major index into coordinates over dims.
func unravel(flat int, dims []int) []int {
	idx := make([]int, len(dims))
	for d := len(dims) - 1; d >= 0; d-- {
		idx[d] = flat % dims[d]
		flat /= dims[d]
	}
	return idx
}

// increment advances a row-major multi-index, wrapping to zero at the end.
func increment(idx, dims []int) {
	for d := len(dims) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < dims[d] {
			return
		}
		idx[d] = 0
	}
}

func check2D(op string, imageDims, outputDims []int, w conv.Window) {
	if w.NDim() != 2 || len(imageDims) != 2 || len(outputDims) != 2 {
		panic(fmt.Sprintf("%s: 2-d kernel required, got kernel %v image %v output %v",
			op, w.Kernel, imageDims, outputDims))
	}
}

func checkNd(op string, imageDims, outputDims []int, w conv.Window) {
	if len(imageDims) != w.NDim() || len(outputDims) != w.NDim() {
		panic(fmt.Sprintf("%s: rank mismatch: kernel %v image %v output %v",
			op, w.Kernel, imageDims, outputDims))
	}
}
