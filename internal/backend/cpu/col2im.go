package cpu

import (
	"github.com/born-ml/localconn/internal/conv"
	"github.com/born-ml/localconn/internal/parallel"
	"github.com/born-ml/localconn/internal/tensor"
)

// Col2Im folds a 2-d column matrix back into image space. It is the adjoint
// of Im2Col: dst is overwritten with the sum of every column entry that
// reads each pixel, so overlapping windows accumulate.
func (k *Kernels[T]) Col2Im(order tensor.StorageOrder, src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T) {
	check2D("col2im", imageDims, outputDims, w)
	h, wd := imageDims[0], imageDims[1]
	outH, outW := outputDims[0], outputDims[1]
	checkLen("col2im", "columns", src, channels*w.Size()*outH*outW)
	checkLen("col2im", "image", dst, channels*h*wd)

	if order == tensor.NHWC {
		col2imNHWC(src, channels, h, wd, outH, outW, w, dst[:channels*h*wd])
		return
	}
	col2imNCHW(src, channels, h, wd, outH, outW, w, dst, k.par)
}

// col2imNCHW accumulates per channel; channels write disjoint planes.
func col2imNCHW[T tensor.Float](src []T, channels, h, wd, outH, outW int, w conv.Window, dst []T, par parallel.Config) {
	kH, kW := w.Kernel[0], w.Kernel[1]
	sH, sW := w.Stride[0], w.Stride[1]
	dH, dW := w.Dilation[0], w.Dilation[1]
	padT, padL := w.PadBegin(0), w.PadBegin(1)
	outSize := outH * outW

	parallel.For(channels, func(c int) {
		plane := dst[c*h*wd : (c+1)*h*wd]
		clear(plane)
		for kh := 0; kh < kH; kh++ {
			for kw := 0; kw < kW; kw++ {
				row := (c*kH+kh)*kW + kw
				cols := src[row*outSize : (row+1)*outSize]
				for oh := 0; oh < outH; oh++ {
					ih := oh*sH - padT + kh*dH
					if ih < 0 || ih >= h {
						continue
					}
					for ow := 0; ow < outW; ow++ {
						iw := ow*sW - padL + kw*dW
						if iw >= 0 && iw < wd {
							plane[ih*wd+iw] += cols[oh*outW+ow]
						}
					}
				}
			}
		}
	}, par)
}

// col2imNHWC runs sequentially: neighbouring output positions scatter into
// the same pixels.
func col2imNHWC[T tensor.Float](src []T, channels, h, wd, outH, outW int, w conv.Window, dst []T) {
	kH, kW := w.Kernel[0], w.Kernel[1]
	sH, sW := w.Stride[0], w.Stride[1]
	dH, dW := w.Dilation[0], w.Dilation[1]
	padT, padL := w.PadBegin(0), w.PadBegin(1)
	rowLen := kH * kW * channels

	clear(dst)
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			row := src[(oh*outW+ow)*rowLen : (oh*outW+ow+1)*rowLen]
			idx := 0
			for kh := 0; kh < kH; kh++ {
				ih := oh*sH - padT + kh*dH
				for kw := 0; kw < kW; kw++ {
					iw := ow*sW - padL + kw*dW
					if ih >= 0 && ih < h && iw >= 0 && iw < wd {
						pixel := dst[(ih*wd+iw)*channels : (ih*wd+iw+1)*channels]
						for c, v := range row[idx : idx+channels] {
							pixel[c] += v
						}
					}
					idx += channels
				}
			}
		}
	}
}

// Col2ImNd folds a channel-first column matrix of any spatial rank back into
// image space, the adjoint of Im2ColNd.
func (k *Kernels[T]) Col2ImNd(src []T, channels int, imageDims, outputDims []int, w conv.Window, dst []T) {
	checkNd("col2im nd", imageDims, outputDims, w)
	imageSize := tensor.Product(imageDims)
	outSize := tensor.Product(outputDims)
	taps := w.Size()
	checkLen("col2im nd", "columns", src, channels*taps*outSize)
	checkLen("col2im nd", "image", dst, channels*imageSize)

	imageStrides := tensor.Shape(imageDims).ComputeStrides()

	parallel.For(channels, func(c int) {
		plane := dst[c*imageSize : (c+1)*imageSize]
		clear(plane)
		for tap := 0; tap < taps; tap++ {
			row := c*taps + tap
			cols := src[row*outSize : (row+1)*outSize]
			kernelIdx := unravel(tap, w.Kernel)
			forEachWindowTap(outputDims, kernelIdx, w, imageDims, imageStrides, func(col, offset int) {
				if offset >= 0 {
					plane[offset] += cols[col]
				}
			})
		}
	}, k.par)
}
