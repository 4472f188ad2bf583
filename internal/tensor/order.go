package tensor

import (
	"fmt"
	"strings"
)

// StorageOrder selects where the channel axis lives in an image tensor.
type StorageOrder int

// Supported storage orders.
const (
	// NCHW places channels right after the batch axis: [N, C, spatial...].
	NCHW StorageOrder = iota
	// NHWC places channels innermost: [N, spatial..., C].
	NHWC
)

// String returns the conventional name of the order.
func (o StorageOrder) String() string {
	switch o {
	case NCHW:
		return "NCHW"
	case NHWC:
		return "NHWC"
	default:
		return "Unknown"
	}
}

// ParseStorageOrder accepts "NCHW"/"NHWC" in any case.
func ParseStorageOrder(s string) (StorageOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NCHW":
		return NCHW, nil
	case "NHWC":
		return NHWC, nil
	default:
		return NCHW, fmt.Errorf("unknown storage order %q (want NCHW or NHWC)", s)
	}
}

// ImageDims returns the spatial dimensions of an image tensor [N, ...].
func (o StorageOrder) ImageDims(s Shape) []int {
	if len(s) < 2 {
		return nil
	}
	if o == NHWC {
		return append([]int(nil), s[1:len(s)-1]...)
	}
	return append([]int(nil), s[2:]...)
}

// Channels returns the channel count of an image tensor [N, ...].
func (o StorageOrder) Channels(s Shape) int {
	if len(s) < 2 {
		return 0
	}
	if o == NHWC {
		return s[len(s)-1]
	}
	return s[1]
}

// ImageShape builds an image tensor shape for this order.
func (o StorageOrder) ImageShape(n, channels int, dims []int) Shape {
	out := make(Shape, 0, len(dims)+2)
	out = append(out, n)
	if o == NHWC {
		out = append(out, dims...)
		return append(out, channels)
	}
	out = append(out, channels)
	return append(out, dims...)
}
