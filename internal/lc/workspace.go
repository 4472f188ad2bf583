package lc

import (
	"github.com/born-ml/localconn/internal/tensor"
)

// Workspace holds the scratch buffers of the pipelines. Buffers are resized
// on every call and carry no meaning between calls; the zero value is ready
// to use.
type Workspace struct {
	Column           *tensor.RawTensor
	ColumnTransposed *tensor.RawTensor
	YTransposed      *tensor.RawTensor
	BiasMultiplier   *tensor.RawTensor // N ones
}

// Reserve sizes every buffer for p and element type dtype.
func (ws *Workspace) Reserve(dtype tensor.DataType, p ShapeParams) error {
	var err error
	if ws.Column, err = ensure(ws.Column, dtype, p.ColumnDims); err != nil {
		return err
	}
	if ws.ColumnTransposed, err = ensure(ws.ColumnTransposed, dtype, p.ColumnTransposedDims); err != nil {
		return err
	}
	if ws.YTransposed, err = ensure(ws.YTransposed, dtype, p.YTransposedDims); err != nil {
		return err
	}
	ws.BiasMultiplier, err = ensure(ws.BiasMultiplier, dtype, []int{p.N})
	return err
}

func ensure(t *tensor.RawTensor, dtype tensor.DataType, dims []int) (*tensor.RawTensor, error) {
	if t == nil || t.DType() != dtype {
		t = tensor.Empty(dtype)
	}
	if err := t.Resize(dims); err != nil {
		return nil, err
	}
	return t, nil
}

// ones returns the bias multiplier filled with 1.
func ones[T tensor.Float](ws *Workspace) []T {
	v := tensor.Values[T](ws.BiasMultiplier)
	for i := range v {
		v[i] = 1
	}
	return v
}
