package serialization

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// TestValidateTensorOffsets_NoOverlap verifies that valid tensors pass validation.
func TestValidateTensorOffsets_NoOverlap(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "tensor1", Offset: 0, Size: 100},
		{Name: "tensor2", Offset: 100, Size: 200},
		{Name: "tensor3", Offset: 300, Size: 150},
	}

	if err := ValidateTensorOffsets(tensors, 500); err != nil {
		t.Errorf("Expected no error for valid tensors, got: %v", err)
	}
}

func TestValidateTensorOffsets_Errors(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		want     error
	}{
		{
			name: "overlap",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 99, Size: 100},
			},
			dataSize: 200,
			want:     ErrOffsetOverlap,
		},
		{
			name:     "out of bounds",
			tensors:  []TensorMeta{{Name: "a", Offset: 50, Size: 100}},
			dataSize: 120,
			want:     ErrOutOfBounds,
		},
		{
			name:     "end offset overflows",
			tensors:  []TensorMeta{{Name: "a", Offset: 8, Size: math.MaxInt64}},
			dataSize: 120,
			want:     ErrOutOfBounds,
		},
		{
			name:     "negative size",
			tensors:  []TensorMeta{{Name: "a", Offset: 10, Size: -4}},
			dataSize: 120,
			want:     ErrNegativeOffset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	valid := []string{"weight", "bias", "optimizer.velocity.0"}
	for _, name := range valid {
		if err := ValidateTensorName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}

	invalid := []string{"", "../etc", "a/b", "a\\b", "a\x00b", strings.Repeat("x", MaxTensorNameLen+1)}
	for _, name := range invalid {
		if err := ValidateTensorName(name); !errors.Is(err, ErrInvalidTensorName) {
			t.Errorf("%q: expected ErrInvalidTensorName, got %v", name, err)
		}
	}
}

// TestValidateChecksum verifies SHA-256 digests round trip through hex.
func TestValidateChecksum(t *testing.T) {
	data := []byte("tensor bytes")
	sum := ComputeChecksum(data)
	if sum == ComputeChecksum([]byte("other bytes")) {
		t.Error("Checksums should differ for different data")
	}

	const digest = "0000000000000000000000000000000000000000000000000000000000000000"
	if err := ValidateChecksum(data, digest); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got %v", err)
	}
}
