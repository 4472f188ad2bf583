package nn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/localconn/internal/serialization"
	"github.com/born-ml/localconn/internal/tensor"
)

// Checkpoint metadata keys.
const (
	metaKind      = "kind"
	metaEpoch     = "epoch"
	metaStep      = "step"
	metaLoss      = "loss"
	metaLR        = "lr"
	metaCreatedAt = "created_at"

	checkpointKind  = "checkpoint"
	optimizerPrefix = "optimizer."
)

// ErrNotCheckpoint is returned by LoadCheckpoint for SafeTensors files that
// were not written by Checkpoint.Save.
var ErrNotCheckpoint = errors.New("file is not a checkpoint")

// OptimizerState represents an optimizer that can save/load its state.
//
// Optimizers from the optim package implement this interface; declaring it
// here keeps nn free of an import cycle.
type OptimizerState interface {
	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads optimizer state from serialization.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// GetLR returns the current learning rate.
	GetLR() float64
}

// Checkpoint represents a complete training state snapshot.
//
// Model parameters are stored under their own names and optimizer buffers
// under "optimizer.<name>"; epoch, step, loss and learning rate go into the
// SafeTensors metadata.
//
// Example:
//
//	ckpt := &nn.Checkpoint{Model: layer, Optimizer: sgd, Epoch: 3, Step: 1200, Loss: 0.04}
//	err := ckpt.Save("lc.safetensors")
//
// To resume training:
//
//	ckpt, err := nn.LoadCheckpoint("lc.safetensors", layer, sgd)
//	startEpoch := ckpt.Epoch + 1
type Checkpoint struct {
	Model     Module
	Optimizer OptimizerState // optional
	Epoch     int
	Step      int64
	Loss      float64
	LR        float64 // filled by LoadCheckpoint
	Metadata  map[string]string
	CreatedAt time.Time
}

// Save writes the checkpoint to a SafeTensors file.
func (c *Checkpoint) Save(path string, opts ...serialization.WriteOption) error {
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}

	meta := make(map[string]string, len(c.Metadata)+6)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			combined[optimizerPrefix+name] = raw
		}
		meta[metaLR] = strconv.FormatFloat(c.Optimizer.GetLR(), 'g', -1, 64)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta[metaKind] = checkpointKind
	meta[metaEpoch] = strconv.Itoa(c.Epoch)
	meta[metaStep] = strconv.FormatInt(c.Step, 10)
	meta[metaLoss] = strconv.FormatFloat(c.Loss, 'g', -1, 64)
	meta[metaCreatedAt] = createdAt.Format(time.RFC3339)

	if err := serialization.WriteSafeTensors(path, combined, meta, opts...); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores model and optimizer state from path.
//
// The model and optimizer must be constructed with the same configuration
// as when the checkpoint was saved. optimizer may be nil, in which case any
// saved optimizer state is ignored.
func LoadCheckpoint(path string, model Module, optimizer OptimizerState) (*Checkpoint, error) {
	stateDict, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if meta[metaKind] != checkpointKind {
		return nil, fmt.Errorf("%s: %w", path, ErrNotCheckpoint)
	}

	modelStateDict := make(map[string]*tensor.RawTensor)
	optimizerStateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerStateDict[rest] = raw
		} else {
			modelStateDict[name] = raw
		}
	}

	if err := model.LoadStateDict(modelStateDict); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if optimizer != nil {
		if err := optimizer.LoadStateDict(optimizerStateDict); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	c := &Checkpoint{
		Model:     model,
		Optimizer: optimizer,
		Metadata:  make(map[string]string),
	}
	if c.Epoch, err = strconv.Atoi(meta[metaEpoch]); err != nil {
		return nil, fmt.Errorf("checkpoint epoch: %w", err)
	}
	if c.Step, err = strconv.ParseInt(meta[metaStep], 10, 64); err != nil {
		return nil, fmt.Errorf("checkpoint step: %w", err)
	}
	if c.Loss, err = strconv.ParseFloat(meta[metaLoss], 64); err != nil {
		return nil, fmt.Errorf("checkpoint loss: %w", err)
	}
	if lr, ok := meta[metaLR]; ok {
		if c.LR, err = strconv.ParseFloat(lr, 64); err != nil {
			return nil, fmt.Errorf("checkpoint lr: %w", err)
		}
	}
	if created, ok := meta[metaCreatedAt]; ok {
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}

	for k, v := range meta {
		switch k {
		case metaKind, metaEpoch, metaStep, metaLoss, metaLR, metaCreatedAt, serialization.ChecksumKey:
		default:
			c.Metadata[k] = v
		}
	}
	return c, nil
}
