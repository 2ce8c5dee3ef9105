// Package neural provides a small feedforward network that maps observation
// vectors to navigation actions.
package neural

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
)

// FFNN is a two-layer feedforward network with tanh activations on both
// layers, so every output lies in [-1, 1].
type FFNN struct {
	W1 *mat.Dense    // hidden x inputs
	B1 *mat.VecDense // hidden
	W2 *mat.Dense    // outputs x hidden
	B2 *mat.VecDense // outputs

	hidden *mat.VecDense
	out    *mat.VecDense
	in     *mat.VecDense
}

// NewFFNN creates a network with Xavier-initialised weights and zero biases.
func NewFFNN(rng *rand.Rand, inputs, hidden, outputs int) *FFNN {
	nn := newEmpty(inputs, hidden, outputs)
	scale1 := math.Sqrt(2.0 / float64(inputs))
	scale2 := math.Sqrt(2.0 / float64(hidden))
	fill(nn.W1, rng, scale1)
	fill(nn.W2, rng, scale2)
	return nn
}

func newEmpty(inputs, hidden, outputs int) *FFNN {
	return &FFNN{
		W1:     mat.NewDense(hidden, inputs, nil),
		B1:     mat.NewVecDense(hidden, nil),
		W2:     mat.NewDense(outputs, hidden, nil),
		B2:     mat.NewVecDense(outputs, nil),
		hidden: mat.NewVecDense(hidden, nil),
		out:    mat.NewVecDense(outputs, nil),
		in:     mat.NewVecDense(inputs, nil),
	}
}

func fill(m *mat.Dense, rng *rand.Rand, scale float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, rng.NormFloat64()*scale)
		}
	}
}

// Dims returns the input, hidden and output sizes.
func (nn *FFNN) Dims() (inputs, hidden, outputs int) {
	hidden, inputs = nn.W1.Dims()
	outputs, _ = nn.W2.Dims()
	return inputs, hidden, outputs
}

// Forward computes the network output into dst, which is grown if needed.
// Inputs beyond the network's input size are ignored; missing ones are zero.
// Forward reuses internal buffers and is not safe for concurrent use.
func (nn *FFNN) Forward(inputs []float32, dst []float32) []float32 {
	n := nn.in.Len()
	for i := 0; i < n; i++ {
		var v float64
		if i < len(inputs) {
			v = float64(inputs[i])
		}
		nn.in.SetVec(i, v)
	}

	nn.hidden.MulVec(nn.W1, nn.in)
	nn.hidden.AddVec(nn.hidden, nn.B1)
	for i := 0; i < nn.hidden.Len(); i++ {
		nn.hidden.SetVec(i, tanh(nn.hidden.AtVec(i)))
	}

	nn.out.MulVec(nn.W2, nn.hidden)
	nn.out.AddVec(nn.out, nn.B2)

	outs := nn.out.Len()
	if cap(dst) < outs {
		dst = make([]float32, outs)
	}
	dst = dst[:outs]
	for i := range dst {
		dst[i] = float32(tanh(nn.out.AtVec(i)))
	}
	return dst
}

// Mutate perturbs every weight and bias with Gaussian noise.
func (nn *FFNN) Mutate(rng *rand.Rand, strength float64) {
	perturb := func(_, _ int, v float64) float64 { return v + rng.NormFloat64()*strength }
	nn.W1.Apply(perturb, nn.W1)
	nn.W2.Apply(perturb, nn.W2)
	for _, b := range []*mat.VecDense{nn.B1, nn.B2} {
		for i := 0; i < b.Len(); i++ {
			b.SetVec(i, b.AtVec(i)+rng.NormFloat64()*strength)
		}
	}
}

// Clone creates a deep copy of the network.
func (nn *FFNN) Clone() *FFNN {
	in, hid, out := nn.Dims()
	c := newEmpty(in, hid, out)
	c.W1.Copy(nn.W1)
	c.B1.CopyVec(nn.B1)
	c.W2.Copy(nn.W2)
	c.B2.CopyVec(nn.B2)
	return c
}

// tanh uses a fast rational approximation.
func tanh(x float64) float64 {
	if x > 4 {
		return 1
	}
	if x < -4 {
		return -1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}

// Weights holds flattened network weights for serialization.
type Weights struct {
	Inputs  int       `json:"inputs"`
	Hidden  int       `json:"hidden"`
	Outputs int       `json:"outputs"`
	W1      []float64 `json:"w1"` // row-major [hidden * inputs]
	B1      []float64 `json:"b1"`
	W2      []float64 `json:"w2"` // row-major [outputs * hidden]
	B2      []float64 `json:"b2"`
}

// MarshalWeights flattens the network weights.
func (nn *FFNN) MarshalWeights() Weights {
	in, hid, out := nn.Dims()
	return Weights{
		Inputs:  in,
		Hidden:  hid,
		Outputs: out,
		W1:      append([]float64(nil), nn.W1.RawMatrix().Data...),
		B1:      append([]float64(nil), nn.B1.RawVector().Data...),
		W2:      append([]float64(nil), nn.W2.RawMatrix().Data...),
		B2:      append([]float64(nil), nn.B2.RawVector().Data...),
	}
}

// FromWeights rebuilds a network from flattened weights.
func FromWeights(w Weights) (*FFNN, error) {
	if w.Inputs <= 0 || w.Hidden <= 0 || w.Outputs <= 0 {
		return nil, fmt.Errorf("invalid network dims %dx%dx%d", w.Inputs, w.Hidden, w.Outputs)
	}
	if len(w.W1) != w.Hidden*w.Inputs || len(w.B1) != w.Hidden ||
		len(w.W2) != w.Outputs*w.Hidden || len(w.B2) != w.Outputs {
		return nil, fmt.Errorf("weight lengths do not match dims %dx%dx%d", w.Inputs, w.Hidden, w.Outputs)
	}
	nn := newEmpty(w.Inputs, w.Hidden, w.Outputs)
	copy(nn.W1.RawMatrix().Data, w.W1)
	copy(nn.B1.RawVector().Data, w.B1)
	copy(nn.W2.RawMatrix().Data, w.W2)
	copy(nn.B2.RawVector().Data, w.B2)
	return nn, nil
}

// Save writes the network weights as JSON.
func (nn *FFNN) Save(path string) error {
	data, err := json.MarshalIndent(nn.MarshalWeights(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads network weights written by Save.
func Load(path string) (*FFNN, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing weights %s: %w", path, err)
	}
	return FromWeights(w)
}
