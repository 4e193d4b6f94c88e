package agent

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"chesstrain/rng"
)

// network is a single-hidden-layer feed-forward Q-network. Rather than a
// single sigmoid output scoring one board value, it has one output per
// discrete action (a Q-value per action), since the chess action space
// needs per-action values rather than a single board value.
type network struct {
	inputSize  int
	hiddenSize int
	outputSize int
	lr         float64

	weightsIH [][]float64 // hidden x input
	weightsHO [][]float64 // output x hidden
	biasH     []float64
	biasO     []float64
}

func newNetwork(inputSize, hiddenSize, outputSize int, lr float64, stream *rng.Stream) *network {
	nn := &network{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		outputSize: outputSize,
		lr:         lr,
	}

	nn.weightsIH = make([][]float64, hiddenSize)
	for i := range nn.weightsIH {
		nn.weightsIH[i] = make([]float64, inputSize)
		for j := range nn.weightsIH[i] {
			nn.weightsIH[i][j] = stream.Float64()*2 - 1
		}
	}

	nn.weightsHO = make([][]float64, outputSize)
	for i := range nn.weightsHO {
		nn.weightsHO[i] = make([]float64, hiddenSize)
		for j := range nn.weightsHO[i] {
			nn.weightsHO[i][j] = stream.Float64()*2 - 1
		}
	}

	nn.biasH = make([]float64, hiddenSize)
	for i := range nn.biasH {
		nn.biasH[i] = stream.Float64()*2 - 1
	}
	nn.biasO = make([]float64, outputSize)
	for i := range nn.biasO {
		nn.biasO[i] = stream.Float64()*2 - 1
	}

	return nn
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func sigmoidDerivative(y float64) float64 { return y * (1 - y) }

// forward returns the hidden activations and output activations.
func (nn *network) forward(inputs []float64) (hidden, outputs []float64, err error) {
	if len(inputs) != nn.inputSize {
		return nil, nil, fmt.Errorf("expected %d inputs, got %d", nn.inputSize, len(inputs))
	}

	hidden = make([]float64, nn.hiddenSize)
	for i := 0; i < nn.hiddenSize; i++ {
		sum := nn.biasH[i]
		for j := 0; j < nn.inputSize; j++ {
			sum += inputs[j] * nn.weightsIH[i][j]
		}
		hidden[i] = sigmoid(sum)
	}

	outputs = make([]float64, nn.outputSize)
	for i := 0; i < nn.outputSize; i++ {
		sum := nn.biasO[i]
		for j := 0; j < nn.hiddenSize; j++ {
			sum += hidden[j] * nn.weightsHO[i][j]
		}
		outputs[i] = sigmoid(sum)
	}

	return hidden, outputs, nil
}

// predict returns only the output activations.
func (nn *network) predict(inputs []float64) ([]float64, error) {
	_, outputs, err := nn.forward(inputs)
	return outputs, err
}

// trainStep performs one backprop update for a single (inputs, targets)
// pair. It returns the squared-error loss and the L2 norm of the weight
// gradients applied, so callers can report UpdateResult.Loss/GradientNorm.
func (nn *network) trainStep(inputs, targets []float64) (loss, gradNorm float64, err error) {
	if len(inputs) != nn.inputSize {
		return 0, 0, fmt.Errorf("expected %d inputs, got %d", nn.inputSize, len(inputs))
	}
	if len(targets) != nn.outputSize {
		return 0, 0, fmt.Errorf("expected %d targets, got %d", nn.outputSize, len(targets))
	}

	hidden, outputs, err := nn.forward(inputs)
	if err != nil {
		return 0, 0, err
	}

	outputErrors := make([]float64, nn.outputSize)
	for i := range outputErrors {
		outputErrors[i] = targets[i] - outputs[i]
		loss += outputErrors[i] * outputErrors[i]
	}
	loss /= float64(nn.outputSize)

	outputGradients := make([]float64, nn.outputSize)
	for i := range outputGradients {
		outputGradients[i] = outputErrors[i] * sigmoidDerivative(outputs[i]) * nn.lr
	}

	hiddenErrors := make([]float64, nn.hiddenSize)
	for i := range hiddenErrors {
		var sum float64
		for j := 0; j < nn.outputSize; j++ {
			sum += outputErrors[j] * nn.weightsHO[j][i]
		}
		hiddenErrors[i] = sum
	}

	hiddenGradients := make([]float64, nn.hiddenSize)
	for i := range hiddenGradients {
		hiddenGradients[i] = hiddenErrors[i] * sigmoidDerivative(hidden[i]) * nn.lr
	}

	var sumSquares float64
	for i := 0; i < nn.outputSize; i++ {
		for j := 0; j < nn.hiddenSize; j++ {
			delta := outputGradients[i] * hidden[j]
			nn.weightsHO[i][j] += delta
			sumSquares += delta * delta
		}
		nn.biasO[i] += outputGradients[i]
		sumSquares += outputGradients[i] * outputGradients[i]
	}

	for i := 0; i < nn.hiddenSize; i++ {
		for j := 0; j < nn.inputSize; j++ {
			delta := hiddenGradients[i] * inputs[j]
			nn.weightsIH[i][j] += delta
			sumSquares += delta * delta
		}
		nn.biasH[i] += hiddenGradients[i]
		sumSquares += hiddenGradients[i] * hiddenGradients[i]
	}

	gradNorm = math.Sqrt(sumSquares)
	return loss, gradNorm, nil
}

// gobNetwork is the on-the-wire shape for (de)serialization, split from the
// live struct so unexported fields still round-trip through gob.
type gobNetwork struct {
	InputSize, HiddenSize, OutputSize int
	LR                                float64
	WeightsIH, WeightsHO              [][]float64
	BiasH, BiasO                      []float64
}

func (nn *network) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(gobNetwork{
		InputSize: nn.inputSize, HiddenSize: nn.hiddenSize, OutputSize: nn.outputSize,
		LR: nn.lr, WeightsIH: nn.weightsIH, WeightsHO: nn.weightsHO,
		BiasH: nn.biasH, BiasO: nn.biasO,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (nn *network) GobDecode(data []byte) error {
	var g gobNetwork
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	nn.inputSize, nn.hiddenSize, nn.outputSize, nn.lr = g.InputSize, g.HiddenSize, g.OutputSize, g.LR
	nn.weightsIH, nn.weightsHO, nn.biasH, nn.biasO = g.WeightsIH, g.WeightsHO, g.BiasH, g.BiasO
	return nil
}
