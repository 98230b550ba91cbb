package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LogisticModel is a file-backed logistic scorer. Weight files are exported
// by the training pipeline as JSON: a bias term plus one coefficient per
// feature name.
type LogisticModel struct {
	name    string
	bias    float64
	weights map[string]float64
}

type modelFile struct {
	Name    string             `json:"name"`
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// LoadModel reads a logistic weight file from disk.
func LoadModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}
	if mf.Name == "" {
		return nil, fmt.Errorf("model file %s: missing name", path)
	}
	if len(mf.Weights) == 0 {
		return nil, fmt.Errorf("model file %s: no weights", path)
	}

	return &LogisticModel{name: mf.Name, bias: mf.Bias, weights: mf.Weights}, nil
}

func (m *LogisticModel) Name() string { return m.name }

// Score computes sigmoid(bias + Σ wᵢ·xᵢ). Unknown weight names contribute
// nothing, so models trained on a feature subset still score.
func (m *LogisticModel) Score(_ context.Context, fv *FeatureVector) (float64, error) {
	z := m.bias
	for name, w := range m.weights {
		z += w * featureValue(fv, name)
	}
	return 1.0 / (1.0 + math.Exp(-z)), nil
}

func featureValue(fv *FeatureVector, name string) float64 {
	switch name {
	case "transaction_amount":
		return fv.Amount
	case "hour_of_day":
		return float64(fv.HourOfDay)
	case "day_of_week":
		return float64(fv.DayOfWeek)
	case "transactions_last_1hr":
		return float64(fv.Count1h)
	case "transactions_last_24hr":
		return float64(fv.Count24h)
	case "avg_amount_last_7_days":
		return fv.AvgAmount7d
	case "device_change_flag":
		return boolFeature(fv.DeviceChange)
	case "location_change_flag":
		return boolFeature(fv.LocationChange)
	case "failed_attempts_last_1hr":
		return float64(fv.FailedAttempts)
	case "receiver_new_flag":
		return boolFeature(fv.ReceiverIsNew)
	default:
		return 0
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StaticModel returns a fixed probability; used in tests and demos.
type StaticModel struct {
	ModelName   string
	Probability float64
	Err         error
}

func (m *StaticModel) Name() string { return m.ModelName }

func (m *StaticModel) Score(context.Context, *FeatureVector) (float64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Probability, nil
}
