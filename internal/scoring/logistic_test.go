package scoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeModelFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return path
}

func TestLoadModel_OK(t *testing.T) {
	path := writeModelFile(t, `{
		"name": "upi_fraud_lr_calibrated",
		"bias": -2.0,
		"weights": {"transaction_amount": 0.001, "transactions_last_1hr": 0.4}
	}`)

	m, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if m.Name() != "upi_fraud_lr_calibrated" {
		t.Errorf("Name = %s", m.Name())
	}

	p, err := m.Score(context.Background(), &FeatureVector{Amount: 1000, Count1h: 5})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if p <= 0 || p >= 1 {
		t.Errorf("probability out of (0,1): %f", p)
	}

	// z = -2 + 1 + 2 = 1 → sigmoid(1) ≈ 0.731
	if p < 0.72 || p > 0.74 {
		t.Errorf("probability = %f, want ≈0.731", p)
	}
}

func TestLoadModel_MissingFile(t *testing.T) {
	if _, err := LoadModel("/nonexistent/model.json"); err == nil {
		t.Fatal("expected error for missing model file")
	}
}

func TestLoadModel_NoWeights(t *testing.T) {
	path := writeModelFile(t, `{"name": "empty", "bias": 0, "weights": {}}`)
	if _, err := LoadModel(path); err == nil {
		t.Fatal("expected error for empty weights")
	}
}

func TestLoadModel_Malformed(t *testing.T) {
	path := writeModelFile(t, `{not json`)
	if _, err := LoadModel(path); err == nil {
		t.Fatal("expected error for malformed model file")
	}
}

func TestScore_MonotoneInRiskFeature(t *testing.T) {
	path := writeModelFile(t, `{
		"name": "m",
		"bias": -1.0,
		"weights": {"transactions_last_24hr": 0.2}
	}`)
	m, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}

	low, _ := m.Score(context.Background(), &FeatureVector{Count24h: 1})
	high, _ := m.Score(context.Background(), &FeatureVector{Count24h: 30})
	if high <= low {
		t.Errorf("expected higher count to raise probability: %f vs %f", low, high)
	}
}
