package inference

import (
	"fmt"
)

// FallbackRule é a regra de limiar usada quando o modelo não carrega.
// p = sigmoid(F - Threshold); HighLabel quando F > Threshold, senão LowLabel.
type FallbackRule struct {
	Feature      string
	FeatureIndex int
	Threshold    float64
	HighLabel    string
	LowLabel     string
}

// PredictProbabilities aplica a regra sobre a característica designada
func (r FallbackRule) PredictProbabilities(features []float64) (map[string]float64, error) {
	if r.FeatureIndex < 0 || r.FeatureIndex >= len(features) {
		return nil, fmt.Errorf("%w: índice %d (%s) fora de um vetor de %d",
			ErrFeatureLength, r.FeatureIndex, r.Feature, len(features))
	}
	p := Sigmoid(features[r.FeatureIndex] - r.Threshold)
	return map[string]float64{
		r.HighLabel: p,
		r.LowLabel:  1 - p,
	}, nil
}

// Decide retorna rótulo e confiança diretamente
func (r FallbackRule) Decide(features []float64) (string, float64, error) {
	if r.FeatureIndex < 0 || r.FeatureIndex >= len(features) {
		return "", 0, fmt.Errorf("%w: índice %d fora de um vetor de %d", ErrFeatureLength, r.FeatureIndex, len(features))
	}
	f := features[r.FeatureIndex]
	p := Sigmoid(f - r.Threshold)
	if f > r.Threshold {
		return r.HighLabel, p, nil
	}
	return r.LowLabel, 1 - p, nil
}
