package inference

import (
	"fmt"
	"math"

	"imu_go/internal/models"
)

// Engine aplica o classificador (ou o fallback) a um vetor de características
type Engine struct {
	classifier Classifier
	source     string
}

// NewEngine usa o modelo quando disponível; com model nil, usa a regra de fallback
func NewEngine(model Classifier, fallback FallbackRule) *Engine {
	if model == nil {
		return &Engine{classifier: fallback, source: models.SourceFallback}
	}
	return &Engine{classifier: model, source: models.SourceModel}
}

// Mode retorna "modelo" ou "fallback"
func (e *Engine) Mode() string {
	return e.source
}

// Predict invoca o classificador. Pânicos da invocação viram erro para que
// apenas aquele ciclo seja descartado.
func (e *Engine) Predict(features []float64) (result models.PredictionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pânico no classificador: %v", r)
		}
	}()

	probs, err := e.classifier.PredictProbabilities(features)
	if err != nil {
		return result, fmt.Errorf("erro na inferência (%s): %w", e.source, err)
	}
	label, confidence := Top(probs)
	if rule, ok := e.classifier.(FallbackRule); ok {
		// No empate exato a regra manda LowLabel, independente da ordem dos rótulos
		if label, confidence, err = rule.Decide(features); err != nil {
			return result, err
		}
	}
	if label == "" {
		return result, fmt.Errorf("classificador (%s) não retornou probabilidades", e.source)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return result, fmt.Errorf("confiança fora de [0,1]: %v", confidence)
	}

	return models.PredictionResult{
		Label:         label,
		Confidence:    confidence,
		Probabilities: probs,
		Features:      append([]float64(nil), features...),
		Source:        e.source,
	}, nil
}
