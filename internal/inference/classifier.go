// Package inference contém o contrato do classificador, o modelo logístico
// carregado de YAML, a regra de fallback e o portão que decide quando inferir.
package inference

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

var (
	// ErrFeatureLength indica vetor de características com tamanho inesperado
	ErrFeatureLength = errors.New("tamanho do vetor de características incompatível")
	// ErrNoModel indica artefato de modelo ausente
	ErrNoModel = errors.New("modelo não disponível")
)

// Classifier é o contrato opaco do classificador treinado
type Classifier interface {
	PredictProbabilities(features []float64) (map[string]float64, error)
}

// Top retorna o rótulo de maior probabilidade. Empates são decididos pela
// ordem lexicográfica do rótulo.
func Top(probs map[string]float64) (string, float64) {
	labels := make([]string, 0, len(probs))
	for label := range probs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best, bestP := "", -1.0
	for _, label := range labels {
		if p := probs[label]; p > bestP {
			best, bestP = label, p
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestP
}

// scalerArtifact é o padronizador opcional (x - mean) / scale
type scalerArtifact struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

// modelArtifact é o formato em disco do modelo logístico
type modelArtifact struct {
	Name         string          `yaml:"name"`
	Features     []string        `yaml:"features"`
	Scaler       *scalerArtifact `yaml:"scaler"`
	Coefficients [][]float64     `yaml:"coefficients"`
	Intercept    []float64       `yaml:"intercept"`
	Classes      []int           `yaml:"classes"`
}

// LogisticModel é uma regressão logística (binária ou multinomial)
type LogisticModel struct {
	Name         string
	FeatureNames []string

	mean, scale  []float64
	coefficients [][]float64
	intercept    []float64
	labels       []string // rótulo por classe, na ordem de classes
}

// NumFeatures retorna o tamanho esperado do vetor de entrada
func (m *LogisticModel) NumFeatures() int {
	return len(m.coefficients[0])
}

// Labels retorna os rótulos conhecidos pelo modelo
func (m *LogisticModel) Labels() []string {
	return append([]string(nil), m.labels...)
}

// PredictProbabilities calcula a distribuição de probabilidade por rótulo
func (m *LogisticModel) PredictProbabilities(features []float64) (map[string]float64, error) {
	if len(features) != m.NumFeatures() {
		return nil, fmt.Errorf("%w: recebido %d, esperado %d", ErrFeatureLength, len(features), m.NumFeatures())
	}

	x := features
	if m.mean != nil {
		x = make([]float64, len(features))
		floats.SubTo(x, features, m.mean)
		floats.Div(x, m.scale)
	}

	scores := make([]float64, len(m.coefficients))
	for c, row := range m.coefficients {
		z := m.intercept[c] + floats.Dot(row, x)
		if math.IsNaN(z) || math.IsInf(z, 0) {
			return nil, fmt.Errorf("escore não finito para a classe %s", m.labels[c])
		}
		scores[c] = z
	}

	probs := make(map[string]float64, len(m.labels))
	if len(scores) == 1 {
		p := Sigmoid(scores[0])
		probs[m.labels[0]] = 1 - p
		probs[m.labels[1]] = p
		return probs, nil
	}

	// softmax estável
	floats.AddConst(-floats.Max(scores), scores)
	for i, s := range scores {
		scores[i] = math.Exp(s)
	}
	floats.Scale(1/floats.Sum(scores), scores)
	for i, label := range m.labels {
		probs[label] = scores[i]
	}
	return probs, nil
}

// Sigmoid é a função logística 1 / (1 + e^-z)
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// LoadClassifier carrega o modelo e o mapa de rótulos.
// Um erro aqui leva o chamador à regra de fallback.
func LoadClassifier(modelPath, labelsPath string) (*LogisticModel, error) {
	if modelPath == "" {
		return nil, ErrNoModel
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoModel, modelPath)
		}
		return nil, fmt.Errorf("erro ao ler modelo: %w", err)
	}

	var artifact modelArtifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("erro ao decodificar modelo %s: %w", modelPath, err)
	}

	labels := map[int]string{}
	if labelsPath != "" {
		labels, err = loadLabels(labelsPath)
		if err != nil {
			return nil, err
		}
	}

	return newLogisticModel(artifact, labels)
}

// loadLabels lê o mapa índice -> rótulo
func loadLabels(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler rótulos: %w", err)
	}
	labels := make(map[int]string)
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("erro ao decodificar rótulos %s: %w", path, err)
	}
	return labels, nil
}

func newLogisticModel(a modelArtifact, labels map[int]string) (*LogisticModel, error) {
	if len(a.Coefficients) == 0 || len(a.Coefficients[0]) == 0 {
		return nil, errors.New("modelo sem coeficientes")
	}
	width := len(a.Coefficients[0])
	for i, row := range a.Coefficients {
		if len(row) != width {
			return nil, fmt.Errorf("linha %d de coeficientes com %d colunas, esperado %d", i, len(row), width)
		}
	}
	if len(a.Intercept) != len(a.Coefficients) {
		return nil, fmt.Errorf("intercepto com %d valores para %d linhas de coeficientes", len(a.Intercept), len(a.Coefficients))
	}
	if len(a.Features) > 0 && len(a.Features) != width {
		return nil, fmt.Errorf("%w: modelo lista %d características e %d coeficientes", ErrFeatureLength, len(a.Features), width)
	}

	classes := a.Classes
	if len(classes) == 0 {
		n := len(a.Coefficients)
		if n == 1 {
			n = 2
		}
		for i := 0; i < n; i++ {
			classes = append(classes, i)
		}
	}
	binary := len(a.Coefficients) == 1
	if binary && len(classes) != 2 {
		return nil, fmt.Errorf("modelo binário exige 2 classes, recebido %d", len(classes))
	}
	if !binary && len(classes) != len(a.Coefficients) {
		return nil, fmt.Errorf("%d classes para %d linhas de coeficientes", len(classes), len(a.Coefficients))
	}

	m := &LogisticModel{
		Name:         a.Name,
		FeatureNames: a.Features,
		coefficients: a.Coefficients,
		intercept:    a.Intercept,
	}

	seen := make(map[string]bool, len(classes))
	for _, c := range classes {
		label, ok := labels[c]
		if !ok {
			label = strconv.Itoa(c)
		}
		if seen[label] {
			return nil, fmt.Errorf("rótulo duplicado: %s", label)
		}
		seen[label] = true
		m.labels = append(m.labels, label)
	}

	if a.Scaler != nil {
		if len(a.Scaler.Mean) != width || len(a.Scaler.Scale) != width {
			return nil, fmt.Errorf("padronizador com tamanho incompatível (mean=%d, scale=%d, esperado %d)",
				len(a.Scaler.Mean), len(a.Scaler.Scale), width)
		}
		m.mean = a.Scaler.Mean
		m.scale = make([]float64, width)
		for i, s := range a.Scaler.Scale {
			// escala nula equivale a característica constante no treino
			if s == 0 {
				s = 1
			}
			m.scale[i] = s
		}
	}

	return m, nil
}
