// Package features calcula o vetor de características de uma janela cheia.
//
// Ordem congelada (um classificador treinado depende dela):
//
//	para cada eixo, na ordem de configuração: mean, std, min, max, rms, mad
//	magnitude (norma euclidiana por amostra entre todos os eixos):
//	  mag_mean, mag_std, mag_min, mag_max, mag_rms, mag_mad
//	axis_std_mean (média dos desvios padrão por eixo)
//
// std é o desvio padrão populacional e mad o desvio absoluto médio em torno da média.
package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrWindowNotFull indica que algum eixo tem menos de W amostras
var ErrWindowNotFull = errors.New("janela incompleta")

// Estatísticas por série, na ordem do vetor
var statNames = []string{"mean", "std", "min", "max", "rms", "mad"}

// PerAxis é o número de características por eixo
var PerAxis = len(statNames)

// Nomes das características agregadas
const (
	MagnitudeMean = "mag_mean"
	AxisStdMean   = "axis_std_mean"
)

// Names retorna os nomes das características na ordem do vetor
func Names(axes []string) []string {
	names := make([]string, 0, Length(len(axes)))
	for _, axis := range axes {
		for _, stat := range statNames {
			names = append(names, axis+"_"+stat)
		}
	}
	for _, stat := range statNames {
		names = append(names, "mag_"+stat)
	}
	return append(names, AxisStdMean)
}

// Length retorna o tamanho do vetor para n eixos
func Length(n int) int {
	return n*PerAxis + PerAxis + 1
}

// Index localiza uma característica pelo nome; -1 se ausente
func Index(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Extract calcula o vetor a partir das colunas (uma por eixo, mais antiga primeiro).
// Usa as últimas w amostras de cada coluna. Função pura.
func Extract(columns [][]float64, w int) ([]float64, error) {
	if len(columns) == 0 || w <= 0 {
		return nil, fmt.Errorf("%w: nenhum eixo ou janela inválida (w=%d)", ErrWindowNotFull, w)
	}
	for i, col := range columns {
		if len(col) < w {
			return nil, fmt.Errorf("%w: eixo %d com %d/%d amostras", ErrWindowNotFull, i, len(col), w)
		}
	}

	vector := make([]float64, 0, Length(len(columns)))
	magnitude := make([]float64, w)
	var stdSum float64

	for _, col := range columns {
		window := col[len(col)-w:]
		s := describe(window)
		vector = append(vector, s.mean, s.std, s.min, s.max, s.rms, s.mad)
		stdSum += s.std

		for i, v := range window {
			magnitude[i] += v * v
		}
	}

	for i := range magnitude {
		magnitude[i] = math.Sqrt(magnitude[i])
	}
	m := describe(magnitude)
	vector = append(vector, m.mean, m.std, m.min, m.max, m.rms, m.mad)
	vector = append(vector, stdSum/float64(len(columns)))

	return vector, nil
}

// summary agrupa as estatísticas de uma série
type summary struct {
	mean, std, min, max, rms, mad float64
}

// describe calcula as estatísticas de uma série não vazia
func describe(values []float64) summary {
	n := float64(len(values))
	s := summary{
		min: floats.Min(values),
		max: floats.Max(values),
		rms: math.Sqrt(floats.Dot(values, values) / n),
	}
	s.mean, s.std = stat.PopMeanStdDev(values, nil)

	deviations := make([]float64, len(values))
	copy(deviations, values)
	floats.AddConst(-s.mean, deviations)
	s.mad = floats.Norm(deviations, 1) / n
	return s
}
