// Package decoder converte datagramas brutos (quadro binário fixo ou JSON em
// vários formatos) em leituras normalizadas sensor/eixo/valor.
//
// As variantes são testadas em ordem fixa:
//
//  1. binary: 13 bytes, etiqueta + três float32 little-endian
//  2. json: objeto com chaves planas "sensor:eixo", bloco "sensordata"
//     (objetos, arrays de 3 elementos ou eixos soltos) ou objetos por sensor
//
// A primeira variante que reconhece o pacote decide o resultado. Pacotes que
// nenhuma variante reconhece produzem zero leituras, sem erro.
package decoder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"imu_go/internal/models"
)

// Result é o resultado da decodificação de um datagrama.
// Zero leituras com Err nil significa "nada a extrair"; Err só é preenchido
// quando uma variante falhou de forma inesperada (defeito do decodificador).
type Result struct {
	Readings []models.Reading
	Variant  string
	Err      error
}

// Empty indica que nenhuma leitura foi extraída
func (r Result) Empty() bool {
	return len(r.Readings) == 0
}

// variant é uma forma de pacote reconhecida pelo decodificador
type variant struct {
	name   string
	decode func(raw []byte, now time.Time) ([]models.Reading, bool)
}

// variants em ordem de prioridade
var variants = []variant{
	{name: VariantBinary, decode: decodeBinary},
	{name: VariantJSON, decode: decodeJSON},
}

// Nomes das variantes
const (
	VariantBinary = "binary"
	VariantJSON   = "json"
	VariantNone   = "none"
)

// Decode decodifica um datagrama bruto. Nunca bloqueia e não guarda estado.
func Decode(raw []byte, now time.Time) Result {
	for _, v := range variants {
		readings, matched, err := safeDecode(v, raw, now)
		if err != nil {
			return Result{Variant: v.name, Err: err}
		}
		if matched {
			sortReadings(readings)
			return Result{Readings: readings, Variant: v.name}
		}
	}
	return Result{Variant: VariantNone}
}

// safeDecode isola pânicos de uma variante para que o loop de recepção continue
func safeDecode(v variant, raw []byte, now time.Time) (readings []models.Reading, matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("variante %s falhou: %v", v.name, r)
			readings, matched = nil, false
		}
	}()
	readings, matched = v.decode(raw, now)
	return readings, matched, nil
}

// sortReadings ordena por sensor e eixo para saída determinística
func sortReadings(readings []models.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].Sensor != readings[j].Sensor {
			return readings[i].Sensor < readings[j].Sensor
		}
		return readings[i].Axis < readings[j].Axis
	})
}

// sensorAliases mapeia nomes usados pelos aplicativos para o nome canônico
var sensorAliases = map[string]string{
	"accel":         models.SensorAccel,
	"accelerometer": models.SensorAccel,
	"acc":           models.SensorAccel,
	"gyro":          models.SensorGyro,
	"gyroscope":     models.SensorGyro,
	"gyr":           models.SensorGyro,
	"gravity":       models.SensorGravity,
	"grav":          models.SensorGravity,
}

// CanonicalSensor normaliza o nome de um sensor
func CanonicalSensor(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := sensorAliases[name]; ok {
		return canonical
	}
	return name
}
