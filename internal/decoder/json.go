package decoder

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"imu_go/internal/models"
	"imu_go/pkg/utils"
)

// Nome do bloco aninhado enviado pelos aplicativos de sensores
const sensorDataKey = "sensordata"

var looseAxes = [3]string{"x", "y", "z"}

// decodeJSON reconhece documentos JSON cujo valor raiz é um objeto
func decodeJSON(raw []byte, now time.Time) ([]models.Reading, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, false
	}

	c := collector{now: now, index: make(map[models.AxisKey]int)}

	// 1) chaves planas sensor:campo e objetos por sensor no nível raiz
	for _, key := range sortedKeys(msg) {
		val := msg[key]
		if sensor, field, ok := strings.Cut(key, ":"); ok {
			c.add(rankFlat, sensor, field, val)
			continue
		}
		if _, known := sensorAliases[strings.ToLower(strings.TrimSpace(key))]; known {
			c.addPayload(rankNested, key, val)
		}
	}
	c.addLoose(rankLoose, msg)

	// 2) bloco sensordata
	if sd, ok := msg[sensorDataKey].(map[string]interface{}); ok {
		for _, sensor := range sortedKeys(sd) {
			if isLooseAxis(sensor) {
				continue
			}
			c.addPayload(rankSensorData, sensor, sd[sensor])
		}
		c.addLoose(rankSensorDataLoose, sd)
	}

	return c.readings, true
}

// Precedência quando o mesmo eixo aparece mais de uma vez no pacote; o maior
// vence. No mesmo nível vence a última chave em ordem lexicográfica.
const (
	rankFlat = iota
	rankNested
	rankLoose
	rankSensorData
	rankSensorDataLoose
)

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// collector acumula leituras válidas, uma por eixo, descartando campos não numéricos
type collector struct {
	now      time.Time
	readings []models.Reading
	index    map[models.AxisKey]int
	ranks    []int
}

func (c *collector) add(rank int, sensor, field string, val interface{}) {
	sensor = CanonicalSensor(sensor)
	field = strings.ToLower(strings.TrimSpace(field))
	if sensor == "" || field == "" {
		return
	}
	value, ok := toFloat(val)
	if !ok {
		return
	}
	reading := models.Reading{
		Sensor:    sensor,
		Axis:      field,
		Value:     value,
		Timestamp: c.now,
	}
	if i, seen := c.index[reading.Key()]; seen {
		if rank >= c.ranks[i] {
			c.readings[i] = reading
			c.ranks[i] = rank
		}
		return
	}
	c.index[reading.Key()] = len(c.readings)
	c.readings = append(c.readings, reading)
	c.ranks = append(c.ranks, rank)
}

// addPayload trata {"x":..,"y":..} e [x, y, z]
func (c *collector) addPayload(rank int, sensor string, payload interface{}) {
	switch p := payload.(type) {
	case map[string]interface{}:
		for _, field := range sortedKeys(p) {
			c.add(rank, sensor, field, p[field])
		}
	case []interface{}:
		if len(p) < 3 {
			return
		}
		for i, axis := range looseAxes {
			c.add(rank, sensor, axis, p[i])
		}
	}
}

// addLoose atribui eixos x/y/z soltos ao sensor padrão do objeto:
// gyro se houver entrada de giroscópio, senão accel, senão unknown
func (c *collector) addLoose(rank int, obj map[string]interface{}) {
	present := false
	for _, axis := range looseAxes {
		if _, ok := obj[axis]; ok {
			present = true
			break
		}
	}
	if !present {
		return
	}

	base := models.SensorUnknown
	hasAccel := false
	for key := range obj {
		switch CanonicalSensor(key) {
		case models.SensorGyro:
			base = models.SensorGyro
		case models.SensorAccel:
			hasAccel = true
		}
	}
	if base != models.SensorGyro && hasAccel {
		base = models.SensorAccel
	}

	for _, axis := range looseAxes {
		if val, ok := obj[axis]; ok {
			c.add(rank, base, axis, val)
		}
	}
}

func isLooseAxis(key string) bool {
	for _, axis := range looseAxes {
		if key == axis {
			return true
		}
	}
	return false
}

// toFloat converte números JSON e strings numéricas; valores não finitos são rejeitados
func toFloat(val interface{}) (float64, bool) {
	var value float64
	switch v := val.(type) {
	case float64:
		value = v
	case string:
		parsed, ok := utils.ParseFloat(v)
		if !ok {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if !utils.IsFinite(value) {
		return 0, false
	}
	return value, true
}
