package decoder

import (
	"time"

	"imu_go/internal/models"
	"imu_go/pkg/utils"
)

// FrameLength é o tamanho do quadro binário: etiqueta + 3 x float32
const FrameLength = 13

// binaryTags mapeia o byte de assinatura para o sensor
var binaryTags = map[byte]string{
	'A':  models.SensorAccel,
	'a':  models.SensorAccel,
	0x01: models.SensorAccel,
	'G':  models.SensorGyro,
	'g':  models.SensorGyro,
	0x02: models.SensorGyro,
	'V':  models.SensorGravity,
	'v':  models.SensorGravity,
	0x03: models.SensorGravity,
}

var frameAxes = [3]string{"x", "y", "z"}

// decodeBinary reconhece o quadro fixo de 13 bytes
func decodeBinary(raw []byte, now time.Time) ([]models.Reading, bool) {
	if len(raw) != FrameLength {
		return nil, false
	}

	sensor, ok := binaryTags[raw[0]]
	if !ok {
		return nil, false
	}

	readings := make([]models.Reading, 0, 3)
	for i, axis := range frameAxes {
		v, err := utils.Float32FromLE(raw, 1+i*4)
		if err != nil {
			return nil, false
		}
		value := float64(v)
		if !utils.IsFinite(value) {
			continue
		}
		readings = append(readings, models.Reading{
			Sensor:    sensor,
			Axis:      axis,
			Value:     value,
			Timestamp: now,
		})
	}
	return readings, true
}

// EncodeFrame monta um quadro binário (usado pelo simulador e pelos testes)
func EncodeFrame(tag byte, x, y, z float32) []byte {
	frame := make([]byte, FrameLength)
	frame[0] = tag
	utils.PutFloat32LE(frame, 1, x)
	utils.PutFloat32LE(frame, 5, y)
	utils.PutFloat32LE(frame, 9, z)
	return frame
}
