package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float32FromLE lê um float32 little-endian (IEEE 754) a partir do offset informado
func Float32FromLE(data []byte, offset int) (float32, error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, fmt.Errorf("offset %d fora do buffer de %d bytes", offset, len(data))
	}
	bits := binary.LittleEndian.Uint32(data[offset : offset+4])
	return math.Float32frombits(bits), nil
}

// PutFloat32LE escreve um float32 little-endian no offset informado
func PutFloat32LE(data []byte, offset int, val float32) {
	binary.LittleEndian.PutUint32(data[offset:offset+4], math.Float32bits(val))
}

// Float32ToBytes converte um valor float32 para bytes big-endian (formato REAL do S7)
func Float32ToBytes(val float32) []byte {
	bits := math.Float32bits(val)
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, bits)
	return bytes
}

// BytesToFloat32 converte bytes big-endian para float32
func BytesToFloat32(bytes []byte) float32 {
	bits := binary.BigEndian.Uint32(bytes)
	return math.Float32frombits(bits)
}

// Int16ToBytes converte um valor int16 para bytes big-endian (formato INT do S7)
func Int16ToBytes(val int16) []byte {
	bytes := make([]byte, 2)
	binary.BigEndian.PutUint16(bytes, uint16(val))
	return bytes
}

// BytesToInt16 converte bytes big-endian para int16
func BytesToInt16(bytes []byte) int16 {
	return int16(binary.BigEndian.Uint16(bytes))
}

// Int32ToBytes converte um valor int32 para bytes big-endian (formato DINT do S7)
func Int32ToBytes(val int32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, uint32(val))
	return bytes
}

// BytesToInt32 converte bytes big-endian para int32
func BytesToInt32(bytes []byte) int32 {
	return int32(binary.BigEndian.Uint32(bytes))
}

// IsFinite verifica se o valor não é NaN nem infinito
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseFloat converte strings numéricas ("1.5", " -2e3 ") para float64
func ParseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
