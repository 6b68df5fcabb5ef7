package lss

import "testing"

func TestCRC16KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty input", nil, 0xFFFF},
		{"check string 123456789", []byte("123456789"), 0x29B1},
		{"single zero byte", []byte{0x00}, 0xE1F0},
		{"single 0xFF", []byte{0xFF}, 0xFF00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.expected {
				t.Errorf("CRC16() = 0x%04X, expected 0x%04X", got, tt.expected)
			}
		})
	}
}

func TestCRC16DeterministicAndSensitive(t *testing.T) {
	// 同一输入必须稳定；末字节不同则结果不同
	a := CRC16([]byte("abcdef"))
	b := CRC16([]byte("abcdef"))
	if a != b {
		t.Fatalf("CRC16 not deterministic: 0x%04X vs 0x%04X", a, b)
	}
	if CRC16([]byte("abcdeg")) == a {
		t.Fatalf("single byte change did not alter CRC")
	}
}
