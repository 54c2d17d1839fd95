package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"", "***@***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, RedactEmail(tt.in))
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"+5511987654321", "***4321"},
		{"15551234567", "***4567"},
		{"123", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, RedactPhone(tt.in))
	}
}
