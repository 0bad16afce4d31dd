package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/document"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Matematica", "matematica"},
		{"Limba Romana", "limba_romana"},
		{"  Scoala Normala  ", "scoala_normala"},
		{"clasa_0", "clasa_0"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestCalculator_Key(t *testing.T) {
	calc := NewCalculator(nil)

	key, ok := calc.Key(document.Hierarchy{School: "math", Class: "clasa_0", Subject: "Matematica"})
	assert.True(t, ok)
	assert.Equal(t, "math_clasa_0_matematica", key)

	key, ok = calc.Key(document.Hierarchy{School: "Scoala Normala", Class: "Clasa 1", Subject: "Limba Romana"})
	assert.True(t, ok)
	assert.Equal(t, "scoala_normala_clasa_1_limba_romana", key)
}

func TestCalculator_Key_IncompleteHierarchyNeverPartial(t *testing.T) {
	calc := NewCalculator(nil)

	tests := []struct {
		name string
		h    document.Hierarchy
	}{
		{"missing school", document.Hierarchy{Class: "clasa_0", Subject: "Matematica"}},
		{"missing class", document.Hierarchy{School: "math", Subject: "Matematica"}},
		{"missing subject", document.Hierarchy{School: "math", Class: "clasa_0"}},
		{"all missing", document.Hierarchy{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := calc.Key(tt.h)
			assert.False(t, ok)
			assert.Empty(t, key)
		})
	}
}
