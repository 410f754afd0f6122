package glossary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMap(t *testing.T) {
	entries := []Entry{
		{English: "transformer", Chinese: "变换器"},
		{English: "BERT", KeepEnglish: true},
		{English: "attention", Chinese: "注意力", KeepEnglish: false},
		{English: "", Chinese: "孤儿"},
		{English: "untranslated"},
	}

	m := ToMap(entries)

	assert.Equal(t, map[string]string{
		"transformer": "变换器",
		"BERT":        "BERT",
		"attention":   "注意力",
	}, m)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nlp", "nlp"},
		{"NLP", "nlp"},
		{"Machine Learning", "machine_learning"},
		{"  computer vision  ", "computer_vision"},
		{"a/b", "ab"},
		{"../etc", "etc"},
		{"", DefaultDomain},
		{"自然语言处理", DefaultDomain},
		{"---", DefaultDomain},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}
