package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		raw  string
		want ReferenceKind
	}{
		{"10.1038/nature12373", ReferencePersistentID},
		{"doi:10.1038/nature12373", ReferencePersistentID},
		{"https://doi.org/10.1038/nature12373", ReferencePersistentID},
		{"arXiv:1710.10903", ReferencePersistentID},
		{"1710.10903v3", ReferencePersistentID},
		{"https://arxiv.org/pdf/1710.10903", ReferenceWebURL},
		{"http://example.org/paper.pdf", ReferenceWebURL},
		{"papers/gat.pdf", ReferenceLocalPath},
		{"/home/ana/Downloads/My Paper.pdf", ReferenceLocalPath},
		{"ftp://example.org/paper.pdf", ReferenceLocalPath},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref := ParseReference("  "+tt.raw+" ", " Lab ")
			assert.Equal(t, tt.want, ref.Kind)
			assert.Equal(t, tt.raw, ref.Raw)
			assert.Equal(t, "Lab", ref.Source)
		})
	}
}

func TestNormalizeDOI(t *testing.T) {
	doi, ok := NormalizeDOI("https://dx.doi.org/10.1145/3292500.3330701")
	assert.True(t, ok)
	assert.Equal(t, "10.1145/3292500.3330701", doi)

	doi, ok = NormalizeDOI("DOI: 10.1038/nature12373")
	assert.True(t, ok)
	assert.Equal(t, "10.1038/nature12373", doi)

	_, ok = NormalizeDOI("10.1/short")
	assert.False(t, ok)
	_, ok = NormalizeDOI("not a doi")
	assert.False(t, ok)
}

func TestArxivID(t *testing.T) {
	id, ok := ArxivID("arXiv:2301.12345v2")
	assert.True(t, ok)
	assert.Equal(t, "2301.12345v2", id)

	id, ok = ArxivID("1710.10903")
	assert.True(t, ok)
	assert.Equal(t, "1710.10903", id)

	_, ok = ArxivID("10.1038/nature12373")
	assert.False(t, ok)
}
