package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatterns(t *testing.T) {
	tests := []struct {
		doi  string
		want string
	}{
		{"10.48550/arXiv.2301.12345", "https://arxiv.org/pdf/2301.12345.pdf"},
		{"10.1101/2023.01.02.522000", "https://www.biorxiv.org/content/10.1101/2023.01.02.522000v1.full.pdf"},
		{"10.7717/peerj.1234", "https://peerj.com/articles/1234.pdf"},
		{"10.1371/journal.pone.0123456", "https://journals.plos.org/plosone/article/file?id=10.1371/journal.pone.0123456&type=printable"},
	}

	for _, tt := range tests {
		var got string
		for _, p := range DefaultPatterns() {
			if u, ok := p.Apply(tt.doi); ok {
				got = u
				break
			}
		}
		assert.Equal(t, tt.want, got, tt.doi)
	}
}

func TestDefaultPatterns_NoMatch(t *testing.T) {
	for _, p := range DefaultPatterns() {
		_, ok := p.Apply("10.1000/xyz")
		assert.False(t, ok, p.Name)
	}
}

func writePatterns(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPatterns_Extends(t *testing.T) {
	path := writePatterns(t, `
patterns:
  - name: mdpi
    match: '^10\.3390/(\w+)$'
    url: 'https://www.mdpi.com/pdf/${1}'
  - name: arxiv
    match: '^10\.48550/arXiv\.(.+)$'
    url: 'https://export.arxiv.org/pdf/${1}'
`)
	patterns, err := LoadPatterns(path)
	require.NoError(t, err)

	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"mdpi", "arxiv", "biorxiv", "plos", "peerj"}, names)

	u, ok := patterns[1].Apply("10.48550/arXiv.2301.1")
	require.True(t, ok)
	assert.Equal(t, "https://export.arxiv.org/pdf/2301.1", u)
}

func TestLoadPatterns_Replace(t *testing.T) {
	path := writePatterns(t, `
replace: true
patterns:
  - name: only
    match: '^10\.1/.+$'
    url: 'https://example.org/{doi}.pdf'
`)
	patterns, err := LoadPatterns(path)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	u, ok := patterns[0].Apply("10.1/abc")
	require.True(t, ok)
	assert.Equal(t, "https://example.org/10.1/abc.pdf", u)
}

func TestLoadPatterns_Errors(t *testing.T) {
	_, err := LoadPatterns(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPatterns(writePatterns(t, "patterns: [\n"))
	assert.Error(t, err)

	_, err = LoadPatterns(writePatterns(t, "patterns:\n  - name: bad\n    match: '('\n    url: x\n"))
	assert.Error(t, err)

	_, err = LoadPatterns(writePatterns(t, "patterns:\n  - name: empty\n"))
	assert.Error(t, err)
}
