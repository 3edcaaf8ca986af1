package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsa/training-sync/pkg/errors"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name       string
		spec       string
		wantScheme string
		wantPath   string
		wantErr    bool
	}{
		{"file with path", "file:./uiuc_training.json", "file", "./uiuc_training.json", false},
		{"https url", "https://catalog.example.org/resources/v1/", "https", "catalog.example.org/resources/v1/", false},
		{"http url", "http://catalog.example.org/resources/", "http", "catalog.example.org/resources/", false},
		{"bare scheme no colon", "file", "file", "", false},
		{"https missing slashes", "https:catalog.example.org/resources", "", "", true},
		{"unsupported scheme", "ftp://catalog.example.org/", "", "", true},
		{"destination-only scheme", "index", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseSource(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, ep.Scheme)
			assert.Equal(t, tt.wantPath, ep.Path)
			// the original specifier round-trips unchanged
			assert.Equal(t, tt.spec, ep.URI)
			assert.Equal(t, tt.spec, ep.Display)
		})
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name       string
		spec       string
		wantScheme string
		wantErr    bool
	}{
		{"index bare", "index", "index", false},
		{"analyze bare", "analyze", "analyze", false},
		{"file with path", "file:./cache.json", "file", false},
		{"http not allowed", "https://example.org//x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseDestination(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, ep.Scheme)
			assert.Equal(t, tt.spec, ep.URI)
		})
	}
}

func TestValidatePair(t *testing.T) {
	fileSrc, err := ParseSource("file:./a.json")
	require.NoError(t, err)
	fileDst, err := ParseDestination("file:./b.json")
	require.NoError(t, err)

	err = ValidatePair(fileSrc, fileDst)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	indexDst, err := ParseDestination("index")
	require.NoError(t, err)
	assert.NoError(t, ValidatePair(fileSrc, indexDst))
}

func TestDaemonAllowed(t *testing.T) {
	httpSrc, _ := ParseSource("https://catalog.example.org/resources/v1/")
	fileSrc, _ := ParseSource("file:./a.json")
	indexDst, _ := ParseDestination("index")
	fileDst, _ := ParseDestination("file:./b.json")

	assert.True(t, DaemonAllowed(httpSrc, indexDst))
	assert.False(t, DaemonAllowed(fileSrc, indexDst))
	assert.False(t, DaemonAllowed(httpSrc, fileDst))
}
