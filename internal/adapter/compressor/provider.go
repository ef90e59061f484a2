package compressor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Provider picks a compressor for every entity. Files with a disabled
// extension (already compressed media, archives) are stored as-is.
type Provider struct {
	defaultName string
	disabled    map[string]struct{}
	compressors map[string]domain.Compressor
}

func NewProvider(defaultName string, disabledExtensions []string) (*Provider, error) {
	p := &Provider{
		defaultName: defaultName,
		disabled:    make(map[string]struct{}, len(disabledExtensions)),
		compressors: map[string]domain.Compressor{
			Gzip: NewGzip(),
			Zstd: NewZstd(),
			None: NewIdentity(),
		},
	}

	if _, ok := p.compressors[defaultName]; !ok {
		return nil, fmt.Errorf("unsupported compression [%s]", defaultName)
	}

	for _, extension := range disabledExtensions {
		extension = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))
		if extension != "" {
			p.disabled[extension] = struct{}{}
		}
	}

	return p, nil
}

func (p *Provider) AlgorithmFor(path string) string {
	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if _, ok := p.disabled[extension]; ok {
		return None
	}
	return p.defaultName
}

func (p *Provider) Compressor(name string) (domain.Compressor, error) {
	compressor, ok := p.compressors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported compression [%s]", name)
	}
	return compressor, nil
}

// Metadata returns the compressor used for dataset metadata crates.
func (p *Provider) Metadata() domain.Compressor {
	return p.compressors[Gzip]
}
