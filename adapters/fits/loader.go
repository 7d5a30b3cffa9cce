package fits

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"imfitboot/domain/core"
	"imfitboot/domain/fit"
	"imfitboot/internal"
	"imfitboot/ports"
)

// keyword aliases, first match wins
var (
	gainKeys      = []string{"GAIN", "EGAIN", "CCDGAIN"}
	readNoiseKeys = []string{"RDNOISE", "READNOIS", "RON"}
	skyKeys       = []string{"SKY", "SKYLEVEL", "ORIG_SKY"}
)

// Loader reads FITS primary headers with fitsio
type Loader struct {
	logger *internal.Logger
}

// NewLoader creates a FITS image loader
func NewLoader(logger *internal.Logger) *Loader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Loader{logger: logger.WithComponent("FITS")}
}

// Inspect reads the shape and numeric keywords of the primary HDU
func (l *Loader) Inspect(path string) (*ports.ImageInfo, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNoData, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("%s: not a FITS file: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no primary image", core.ErrNoData, path)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || axes[0] == 0 || axes[1] == 0 {
		return nil, fmt.Errorf("%w: %s primary HDU has shape %v", core.ErrNoData, path, axes)
	}

	info := &ports.ImageInfo{
		Path:     path,
		Width:    axes[0],
		Height:   axes[1],
		Bitpix:   hdr.Bitpix(),
		Keywords: make(map[string]float64),
	}

	want := info.Width * info.Height * abs(info.Bitpix) / 8
	if got := len(img.Raw()); got < want {
		return nil, fmt.Errorf("%w: %s holds %d data bytes, expected %d", core.ErrNoData, path, got, want)
	}

	for _, key := range hdr.Keys() {
		if v, ok := numeric(hdr.Get(key)); ok {
			info.Keywords[key] = v
		}
	}
	l.logger.Debug("%s: %dx%d bitpix=%d, %d numeric keywords", path, info.Width, info.Height, info.Bitpix, len(info.Keywords))
	return info, nil
}

// Prepare checks that mask and noise images match the data image and fills
// unset gain, read noise and sky from the image header.
func (l *Loader) Prepare(spec fit.ImageSpec) (fit.ImageSpec, error) {
	info, err := l.Inspect(spec.ImagePath)
	if err != nil {
		return spec, err
	}

	for _, aux := range []struct{ role, path string }{{"mask", spec.MaskPath}, {"noise", spec.NoisePath}} {
		if aux.path == "" {
			continue
		}
		other, err := l.Inspect(aux.path)
		if err != nil {
			return spec, fmt.Errorf("%s image: %w", aux.role, err)
		}
		if other.Width != info.Width || other.Height != info.Height {
			return spec, fmt.Errorf("%w: %s image is %dx%d, data image is %dx%d", core.ErrDimensionMismatch,
				aux.role, other.Width, other.Height, info.Width, info.Height)
		}
	}

	if spec.Gain == 0 {
		spec.Gain = lookup(info.Keywords, gainKeys)
	}
	if spec.ReadNoise == 0 {
		spec.ReadNoise = lookup(info.Keywords, readNoiseKeys)
	}
	if spec.OriginalSky == 0 {
		spec.OriginalSky = lookup(info.Keywords, skyKeys)
	}
	return spec, nil
}

func lookup(kw map[string]float64, keys []string) float64 {
	for _, k := range keys {
		if v, ok := kw[k]; ok {
			return v
		}
	}
	return 0
}

func numeric(card *fitsio.Card) (float64, bool) {
	if card == nil {
		return 0, false
	}
	switch v := card.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ ports.ImageLoader = (*Loader)(nil)
