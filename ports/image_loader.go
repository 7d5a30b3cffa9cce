package ports

import (
	"imfitboot/domain/fit"
)

// ImageInfo is the metadata the pipeline needs from an image file
type ImageInfo struct {
	Path     string
	Width    int
	Height   int
	Bitpix   int
	Keywords map[string]float64 // numeric header keywords (GAIN, RDNOISE, ...)
}

// ImageLoader inspects image and mask files before a fit is started
type ImageLoader interface {
	// Inspect reads the primary image header
	Inspect(path string) (*ImageInfo, error)

	// Prepare validates the image/mask pair and fills unset noise
	// parameters (gain, read noise, sky) from header keywords.
	Prepare(spec fit.ImageSpec) (fit.ImageSpec, error)
}
