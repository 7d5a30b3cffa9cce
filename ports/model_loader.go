package ports

import (
	"imfitboot/domain/model"
)

// ModelLoader builds a model description from a path or config identifier
type ModelLoader interface {
	Load(path string) (*model.Description, error)
}
