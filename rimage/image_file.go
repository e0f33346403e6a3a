package rimage

import (
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/vo/utils"
)

// ReadImageFromFile decodes the image stored at path.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// WriteImageToFile encodes img at path; the format follows the file extension.
// Missing parent directories are created.
func WriteImageToFile(path string, img image.Image) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "cannot write image %q", path)
	}
	return nil
}
