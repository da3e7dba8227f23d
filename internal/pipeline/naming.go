package pipeline

import (
	"fmt"

	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/raster"
)

// Output subdirectories and files.
const (
	NodulesDir   = "nodules"
	FullDir      = "full"
	ManifestFile = "manifest.yaml"
)

// FullImageName names the unmasked image of a slice:
// {study}_{series}_{z}_{nodule}_{image}_full.{ext}, z signed and zero padded.
func FullImageName(n *nodule.Nodule, s nodule.Slice, f raster.Format) string {
	return fmt.Sprintf("%s_full.%s", baseName(n, s), f.Extension())
}

// NoduleImageName names the masked crop of a slice:
// {study}_{series}_{z}_{nodule}_{image}_{malignancy}.{ext}.
func NoduleImageName(n *nodule.Nodule, s nodule.Slice, malignancy string, f raster.Format) string {
	return fmt.Sprintf("%s_%s.%s", baseName(n, s), malignancy, f.Extension())
}

func baseName(n *nodule.Nodule, s nodule.Slice) string {
	return fmt.Sprintf("%s_%s_%+010.2f_%s_%s", n.Study, n.Series, s.ZPosition, n.ID, s.ImageUID)
}
