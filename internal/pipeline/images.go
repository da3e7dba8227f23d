package pipeline

import (
	"github.com/maypok86/otter"

	"github.com/mvp-joe/nodule-extract/internal/dicomfile"
)

// ImageReader reads the header and first frame of an image file.
type ImageReader interface {
	ReadImage(path string) (*dicomfile.Image, error)
}

// imageCache keeps decoded images in memory since consecutive nodules of a
// series usually share slices. Cost is the pixel buffer size in bytes.
type imageCache struct {
	reader  ImageReader
	cache   otter.Cache[string, *dicomfile.Image]
	enabled bool
}

func newImageCache(reader ImageReader, capacityMB int) (*imageCache, error) {
	c := &imageCache{reader: reader}
	if capacityMB <= 0 {
		return c, nil
	}

	cache, err := otter.MustBuilder[string, *dicomfile.Image](capacityMB << 20).
		Cost(func(path string, img *dicomfile.Image) uint32 {
			return imageCost(img)
		}).
		Build()
	if err != nil {
		return nil, err
	}
	c.cache = cache
	c.enabled = true
	return c, nil
}

// get returns the decoded image at path. Concurrent misses on the same path
// may both decode it; the later Set wins.
func (c *imageCache) get(path string) (*dicomfile.Image, error) {
	if c.enabled {
		if img, ok := c.cache.Get(path); ok {
			return img, nil
		}
	}

	img, err := c.reader.ReadImage(path)
	if err != nil {
		return nil, err
	}
	if c.enabled {
		c.cache.Set(path, img)
	}
	return img, nil
}

func (c *imageCache) close() {
	if c.enabled {
		c.cache.Close()
	}
}

func imageCost(img *dicomfile.Image) uint32 {
	if img == nil || img.Pixels == nil {
		return 1
	}
	return uint32(min(img.Pixels.Bytes(), int(^uint32(0))))
}
