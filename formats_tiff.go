package geoartifacts

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"

	"github.com/andreiashu/geoartifacts/geotable"
)

// loadGeoTIFF reads the first band of a TIFF image onto a unit grid with one
// column Z. Grid row 0 is the bottom row of the image.
func loadGeoTIFF(path string) (*geotable.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding tiff %s: %w", path, err)
	}
	return imageTable(img)
}

func imageTable(img image.Image) (*geotable.Table, error) {
	b := img.Bounds()
	nx, ny := b.Dx(), b.Dy()
	grid := geotable.Grid{
		Dims:    [2]int{nx, ny},
		Origin:  orb.Point{0, 0},
		Spacing: [2]float64{1, 1},
	}

	z := make([]float64, nx*ny)
	for y := 0; y < ny; y++ {
		py := b.Max.Y - 1 - y
		for x := 0; x < nx; x++ {
			z[grid.Index(x, y)] = pixelValue(img, b.Min.X+x, py)
		}
	}
	return geotable.New(grid, geotable.NewFloat64Column("Z", z, nil))
}

// pixelValue returns the sample of single-band images as is and the 16-bit
// luminance of anything else.
func pixelValue(img image.Image, x, y int) float64 {
	switch m := img.(type) {
	case *image.Gray:
		return float64(m.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(m.Gray16At(x, y).Y)
	case *image.Paletted:
		return float64(m.ColorIndexAt(x, y))
	default:
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
}
