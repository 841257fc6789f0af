package geoartifacts

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/andreiashu/geoartifacts/geotable"
)

const trainingImageVersion = "v1"

type trainingImage struct {
	Name        string `yaml:"name"`
	File        string `yaml:"file"`
	Description string `yaml:"description"`
}

//go:embed data/trainingimages.yaml
var trainingImagesYAML []byte

var trainingImageCatalog = sync.OnceValues(func() (*Catalog[trainingImage], error) {
	var f struct {
		Version string          `yaml:"version"`
		Images  []trainingImage `yaml:"images"`
	}
	if err := yaml.Unmarshal(trainingImagesYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing training image catalog: %w", err)
	}
	if f.Version != trainingImageVersion {
		return nil, fmt.Errorf("training image catalog is %s, want %s", f.Version, trainingImageVersion)
	}
	return NewCatalog("training image", f.Images, func(ti trainingImage) string { return ti.Name }), nil
})

// TrainingImageNames lists the available training images.
func TrainingImageNames() []string {
	cat, err := trainingImageCatalog()
	if err != nil {
		return nil
	}
	return cat.Keys()
}

// TrainingImage loads a training image onto a unit grid with a single column Z.
func (c *Client) TrainingImage(ctx context.Context, name string) (*geotable.Table, error) {
	return c.Fetch(ctx, DatasetQuery{Family: FamilyTrainingImage, Selectors: Selectors{SelName: name}})
}

// TrainingImage calls TrainingImage on the default client.
func TrainingImage(ctx context.Context, name string) (*geotable.Table, error) {
	return Default().TrainingImage(ctx, name)
}

func resolveTrainingImage(_ context.Context, c *Client, s Selectors) (Resolution, error) {
	name, ok, err := s.String(SelName)
	if err != nil {
		return Resolution{}, err
	}
	if !ok || name == "" {
		return Resolution{}, &InvalidArgumentError{Selector: SelName, Message: "required"}
	}
	cat, err := trainingImageCatalog()
	if err != nil {
		return Resolution{}, err
	}
	img, err := cat.First(Query{Desc: name, Term: name}, Exact(func(ti trainingImage) string { return ti.Name }, name))
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Identifier: cacheIdentifier("geostatsimages", trainingImageVersion, img.File),
		URL:        c.baseURL(SourceGeoStatsImages) + "/" + img.File,
		Format:     FormatGeoTIFF,
	}, nil
}
