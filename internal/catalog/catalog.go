// Package catalog loads the food catalogue that feeds the resolver's tag
// index.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Food struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

type Catalogue struct {
	Foods []Food `yaml:"foods"`
}

// Index receives tag -> item memberships.
type Index interface {
	AddMembers(ctx context.Context, tag string, items ...string) error
}

func Load(path string) (Catalogue, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalogue{}, fmt.Errorf("read catalogue: %w", err)
	}
	var catalogue Catalogue
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return Catalogue{}, fmt.Errorf("parse catalogue %s: %w", path, err)
	}
	return catalogue, nil
}

// ByTag groups food names by tag. Blank names and tags are skipped.
func (c Catalogue) ByTag() map[string][]string {
	byTag := make(map[string][]string)
	for _, food := range c.Foods {
		name := strings.TrimSpace(food.Name)
		if name == "" {
			continue
		}
		for _, tag := range food.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			byTag[tag] = append(byTag[tag], name)
		}
	}
	return byTag
}

// Seed writes every tag membership to index and returns the number of tags
// written.
func Seed(ctx context.Context, index Index, catalogue Catalogue) (int, error) {
	byTag := catalogue.ByTag()
	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if err := index.AddMembers(ctx, tag, byTag[tag]...); err != nil {
			return 0, fmt.Errorf("seed tag %s: %w", tag, err)
		}
	}
	return len(tags), nil
}
