package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blockedby/chansearch/internal/extractor"
)

// CategoryFile is the YAML layout of CATEGORIES_FILE.
type CategoryFile struct {
	Categories []extractor.Category `yaml:"categories"`
	Fallback   string               `yaml:"fallback"`
}

// LoadCategories reads and validates a category file. An empty path yields
// the built-in categories.
func LoadCategories(path string) (*CategoryFile, error) {
	if path == "" {
		return &CategoryFile{Categories: extractor.DefaultCategories(), Fallback: extractor.OtherCategory}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes and validates category YAML.
func ParseCategories(data []byte) (*CategoryFile, error) {
	var f CategoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Fallback == "" {
		f.Fallback = extractor.OtherCategory
	}
	return &f, nil
}

// Validate checks that names are present and unique and that every
// category has at least one keyword.
func (f *CategoryFile) Validate() error {
	if len(f.Categories) == 0 {
		return errors.New("no categories defined")
	}
	seen := make(map[string]bool, len(f.Categories))
	var errs []error
	for i, c := range f.Categories {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("category %d: missing name", i+1))
			continue
		case seen[name]:
			errs = append(errs, fmt.Errorf("category %q: duplicate name", name))
		}
		seen[name] = true

		hasKeyword := false
		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) != "" {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			errs = append(errs, fmt.Errorf("category %q: no keywords", name))
		}
	}
	if f.Fallback != "" && seen[strings.TrimSpace(f.Fallback)] {
		errs = append(errs, fmt.Errorf("fallback %q shadows a category", f.Fallback))
	}
	return errors.Join(errs...)
}

// Classifier builds a keyword classifier from the file.
func (f *CategoryFile) Classifier() *extractor.Classifier {
	return extractor.NewClassifier(f.Categories, f.Fallback)
}
