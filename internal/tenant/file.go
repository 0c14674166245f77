package tenant

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/appointment-scheduler/internal/availability"
)

// Source looks up tenant records.
type Source interface {
	Tenant(ctx context.Context, id string) (Record, error)
	TenantIDs(ctx context.Context) ([]string, error)
}

// Document is the layout of the tenant YAML file.
type Document struct {
	Tenants []Record `yaml:"tenants" validate:"required,min=1,dive"`
}

// FileSource serves tenant records parsed from a YAML document.
type FileSource struct {
	tenants map[string]Record
	ids     []string
}

// LoadFile reads and validates the tenant file at path.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a tenant document.
func Parse(data []byte) (*FileSource, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tenant: decode document: %w", err)
	}
	if err := newValidator().Struct(doc); err != nil {
		return nil, fmt.Errorf("tenant: invalid document: %w", err)
	}
	return NewFileSource(doc.Tenants...)
}

// NewFileSource builds a source from records. Tenant IDs must be unique.
func NewFileSource(records ...Record) (*FileSource, error) {
	src := &FileSource{tenants: make(map[string]Record, len(records))}
	for _, r := range records {
		if _, dup := src.tenants[r.ID]; dup {
			return nil, fmt.Errorf("tenant: duplicate tenant %q", r.ID)
		}
		if _, err := r.Location(); err != nil {
			return nil, err
		}
		src.tenants[r.ID] = r
		src.ids = append(src.ids, r.ID)
	}
	sort.Strings(src.ids)
	return src, nil
}

// Tenant implements Source.
func (s *FileSource) Tenant(ctx context.Context, id string) (Record, error) {
	r, ok := s.tenants[id]
	if !ok {
		return Record{}, unknownTenant(id)
	}
	return r, nil
}

// TenantIDs implements Source.
func (s *FileSource) TenantIDs(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.ids...), nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := availability.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := weekdays[strings.ToLower(fl.Field().String())]
		return ok
	})
	return v
}
