package schema

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"gopkg.in/yaml.v3"
)

// MemoryStore resolves templates by id. It is safe for concurrent use; stored schemas
// are immutable so lookups hand out the shared pointer.
type MemoryStore struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schemas: map[string]*Schema{}}
}

func (m *MemoryStore) Put(id string, s *Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[strings.TrimSpace(id)] = s
}

func (m *MemoryStore) Schema(ctx context.Context, id string) (*Schema, error) {
	m.mu.RLock()
	s, ok := m.schemas[strings.TrimSpace(id)]
	m.mu.RUnlock()
	if !ok {
		err := failure.Newf(failure.KindSchemaNotFound, "schema.MemoryStore.Schema", "no template with id %q", id)
		logging.NewLogger(ctx).Warnf("error: %v", err)
		return nil, err
	}
	return s, nil
}

// IDs returns the registered template ids in sorted order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.schemas))
	for id := range m.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type templateFile struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Fields      []templateField `yaml:"fields"`
}

type templateField struct {
	Name         string   `yaml:"name"`
	Label        string   `yaml:"label"`
	Type         string   `yaml:"type"`
	Required     bool     `yaml:"required"`
	Options      []string `yaml:"options"`
	DisplayOrder int      `yaml:"display_order"`
}

// ParseTemplate decodes a YAML or JSON template definition. Fields are ordered by
// display_order, ties keeping file order.
func ParseTemplate(data []byte) (string, *Schema, error) {
	var tf templateFile
	err := yaml.Unmarshal(data, &tf)
	if err != nil {
		return "", nil, failure.New(failure.KindConfiguration, "schema.ParseTemplate", err)
	}

	sort.SliceStable(tf.Fields, func(i, j int) bool {
		return tf.Fields[i].DisplayOrder < tf.Fields[j].DisplayOrder
	})

	fields := make([]Field, 0, len(tf.Fields))
	for _, raw := range tf.Fields {
		ft, err := ParseFieldType(raw.Type)
		if err != nil {
			return "", nil, failure.New(failure.KindConfiguration, "schema.ParseTemplate", err)
		}
		fields = append(fields, Field{
			Name:     raw.Name,
			Label:    raw.Label,
			Type:     ft,
			Required: raw.Required,
			Options:  raw.Options,
		})
	}

	s, err := New(tf.Name, tf.Description, fields)
	if err != nil {
		return "", nil, utils.WrapIfNotNil(err)
	}
	return strings.TrimSpace(tf.ID), s, nil
}

// LoadDir registers every .yaml, .yml and .json template in dir. A template without an
// id is registered under its file name minus the extension.
func LoadDir(ctx context.Context, dir string) (*MemoryStore, error) {
	log := logging.NewLogger(ctx)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindConfiguration, "schema.LoadDir", err)
	}

	store := NewMemoryStore()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isTemplateFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("error: %v", err)
			return nil, utils.WrapIfNotNil(err, path)
		}
		id, s, err := ParseTemplate(data)
		if err != nil {
			log.Errorf("error: %v", err)
			return nil, utils.WrapIfNotNil(err, path)
		}
		if id == "" {
			id = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		store.Put(id, s)
		log.Debugf("registered template id=%q fields=%d", id, s.Len())
	}
	return store, nil
}

// Replace swaps the registered templates for those in other.
func (m *MemoryStore) Replace(other *MemoryStore) {
	other.mu.RLock()
	schemas := make(map[string]*Schema, len(other.schemas))
	for id, s := range other.schemas {
		schemas[id] = s
	}
	other.mu.RUnlock()

	m.mu.Lock()
	m.schemas = schemas
	m.mu.Unlock()
}
