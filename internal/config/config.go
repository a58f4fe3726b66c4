// Package config loads and validates the workspace configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/bankstander/internal/model"
	atomicyaml "github.com/msageha/bankstander/internal/yaml"
	"github.com/msageha/bankstander/templates"
)

// ErrInvalidConfig wraps every validation failure reported by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := fs.ReadFile(templates.FS, templates.SchemaFile)
		if err != nil {
			schemaErr = fmt.Errorf("read embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(templates.SchemaFile, bytes.NewReader(data)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile(templates.SchemaFile)
	})
	return schema, schemaErr
}

// Loaded is a parsed configuration together with the session configuration
// derived from it.
type Loaded struct {
	Path   string
	Config model.Config
	Run    model.RunConfig
}

// Load reads path and validates it in three passes: the schema header, the
// JSON schema and the semantic rules of the session configuration.
func Load(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Path = path
	return l, nil
}

// Parse validates raw YAML content. See Load.
func Parse(data []byte) (*Loaded, error) {
	if err := atomicyaml.ValidateSchemaHeaderFromBytes(data, atomicyaml.FileTypeConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	rc, err := cfg.RunConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("%w:\n%v", ErrInvalidConfig, err)
	}
	return &Loaded{Config: cfg, Run: rc}, nil
}

func validateSchema(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	v, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// toJSONValue converts a YAML document into the value shape produced by
// encoding/json, which is what the schema validator expects.
func toJSONValue(doc any) (any, error) {
	raw, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = stringKeys(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stringKeys(e)
		}
		return out
	default:
		return v
	}
}

// Default returns the embedded default configuration file content.
func Default() ([]byte, error) {
	return fs.ReadFile(templates.FS, templates.ConfigFile)
}

// SetPaused rewrites session.paused in place, keeping the rest of the
// document (comments included).
func SetPaused(path string, paused bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var root yamlv3.Node
	if err := yamlv3.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if root.Kind != yamlv3.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, path)
	}
	session := mappingValue(root.Content[0], "session")
	if session == nil {
		return fmt.Errorf("%w: %s has no session section", ErrInvalidConfig, path)
	}
	val := "false"
	if paused {
		val = "true"
	}
	if node := mappingValue(session, "paused"); node != nil {
		node.Kind, node.Tag, node.Value = yamlv3.ScalarNode, "!!bool", val
	} else {
		session.Content = append(session.Content,
			&yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!str", Value: "paused"},
			&yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!bool", Value: val},
		)
	}

	var buf bytes.Buffer
	enc := yamlv3.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return atomicyaml.AtomicWriteRaw(path, buf.Bytes(), true)
}

func mappingValue(n *yamlv3.Node, key string) *yamlv3.Node {
	if n == nil || n.Kind != yamlv3.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
