package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/armatrix/mcp-bridge-go/mcp"
)

// ServersKey is the top-level key naming the server entries.
const ServersKey = "mcpServers"

var (
	// ErrNoServers is returned when a config file has no usable server entries.
	ErrNoServers = errors.New("config: no MCP servers defined")
	// ErrServerNotFound is returned by Select for an unknown name.
	ErrServerNotFound = errors.New("config: MCP server not found")
)

// ServerSet is the parsed content of a server config file. Names keeps the
// document order of the entries.
type ServerSet struct {
	Names   []string
	Servers map[string]mcp.ServerConfig
}

// Select returns the named server, or the first entry in document order
// when name is empty.
func (s *ServerSet) Select(name string) (mcp.ServerConfig, error) {
	if len(s.Names) == 0 {
		return mcp.ServerConfig{}, ErrNoServers
	}
	if name == "" {
		name = s.Names[0]
	}
	cfg, ok := s.Servers[name]
	if !ok {
		return mcp.ServerConfig{}, fmt.Errorf("%w: %q (available: %s)", ErrServerNotFound, name, strings.Join(s.Names, ", "))
	}
	return cfg, nil
}

// IsServerFile reports whether path has an extension LoadServers accepts.
func IsServerFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadServers reads a JSON or YAML server config file.
func LoadServers(path string) (*ServerSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseServersYAML(data)
	default:
		return ParseServersJSON(data)
	}
}

// ParseServersJSON parses {"mcpServers": {"name": {...}}}, keeping entry
// order.
func ParseServersJSON(data []byte) (*ServerSet, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("parse server config: invalid JSON")
	}
	servers := gjson.GetBytes(data, ServersKey)
	if !servers.Exists() {
		return nil, fmt.Errorf("parse server config: missing %q key", ServersKey)
	}
	if !servers.IsObject() {
		return nil, fmt.Errorf("parse server config: %q must be an object", ServersKey)
	}

	set := newServerSet()
	var parseErr error
	servers.ForEach(func(key, value gjson.Result) bool {
		var cfg mcp.ServerConfig
		if err := json.Unmarshal([]byte(value.Raw), &cfg); err != nil {
			parseErr = fmt.Errorf("parse server %q: %w", key.String(), err)
			return false
		}
		set.add(key.String(), cfg)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return set.validate()
}

// ParseServersYAML parses the YAML form of the server config, keeping entry
// order.
func ParseServersYAML(data []byte) (*ServerSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("parse server config: document must be a mapping")
	}

	servers := mappingValue(doc.Content[0], ServersKey)
	if servers == nil {
		return nil, fmt.Errorf("parse server config: missing %q key", ServersKey)
	}
	if servers.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse server config: %q must be a mapping", ServersKey)
	}

	set := newServerSet()
	for i := 0; i+1 < len(servers.Content); i += 2 {
		name := servers.Content[i].Value
		var cfg mcp.ServerConfig
		if err := servers.Content[i+1].Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse server %q: %w", name, err)
		}
		set.add(name, cfg)
	}
	return set.validate()
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func newServerSet() *ServerSet {
	return &ServerSet{Servers: make(map[string]mcp.ServerConfig)}
}

func (s *ServerSet) add(name string, cfg mcp.ServerConfig) {
	cfg.Name = name
	if _, dup := s.Servers[name]; !dup {
		s.Names = append(s.Names, name)
	}
	s.Servers[name] = cfg
}

func (s *ServerSet) validate() (*ServerSet, error) {
	if len(s.Names) == 0 {
		return nil, ErrNoServers
	}
	for _, name := range s.Names {
		if err := s.Servers[name].Validate(); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
	}
	return s, nil
}
