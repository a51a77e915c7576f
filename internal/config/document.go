package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Startup failures raised while loading the routing document.
var (
	ErrConfigParse = errors.New("config parse error")
	ErrMissingPort = errors.New("missing port")
)

// DefaultThreads is the dispatch worker count used when the routing
// document does not set "threads".
const DefaultThreads = 10

// Document is the JSON routing document: listen addresses, host groups,
// service graphs and the route table.
type Document struct {
	Bind4               string              `json:"bind4"`
	Bind6               string              `json:"bind6"`
	Port                uint16              `json:"port"`
	Threads             int                 `json:"threads"`
	AllowNestedRequests bool                `json:"allow_nested_requests"`
	Hosts               map[string][]string `json:"hosts"`
	Graphs              map[string]Graph    `json:"graphs"`
	Routes              []Route             `json:"routes"`
}

// Graph declares the services of one named graph and their dependencies.
type Graph struct {
	Services []ServiceEntry `json:"services"`
	Deps     []Dep          `json:"deps"`
}

// Dep declares that service A depends on service B: B must reply before A
// is dispatched.
type Dep struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Route binds a URL pattern to a named graph. The pattern dialect is the
// router's.
type Route struct {
	Pattern string `json:"r"`
	Graph   string `json:"g"`
}

// ServiceEntry is one entry of a graph's services list. In the document it
// is either a bare string (the service name) or an object with name,
// hosts_from and path.
type ServiceEntry struct {
	Name      string
	HostsFrom string
	Path      string
}

// UnmarshalJSON accepts both the bare-string and the object form.
func (e *ServiceEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		e.Name = name
		e.HostsFrom = name
		return nil
	}

	var obj struct {
		Name      string `json:"name"`
		HostsFrom string `json:"hosts_from"`
		Path      string `json:"path"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Name == "" {
		return fmt.Errorf("service entry has no name")
	}

	e.Name = obj.Name
	e.HostsFrom = obj.HostsFrom
	if e.HostsFrom == "" {
		e.HostsFrom = obj.Name
	}
	e.Path = obj.Path
	return nil
}

// LoadDocument reads and validates the routing document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return ParseDocument(data)
}

// ParseDocument parses and validates a routing document.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if doc.Port == 0 {
		return nil, fmt.Errorf("%w: \"port\" is required", ErrMissingPort)
	}
	if doc.Threads == 0 {
		doc.Threads = DefaultThreads
	}
	if doc.Threads < 0 {
		return nil, fmt.Errorf("%w: \"threads\" must be positive", ErrConfigParse)
	}
	if doc.Hosts == nil {
		return nil, fmt.Errorf("%w: \"hosts\" is required", ErrConfigParse)
	}
	if doc.Graphs == nil {
		return nil, fmt.Errorf("%w: \"graphs\" is required", ErrConfigParse)
	}
	if doc.Routes == nil {
		return nil, fmt.Errorf("%w: \"routes\" is required", ErrConfigParse)
	}

	return doc, nil
}
