package deployer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mediation-router/internal/api"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/validation"
	"mediation-router/internal/routing"
)

// Version types accepted in definitions
const (
	VersionTypeNone    = "none"
	VersionTypeContext = "context"
	VersionTypeURL     = "url"
)

// Definition is the document form of an API. Files hold one definition each,
// in YAML or JSON.
type Definition struct {
	Name          string               `json:"name" yaml:"name" validate:"required"`
	Context       string               `json:"context" yaml:"context" validate:"required,api_context"`
	Version       string               `json:"version,omitempty" yaml:"version,omitempty"`
	VersionType   string               `json:"versionType,omitempty" yaml:"versionType,omitempty" validate:"omitempty,oneof=none context url"`
	VersionSource string               `json:"versionSource,omitempty" yaml:"versionSource,omitempty" validate:"omitempty,oneof=path query header"`
	VersionParam  string               `json:"versionParam,omitempty" yaml:"versionParam,omitempty"`
	Host          string               `json:"host,omitempty" yaml:"host,omitempty" validate:"omitempty,hostname_rfc1123"`
	Port          int                  `json:"port,omitempty" yaml:"port,omitempty" validate:"min=0,max=65535"`
	Resources     []ResourceDefinition `json:"resources" yaml:"resources" validate:"required,min=1,dive"`
}

// ResourceDefinition is the document form of a resource
type ResourceDefinition struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Methods     []string `json:"methods" yaml:"methods" validate:"required,min=1,dive,http_method"`
	URLMapping  string   `json:"urlMapping,omitempty" yaml:"urlMapping,omitempty" validate:"omitempty,excluded_with=URITemplate"`
	URITemplate string   `json:"uriTemplate,omitempty" yaml:"uriTemplate,omitempty"`
	BindsTo     []string `json:"bindsTo,omitempty" yaml:"bindsTo,omitempty" validate:"omitempty,dive,required"`
	ContentType string   `json:"contentType,omitempty" yaml:"contentType,omitempty" validate:"omitempty,regexp"`
	UserAgent   string   `json:"userAgent,omitempty" yaml:"userAgent,omitempty" validate:"omitempty,regexp"`
	Protocol    string   `json:"protocol,omitempty" yaml:"protocol,omitempty" validate:"omitempty,oneof=http https"`
	Endpoint    string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"omitempty,endpoint_url"`
}

// Parse decodes a YAML or JSON definition. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if err == io.EOF {
			return nil, errors.ConfigError("empty api definition")
		}
		return nil, errors.ConfigError("failed to parse api definition").WithCause(err)
	}
	return &def, nil
}

// ParseFile reads and decodes the definition at path
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError("failed to read api definition").
			WithCause(err).
			WithContext("file", path)
	}
	def, err := Parse(data)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr.WithContext("file", path)
		}
		return nil, err
	}
	return def, nil
}

// IsDefinitionFile reports whether path has a definition file extension and is
// not hidden
func IsDefinitionFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// clone returns a deep copy
func (d *Definition) clone() *Definition {
	data, _ := json.Marshal(d)
	var out Definition
	_ = json.Unmarshal(data, &out)
	return &out
}

// Validate runs struct-tag and semantic checks. The error is a config AppError
// listing every failure.
func (d *Definition) Validate() error {
	c := validation.NewCollector("")
	c.Merge(validation.ValidateStructResult(d))

	switch d.versionType() {
	case VersionTypeContext, VersionTypeURL:
		if strings.TrimSpace(d.Version) == "" {
			c.Add("version", fmt.Sprintf("field 'version' is required for versionType %s", d.versionType()))
		}
	case VersionTypeNone:
		if strings.Contains(d.Context, api.VersionPlaceholder) {
			c.Add("context", "field 'context' uses "+api.VersionPlaceholder+" without a version")
		}
	}
	if d.VersionSource != "" && d.versionType() != VersionTypeURL {
		c.Add("versionSource", "field 'versionSource' only applies to versionType url")
	}

	for i, r := range d.Resources {
		field := fmt.Sprintf("resources[%d]", i)
		if r.URLMapping != "" {
			c.Check(field+".urlMapping", routing.ValidateURLMapping(r.URLMapping))
		}
		if r.URITemplate != "" {
			c.Check(field+".uriTemplate", routing.ValidateTemplate(r.URITemplate))
		}
	}

	if !c.HasErrors() {
		if _, err := d.build(); err != nil {
			c.Add("definition", err.Error())
		}
	}

	if !c.HasErrors() {
		return nil
	}
	return errors.ConfigError(fmt.Sprintf("invalid api definition %q", d.Name)).
		WithCause(c.Err()).
		WithContext("violations", len(c.Errors()))
}

// Build validates the definition and returns the deployable API
func (d *Definition) Build() (*api.API, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d.build()
}

func (d *Definition) versionType() string {
	if d.VersionType == "" {
		if d.Version != "" {
			return VersionTypeContext
		}
		return VersionTypeNone
	}
	return d.VersionType
}

func (d *Definition) strategy() api.VersionStrategy {
	switch d.versionType() {
	case VersionTypeContext:
		return api.ContextVersion(d.Version)
	case VersionTypeURL:
		return api.URLVersion(d.Version, api.VersionSource(d.VersionSource), d.VersionParam)
	default:
		return api.NoVersion()
	}
}

func (d *Definition) build() (*api.API, error) {
	resources := make([]*api.Resource, 0, len(d.Resources))
	for _, r := range d.Resources {
		resources = append(resources, &api.Resource{
			Name:        r.Name,
			Methods:     append([]string(nil), r.Methods...),
			BindsTo:     append([]string(nil), r.BindsTo...),
			URLMapping:  r.URLMapping,
			URITemplate: r.URITemplate,
			ContentType: r.ContentType,
			UserAgent:   r.UserAgent,
			Protocol:    r.Protocol,
			Endpoint:    r.Endpoint,
		})
	}

	a, err := api.New(d.Name, d.Context, d.strategy(), resources...)
	if err != nil {
		return nil, err
	}
	if d.Host != "" || d.Port != 0 {
		a = a.WithHost(d.Host, d.Port)
	}
	return a, nil
}
