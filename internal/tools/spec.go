// Package tools is the gateway through which workers reach externally
// effectful operations: registration, role capability checks, parameter
// validation, invocation history.
package tools

import (
	"slices"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/tasks"
)

// Parameter types accepted in a ParamSpec.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Tool categories.
const (
	CategoryFilesystem = "filesystem"
	CategoryExec       = "exec"
	CategoryBrowser    = "browser"
	CategoryCustom     = "custom"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSpec declares a tool. An empty Roles list means every role may invoke it.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Parameters  map[string]ParamSpec `json:"parameters,omitempty"`
	Roles       []tasks.Role         `json:"roles,omitempty"`
}

// AllowedFor reports whether role may invoke the tool.
func (s ToolSpec) AllowedFor(role tasks.Role) bool {
	return len(s.Roles) == 0 || slices.Contains(s.Roles, role)
}

// ToolInfo converts a ToolSpec to an Eino schema.ToolInfo.
func (s ToolSpec) ToolInfo() *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: s.Name,
		Desc: s.Description,
	}

	if len(s.Parameters) > 0 {
		params := make(map[string]*schema.ParameterInfo, len(s.Parameters))
		for name, p := range s.Parameters {
			params[name] = &schema.ParameterInfo{
				Type:     paramTypeToDataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
				Enum:     p.Enum,
			}
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}

	return info
}

// paramTypeToDataType maps string type names to Eino DataType constants.
func paramTypeToDataType(t string) schema.DataType {
	switch t {
	case TypeString:
		return schema.String
	case TypeNumber:
		return schema.Number
	case TypeInteger:
		return schema.Integer
	case TypeBoolean:
		return schema.Boolean
	case TypeArray:
		return schema.Array
	case TypeObject:
		return schema.Object
	default:
		return schema.String
	}
}
