package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// SchemaDirectives is the parsed form of a `schema:"..."` struct tag.
//
//	Prefix string `json:"prefix" schema:"type:string,description:Bucket prefix,default:dedup"`
//	Backend string `json:"backend" schema:"type:enum,description:Store,enum:kv|redis|sql,default:kv"`
//	Workers int `json:"workers" schema:"type:int,description:Workers,min:1,max:64,default:4"`
type SchemaDirectives struct {
	Type        string
	Description string
	Category    string
	Default     string
	Required    bool
	Hidden      bool
	Min         *int
	Max         *int
	Enum        []string
}

var validSchemaTypes = map[string]bool{
	"string": true, "int": true, "bool": true, "float": true,
	"enum": true, "array": true, "object": true,
}

// ParseSchemaTag parses comma-separated directives. Key-value pairs use a
// colon, enum values are pipe-separated, and bare words are boolean flags.
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	var d SchemaDirectives
	if strings.TrimSpace(tag) == "" {
		return d, errors.WrapInvalid(fmt.Errorf("empty schema tag"), "SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if !hasValue {
			switch key {
			case "required":
				d.Required = true
			case "hidden":
				d.Hidden = true
			default:
				return d, errors.WrapInvalid(fmt.Errorf("unknown flag %q", key), "SchemaTag", "ParseSchemaTag", "flag parsing")
			}
			continue
		}

		switch key {
		case "type":
			d.Type = value
		case "description":
			d.Description = value
		case "category":
			d.Category = value
		case "default":
			d.Default = value
		case "enum":
			d.Enum = strings.Split(value, "|")
		case "min", "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.WrapInvalid(fmt.Errorf("%s must be an integer: %q", key, value), "SchemaTag", "ParseSchemaTag", "numeric parsing")
			}
			if key == "min" {
				d.Min = &n
			} else {
				d.Max = &n
			}
		default:
			return d, errors.WrapInvalid(fmt.Errorf("unknown directive %q", key), "SchemaTag", "ParseSchemaTag", "directive parsing")
		}
	}

	if d.Type == "" {
		return d, errors.WrapInvalid(fmt.Errorf("type directive is required"), "SchemaTag", "ParseSchemaTag", "type validation")
	}
	if !validSchemaTypes[d.Type] {
		return d, errors.WrapInvalid(fmt.Errorf("invalid type %q", d.Type), "SchemaTag", "ParseSchemaTag", "type validation")
	}
	return d, nil
}

// GenerateConfigSchema builds a ConfigSchema from the json and schema tags
// of a struct type. Fields without a schema tag, or with an invalid one, are
// skipped. Embedded structs are flattened.
func GenerateConfigSchema(t reflect.Type) ConfigSchema {
	schema := ConfigSchema{Properties: make(map[string]PropertySchema)}
	if t == nil {
		return schema
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return schema
	}
	collectProperties(t, &schema)
	return schema
}

func collectProperties(t reflect.Type, schema *ConfigSchema) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		// encoding/json promotes the fields of embedded structs even when
		// the embedded type itself is unexported.
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectProperties(field.Type, schema)
			continue
		}
		if !field.IsExported() {
			continue
		}

		tag, ok := field.Tag.Lookup("schema")
		if !ok {
			continue
		}
		d, err := ParseSchemaTag(tag)
		if err != nil {
			continue
		}

		name := jsonName(field)
		if name == "-" {
			continue
		}
		description := d.Description
		if description == "" {
			description = field.Name
		}

		schemaType := d.Type
		if schemaType == "enum" {
			schemaType = "string"
		}
		schema.Properties[name] = PropertySchema{
			Type:        schemaType,
			Description: description,
			Default:     convertDefault(d.Type, d.Default),
			Enum:        d.Enum,
			Minimum:     d.Min,
			Maximum:     d.Max,
			Category:    d.Category,
		}
		if d.Required {
			schema.Required = append(schema.Required, name)
		}
	}
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// convertDefault returns the default in the type the schema declares,
// falling back to the raw string when it does not parse.
func convertDefault(schemaType, raw string) any {
	if raw == "" {
		return nil
	}
	switch schemaType {
	case "int":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case "array":
		return strings.Split(raw, "|")
	}
	return raw
}
