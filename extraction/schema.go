package extraction

import (
	_ "embed"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed listing.schema.json
var listingSchemaJSON string

const listingSchemaURL = "listing.schema.json"

var listingSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(listingSchemaURL, strings.NewReader(listingSchemaJSON)); err != nil {
		panic("add listing schema: " + err.Error())
	}
	return compiler.MustCompile(listingSchemaURL)
}
