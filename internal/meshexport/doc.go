// Package meshexport validates and decodes mesh network export documents.
//
// A network export is a JSON snapshot of a provisioned Bluetooth mesh
// network: its network and application keys, provisioner address
// allocations, groups, scenes, and nodes with their elements and models.
// The document is produced externally by the commissioning tools and
// consumed read-only. This package judges validity at ingestion time and
// never mutates or repairs the input.
//
// # Validation
//
// Validate applies the export schema: required fields, runtime types, hex
// and UUID patterns, URI and date-time formats, enums, and numeric bounds.
// All violations in a document are collected in a single depth-first pass
// rather than stopping at the first, so callers can present a complete
// diagnostic:
//
//	validator := meshexport.NewValidator()
//	result, err := validator.ValidateJSON(data)
//	if err != nil {
//	    // input was not well-formed JSON
//	}
//	for _, v := range result.Violations {
//	    fmt.Printf("%s: %s (expected %s, got %s)\n", v.Path, v.Rule, v.Expected, v.Actual)
//	}
//
// The schema is permissive about unknown fields: documents carrying extra
// properties are accepted at every level. Vendor extensions such as
// tos_node and tos_devices pass through unvalidated.
//
// # Referential checks
//
// The schema alone cannot express cross-entity integrity. CheckReferences
// layers those checks (index uniqueness, key reference resolution,
// provisioner range overlap, element address collisions and the unicast
// ceiling) as a separate pass over a decoded export. The two passes are
// composed explicitly by callers; schema validity never depends on the
// referential pass.
package meshexport
