package meshexport

import "regexp"

// Value kinds the schema distinguishes. JSON numbers only appear as
// integers in this document format.
type kind int

const (
	kindString kind = iota
	kindBoolean
	kindInteger
	kindObject
	kindArray
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindBoolean:
		return "boolean"
	case kindInteger:
		return "integer"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	default:
		return "unknown"
	}
}

// String format names.
const (
	formatURI      = "uri"
	formatDateTime = "date-time"
)

// securityLevel is the only security level the export format defines.
const securityLevel = "secure"

// Field patterns. Hex case is significant throughout: keys, addresses and
// UUIDs are uppercase, while scene range bounds are lowercase. The source
// schema declares that asymmetry and conforming validators preserve it.
var (
	patternUUID       = regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`)
	patternKey        = regexp.MustCompile(`^[0-9A-F]{32}$`)
	patternAddress    = regexp.MustCompile(`^[0-9A-F]{4}$`)
	patternSceneRange = regexp.MustCompile(`^[0-9a-f]{4}$`)
)

// UnicastCeiling is the highest valid mesh unicast address. The schema does
// not declare it; CheckReferences enforces it.
const UnicastCeiling = 0x7FFF

// fieldSpec declares the constraints on a single field or array element.
type fieldSpec struct {
	name     string
	kind     kind
	required bool

	pattern *regexp.Regexp
	format  string
	enum    []string
	min     *int64
	max     *int64

	object *objectSpec // kindObject: nested field set
	items  *fieldSpec  // kindArray: element constraints
}

// objectSpec declares an object's fields in reporting order. Fields not
// listed here are permitted and ignored.
type objectSpec struct {
	fields []fieldSpec
}

func intp(v int64) *int64 { return &v }

var (
	netKeySchema = objectSpec{fields: []fieldSpec{
		{name: "name", kind: kindString, required: true},
		{name: "index", kind: kindInteger, required: true, min: intp(0)},
		{name: "key", kind: kindString, required: true, pattern: patternKey},
		{name: "minSecurity", kind: kindString, required: true, enum: []string{securityLevel}},
		{name: "phase", kind: kindInteger, required: true, min: intp(0)},
		{name: "timestamp", kind: kindString, required: true, format: formatDateTime},
	}}

	appKeySchema = objectSpec{fields: []fieldSpec{
		{name: "name", kind: kindString, required: true},
		{name: "index", kind: kindInteger, required: true, min: intp(0)},
		{name: "boundNetKey", kind: kindInteger, required: true, min: intp(0)},
		{name: "key", kind: kindString, required: true, pattern: patternKey},
	}}

	addressRangeSchema = objectSpec{fields: []fieldSpec{
		{name: "lowAddress", kind: kindString, required: true, pattern: patternAddress},
		{name: "highAddress", kind: kindString, required: true, pattern: patternAddress},
	}}

	sceneRangeSchema = objectSpec{fields: []fieldSpec{
		{name: "firstScene", kind: kindString, required: true, pattern: patternSceneRange},
		{name: "lastScene", kind: kindString, required: true, pattern: patternSceneRange},
	}}

	provisionerSchema = objectSpec{fields: []fieldSpec{
		{name: "provisionerName", kind: kindString, required: true},
		{name: "UUID", kind: kindString, required: true, pattern: patternUUID},
		{name: "allocatedUnicastRange", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &addressRangeSchema}},
		{name: "allocatedGroupRange", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &addressRangeSchema}},
		{name: "allocatedSceneRange", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &sceneRangeSchema}},
	}}

	groupSchema = objectSpec{fields: []fieldSpec{
		{name: "name", kind: kindString, required: true},
		{name: "address", kind: kindString, required: true, pattern: patternAddress},
		{name: "parentAddress", kind: kindString, required: true, pattern: patternAddress},
	}}

	sceneSchema = objectSpec{fields: []fieldSpec{
		{name: "name", kind: kindString, required: true},
		{name: "addresses", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindString, pattern: patternAddress}},
		{name: "number", kind: kindString, required: true, pattern: patternAddress},
	}}

	publishPeriodSchema = objectSpec{fields: []fieldSpec{
		{name: "numberOfSteps", kind: kindInteger, required: true, min: intp(0)},
		{name: "resolution", kind: kindInteger, required: true},
	}}

	publishRetransmitSchema = objectSpec{fields: []fieldSpec{
		{name: "count", kind: kindInteger, required: true, min: intp(0)},
		{name: "interval", kind: kindInteger, required: true, min: intp(0)},
	}}

	publishSchema = objectSpec{fields: []fieldSpec{
		{name: "address", kind: kindString, required: true, pattern: patternAddress},
		{name: "index", kind: kindInteger, required: true, min: intp(0)},
		{name: "ttl", kind: kindInteger, required: true, min: intp(0), max: intp(255)},
		{name: "period", kind: kindObject, required: true, object: &publishPeriodSchema},
		{name: "retransmit", kind: kindObject, required: true, object: &publishRetransmitSchema},
		{name: "credentials", kind: kindInteger, required: true, min: intp(0)},
	}}

	modelSchema = objectSpec{fields: []fieldSpec{
		{name: "modelId", kind: kindString, required: true},
		{name: "subscribe", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindString, pattern: patternAddress}},
		{name: "bind", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindInteger, min: intp(0)}},
		{name: "publish", kind: kindObject, object: &publishSchema},
	}}

	elementSchema = objectSpec{fields: []fieldSpec{
		{name: "location", kind: kindString, required: true, pattern: patternAddress},
		{name: "index", kind: kindInteger, required: true, min: intp(0)},
		{name: "name", kind: kindString, required: true},
		{name: "models", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &modelSchema}},
	}}

	// tos_node and tos_devices are vendor extensions carried on nodes. They
	// are opaque and intentionally undeclared: the permissive schema passes
	// them through without constraint.
	nodeSchema = objectSpec{fields: []fieldSpec{
		{name: "configComplete", kind: kindBoolean, required: true},
		{name: "excluded", kind: kindBoolean, required: true},
		{name: "UUID", kind: kindString, required: true, pattern: patternUUID},
		{name: "unicastAddress", kind: kindString, required: true, pattern: patternAddress},
		{name: "security", kind: kindString, required: true, enum: []string{securityLevel}},
		{name: "deviceKey", kind: kindString, required: true, pattern: patternKey},
		{name: "elements", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &elementSchema}},
	}}

	// exportSchema is the document root. Field order here fixes the order
	// violations are reported in.
	exportSchema = objectSpec{fields: []fieldSpec{
		{name: "id", kind: kindString, required: true, format: formatURI},
		{name: "partial", kind: kindBoolean, required: true},
		{name: "$schema", kind: kindString, required: true, format: formatURI},
		{name: "version", kind: kindString, required: true},
		{name: "meshName", kind: kindString, required: true},
		{name: "timestamp", kind: kindString, required: true, format: formatDateTime},
		{name: "meshUUID", kind: kindString, required: true, pattern: patternUUID},
		{name: "netKeys", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &netKeySchema}},
		{name: "appKeys", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &appKeySchema}},
		{name: "provisioners", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &provisionerSchema}},
		{name: "groups", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &groupSchema}},
		{name: "scenes", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &sceneSchema}},
		{name: "nodes", kind: kindArray, required: true,
			items: &fieldSpec{kind: kindObject, object: &nodeSchema}},
	}}
)
