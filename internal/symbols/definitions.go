package symbols

// Well-known symbols. Schemas and widgets are namespaced; keys, type labels
// and booleans use their bare name.
const (
	SchemaObject          = "schema:object"
	SchemaNull            = "schema:null"
	SchemaBoolean         = "schema:boolean"
	SchemaNumber          = "schema:number"
	SchemaString          = "schema:string"
	SchemaEmail           = "schema:email"
	SchemaURI             = "schema:uri"
	SchemaID              = "schema:id"
	SchemaCardID          = "schema:card-id"
	SchemaValueID         = "schema:value-id"
	SchemaPropertyID      = "schema:property-id"
	SchemaLocalizedString = "schema:localized-string"
	SchemaIDsArray        = "schema:ids-array"

	WidgetInputText      = "widget:input-text"
	WidgetTextarea       = "widget:textarea"
	WidgetInputCheckbox  = "widget:input-checkbox"
	WidgetInputNumber    = "widget:input-number"
	WidgetInputURL       = "widget:input-url"
	WidgetImage          = "widget:image"
	WidgetAutocomplete   = "widget:autocomplete"
	WidgetRatedItemOrSet = "widget:rated-item-or-set"

	KeyName        = "name"
	KeyDescription = "description"
	KeyTypes       = "types"
	KeyTags        = "tags"
	KeyCon         = "con"
	KeyPro         = "pro"
	KeyOption      = "option"
	KeyRemark      = "remark"
	KeySource      = "source"
	KeyTrashed     = "trashed"
	KeyLogo        = "logo"
	KeyScreenshot  = "screenshot"
	KeyLocation    = "location"
	KeyWebsite     = "website"

	TypeCard         = "card"
	TypeUseCase      = "use-case"
	TypeOrganization = "organization"
	TypeSoftware     = "software"

	True  = "true"
	False = "false"
)

// Definition describes one well-known Value. Schema and Widget name
// symbols defined earlier in the list; the root schema names itself.
type Definition struct {
	Symbol  string
	Schema  string
	Widget  string
	Payload any
}

func object(symbol string, payload map[string]any) Definition {
	return Definition{Symbol: symbol, Schema: SchemaObject, Payload: payload}
}

func ref(target string) map[string]any {
	return map[string]any{"$ref": "/schemas/" + target}
}

func label(symbol, widget, en string) Definition {
	return Definition{Symbol: symbol, Schema: SchemaLocalizedString, Widget: widget, Payload: map[string]string{"en": en}}
}

// Definitions is the bootstrap list, in dependency order.
var Definitions = []Definition{
	object(SchemaObject, map[string]any{"type": "object"}),
	object(SchemaNull, map[string]any{"type": "null"}),
	object(SchemaBoolean, map[string]any{"type": "boolean"}),
	object(SchemaNumber, map[string]any{"type": "number"}),
	object(SchemaString, map[string]any{"type": "string"}),
	object(SchemaEmail, map[string]any{"type": "string", "format": "email"}),
	object(SchemaURI, map[string]any{"type": "string", "format": "uri"}),
	object(SchemaID, ref("id")),
	object(SchemaCardID, ref("card-id")),
	object(SchemaValueID, ref("value-id")),
	object(SchemaPropertyID, ref("property-id")),
	object(SchemaLocalizedString, ref("localized-string")),
	object(SchemaIDsArray, map[string]any{"type": "array", "items": ref("id")}),

	object(WidgetInputText, map[string]any{"tag": "input", "type": "text"}),
	object(WidgetTextarea, map[string]any{"tag": "textarea"}),
	object(WidgetInputCheckbox, map[string]any{"tag": "input", "type": "checkbox"}),
	object(WidgetInputNumber, map[string]any{"tag": "input", "type": "number"}),
	object(WidgetInputURL, map[string]any{"tag": "input", "type": "url"}),
	object(WidgetImage, map[string]any{"tag": "img"}),
	object(WidgetAutocomplete, map[string]any{"tag": "autocomplete"}),
	object(WidgetRatedItemOrSet, map[string]any{"tag": "rated-item-or-set"}),

	label(KeyName, WidgetInputText, "Name"),
	label(KeyDescription, WidgetTextarea, "Description"),
	label(KeyTypes, WidgetInputText, "Types"),
	label(KeyTags, WidgetInputText, "Tags"),
	label(KeyCon, WidgetInputText, "Con"),
	label(KeyPro, WidgetInputText, "Pro"),
	label(KeyOption, WidgetInputText, "Option"),
	label(KeyRemark, WidgetInputText, "Remark"),
	label(KeySource, WidgetInputText, "Source"),
	label(KeyTrashed, WidgetInputText, "Trashed"),
	label(KeyLogo, WidgetInputText, "Logo"),
	label(KeyScreenshot, WidgetInputText, "Screenshot"),
	label(KeyLocation, WidgetInputText, "Location"),
	label(KeyWebsite, WidgetInputText, "Website"),

	label(TypeCard, WidgetInputText, "Card"),
	label(TypeUseCase, WidgetInputText, "Use Case"),
	label(TypeOrganization, WidgetInputText, "Organization"),
	label(TypeSoftware, WidgetInputText, "Software"),

	{Symbol: True, Schema: SchemaBoolean, Widget: WidgetInputCheckbox, Payload: true},
	{Symbol: False, Schema: SchemaBoolean, Widget: WidgetInputCheckbox, Payload: false},
}

// debateWeights gives the sign an argument under each debate key applies to
// the statement it argues about.
var debateWeights = map[string]int{
	KeyCon: -1,
	KeyPro: 1,
}

// multiValued keys keep every live value in the properties cache instead of
// only the best one.
var multiValued = []string{
	KeyTypes, KeyTags, KeyCon, KeyPro, KeyOption, KeyRemark, KeySource, KeyLocation, KeyScreenshot,
}
