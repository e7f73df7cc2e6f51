package domain

// Field names recognised in rule conditions.
const (
	FieldCountryOfOrigin     = "pays_origine"
	FieldCountryOfProvenance = "pays_provenance"
	FieldDeclaredValue       = "valeur_declaree"
	FieldHSCode              = "code_sh"
	FieldWeightKg            = "poids_kg"
	FieldOperatorAgeMonths   = "operateur_anciennete_mois"
	FieldBankGuarantee       = "garantie_bancaire"
	FieldIncidentHistory     = "historique_incidents"
	FieldKnownBrand          = "marque_connue"
	FieldUnitPrice           = "prix_unitaire"
	FieldTransportType       = "type_transport"
	FieldIncoterm            = "incoterm"
)

// FieldKind is the scalar type a field carries on a declaration.
type FieldKind string

const (
	FieldKindString FieldKind = "string"
	FieldKindNumber FieldKind = "number"
)

// FieldSpec describes a declaration attribute a condition can test.
type FieldSpec struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
}

var knownFields = []FieldSpec{
	{Name: FieldCountryOfOrigin, Label: "Pays d'origine", Kind: FieldKindString},
	{Name: FieldCountryOfProvenance, Label: "Pays de provenance", Kind: FieldKindString},
	{Name: FieldDeclaredValue, Label: "Valeur déclarée (€)", Kind: FieldKindNumber},
	{Name: FieldHSCode, Label: "Code SH", Kind: FieldKindString},
	{Name: FieldWeightKg, Label: "Poids (kg)", Kind: FieldKindNumber},
	{Name: FieldOperatorAgeMonths, Label: "Ancienneté opérateur (mois)", Kind: FieldKindNumber},
	{Name: FieldBankGuarantee, Label: "Garantie bancaire", Kind: FieldKindString},
	{Name: FieldIncidentHistory, Label: "Historique incidents", Kind: FieldKindNumber},
	{Name: FieldKnownBrand, Label: "Marque connue", Kind: FieldKindString},
	{Name: FieldUnitPrice, Label: "Prix unitaire (€)", Kind: FieldKindNumber},
	{Name: FieldTransportType, Label: "Type de transport", Kind: FieldKindString},
	{Name: FieldIncoterm, Label: "Incoterm", Kind: FieldKindString},
}

var fieldIndex = func() map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(knownFields))
	for _, f := range knownFields {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the FieldSpec for a field name.
func LookupField(name string) (FieldSpec, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// KnownFields returns all recognised fields in display order.
func KnownFields() []FieldSpec {
	out := make([]FieldSpec, len(knownFields))
	copy(out, knownFields)
	return out
}
