package model

// FieldKind is the portable scalar type of a Field, independent of
// any one SQL dialect's spelling for it.
type FieldKind int

const (
	KindString FieldKind = iota
	KindText
	KindInteger
	KindBigInt
	KindBoolean
	KindTimestamp
	KindJSON
	KindUUID
	KindBinary
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindText:
		return "Text"
	case KindInteger:
		return "Integer"
	case KindBigInt:
		return "BigInt"
	case KindBoolean:
		return "Boolean"
	case KindTimestamp:
		return "Timestamp"
	case KindJSON:
		return "Json"
	case KindUUID:
		return "Uuid"
	case KindBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// FieldType is a field's portable type. Length is meaningful only for
// KindString (0 means "unbounded", rendered TEXT by most dialects).
type FieldType struct {
	Kind   FieldKind
	Length int
}

func String(length int) FieldType  { return FieldType{Kind: KindString, Length: length} }
func Text() FieldType              { return FieldType{Kind: KindText} }
func Integer() FieldType           { return FieldType{Kind: KindInteger} }
func BigInt() FieldType            { return FieldType{Kind: KindBigInt} }
func Boolean() FieldType           { return FieldType{Kind: KindBoolean} }
func Timestamp() FieldType         { return FieldType{Kind: KindTimestamp} }
func JSON() FieldType              { return FieldType{Kind: KindJSON} }
func UUID() FieldType              { return FieldType{Kind: KindUUID} }
func Binary() FieldType            { return FieldType{Kind: KindBinary} }

// Field is one column contribution.
type Field struct {
	Name       string
	Type       FieldType
	PrimaryKey bool
	Optional   bool
	Unique     bool
	Default    string // empty means no default
}

// NewField constructs a required, non-unique field.
func NewField(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// PrimaryKeyField constructs the conventional string primary key.
func PrimaryKeyField(name string) Field {
	return Field{Name: name, Type: String(36), PrimaryKey: true}
}

// OptionalField constructs a nullable field.
func OptionalField(name string, t FieldType) Field {
	return Field{Name: name, Type: t, Optional: true}
}

// WithDefault returns a copy of f carrying a default-value expression.
func (f Field) WithDefault(expr string) Field {
	f.Default = expr
	return f
}

// WithUnique returns a copy of f marked unique.
func (f Field) WithUnique() Field {
	f.Unique = true
	return f
}

// compatible reports whether two same-named fields can coexist without
// conflict during extension merging: same type, nullability, and
// uniqueness.
func (f Field) compatible(other Field) bool {
	return f.Type == other.Type && f.Optional == other.Optional && f.Unique == other.Unique
}

// IndexDefinition is a non-unique or unique index over one or more
// columns.
type IndexDefinition struct {
	Name    string
	Columns []string
	Unique  bool
}

// NewIndex constructs a non-unique index.
func NewIndex(name string, columns ...string) IndexDefinition {
	return IndexDefinition{Name: name, Columns: columns}
}

// AsUnique returns a copy of i marked unique.
func (i IndexDefinition) AsUnique() IndexDefinition {
	i.Unique = true
	return i
}

// ReferentialAction governs what happens to dependent rows when a
// referenced row is deleted or updated.
type ReferentialAction int

const (
	ActionCascade ReferentialAction = iota
	ActionRestrict
	ActionSetNull
	ActionNoAction
)

func (a ReferentialAction) String() string {
	switch a {
	case ActionCascade:
		return "CASCADE"
	case ActionRestrict:
		return "RESTRICT"
	case ActionSetNull:
		return "SET NULL"
	case ActionNoAction:
		return "NO ACTION"
	default:
		return "NO ACTION"
	}
}

// ForeignKey references another model's columns.
type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   ReferentialAction
	OnUpdate   ReferentialAction
}

// Model is one table contribution: fields, indexes, and foreign keys.
// Models are built with the fluent AddX methods, mutating in place and
// returning the receiver.
type Model struct {
	Name        string
	Fields      []Field
	Indexes     []IndexDefinition
	ForeignKeys []ForeignKey
}

// NewModel constructs an empty model named name.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddField appends f and returns the receiver.
func (m *Model) AddField(f Field) *Model {
	m.Fields = append(m.Fields, f)
	return m
}

// AddIndex appends idx and returns the receiver.
func (m *Model) AddIndex(idx IndexDefinition) *Model {
	m.Indexes = append(m.Indexes, idx)
	return m
}

// AddForeignKey appends fk and returns the receiver.
func (m *Model) AddForeignKey(fk ForeignKey) *Model {
	m.ForeignKeys = append(m.ForeignKeys, fk)
	return m
}

// Field looks up a field by name.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Clone deep-copies m so callers can mutate the copy (e.g. during
// extension merging) without aliasing the original's slices.
func (m *Model) Clone() *Model {
	cp := &Model{Name: m.Name}
	cp.Fields = append([]Field(nil), m.Fields...)
	cp.Indexes = append([]IndexDefinition(nil), m.Indexes...)
	cp.ForeignKeys = append([]ForeignKey(nil), m.ForeignKeys...)
	return cp
}

// SchemaProvider contributes new tables to the composed schema.
type SchemaProvider interface {
	Schema() []*Model
}

// ExtensionProvider adds fields to an existing, named model.
type ExtensionProvider interface {
	Extends() string
	Fields() []Field
}

// CoreSchema returns the canonical core models every composition
// starts from: User, Session, Account, Verification.
func CoreSchema() []*Model {
	return []*Model{
		NewModel("user").
			AddField(PrimaryKeyField("id")).
			AddField(NewField("email", String(255)).WithUnique()).
			AddField(OptionalField("name", String(255))).
			AddField(NewField("email_verified", Boolean()).WithDefault("false")).
			AddField(NewField("created_at", Timestamp())).
			AddField(NewField("updated_at", Timestamp())),

		NewModel("session").
			AddField(PrimaryKeyField("id")).
			AddField(NewField("user_id", String(36))).
			AddField(NewField("token", String(255)).WithUnique()).
			AddField(NewField("expires_at", Timestamp())).
			AddField(OptionalField("ip_address", String(64))).
			AddField(OptionalField("user_agent", Text())).
			AddField(NewField("created_at", Timestamp())).
			AddIndex(NewIndex("idx_session_user", "user_id")).
			AddForeignKey(ForeignKey{
				Name: "fk_session_user", Columns: []string{"user_id"},
				RefTable: "user", RefColumns: []string{"id"},
				OnDelete: ActionCascade, OnUpdate: ActionCascade,
			}),

		NewModel("account").
			AddField(PrimaryKeyField("id")).
			AddField(NewField("user_id", String(36))).
			AddField(NewField("provider", String(64))).
			AddField(NewField("provider_account_id", String(255))).
			AddField(OptionalField("access_token", Text())).
			AddField(OptionalField("refresh_token", Text())).
			AddField(OptionalField("expires_at", Timestamp())).
			AddField(NewField("created_at", Timestamp())).
			AddIndex(NewIndex("idx_account_provider", "provider", "provider_account_id").AsUnique()).
			AddForeignKey(ForeignKey{
				Name: "fk_account_user", Columns: []string{"user_id"},
				RefTable: "user", RefColumns: []string{"id"},
				OnDelete: ActionCascade, OnUpdate: ActionCascade,
			}),

		NewModel("verification").
			AddField(PrimaryKeyField("id")).
			AddField(NewField("identifier", String(255))).
			AddField(NewField("value", String(255))).
			AddField(NewField("expires_at", Timestamp())).
			AddField(NewField("created_at", Timestamp())).
			AddIndex(NewIndex("idx_verification_identifier", "identifier")),
	}
}
