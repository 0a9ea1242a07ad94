package model

import (
	"fmt"
	"strings"
)

// SqlDialect renders portable Model/MigrationOp values as a specific
// database's DDL.
type SqlDialect interface {
	Name() string
	ColumnType(t FieldType) string
	Quote(ident string) string
	Render(op MigrationOp) (string, error)
}

// baseDialect implements Render generically in terms of ColumnType and
// Quote, which each concrete dialect supplies.
type baseDialect struct {
	name       string
	columnType func(FieldType) string
	quote      func(string) string
}

func (d *baseDialect) Name() string                   { return d.name }
func (d *baseDialect) ColumnType(t FieldType) string   { return d.columnType(t) }
func (d *baseDialect) Quote(ident string) string       { return d.quote(ident) }

func (d *baseDialect) Render(op MigrationOp) (string, error) {
	switch op.Kind {
	case OpCreateTable:
		return d.renderCreateTable(op.Model)
	case OpDropTable:
		return fmt.Sprintf("DROP TABLE %s;", d.quote(op.Table)), nil
	case OpAddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", d.quote(op.Table), d.renderColumn(*op.Field)), nil
	case OpDropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", d.quote(op.Table), d.quote(op.Field.Name)), nil
	case OpCopyDataHint:
		return fmt.Sprintf("-- %s", op.Hint), nil
	case OpAddIndex:
		return d.renderCreateIndex(op.Table, *op.Index), nil
	case OpDropIndex:
		return fmt.Sprintf("DROP INDEX %s;", d.quote(op.Index.Name)), nil
	case OpAddForeignKey:
		return d.renderAddForeignKey(op.Table, *op.ForeignKey), nil
	case OpDropForeignKey:
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", d.quote(op.Table), d.quote(op.ForeignKey.Name)), nil
	default:
		return "", fmt.Errorf("model: dialect %s: unsupported op kind %v", d.name, op.Kind)
	}
}

func (d *baseDialect) renderCreateTable(m *Model) (string, error) {
	if m == nil {
		return "", fmt.Errorf("model: CreateTable op missing Model")
	}
	var cols []string
	var pks []string
	for _, f := range m.Fields {
		cols = append(cols, d.renderColumn(f))
		if f.PrimaryKey {
			pks = append(pks, d.quote(f.Name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	for _, fk := range m.ForeignKeys {
		cols = append(cols, d.renderInlineForeignKey(fk))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", d.quote(m.Name))
	b.WriteString("  " + strings.Join(cols, ",\n  "))
	b.WriteString("\n);")
	for _, idx := range m.Indexes {
		b.WriteString("\n" + d.renderCreateIndex(m.Name, idx))
	}
	return b.String(), nil
}

func (d *baseDialect) renderColumn(f Field) string {
	parts := []string{d.quote(f.Name), d.columnType(f.Type)}
	if !f.Optional {
		parts = append(parts, "NOT NULL")
	}
	if f.Unique {
		parts = append(parts, "UNIQUE")
	}
	if f.Default != "" {
		parts = append(parts, "DEFAULT "+f.Default)
	}
	return strings.Join(parts, " ")
}

func (d *baseDialect) renderCreateIndex(table string, idx IndexDefinition) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);", unique, d.quote(idx.Name), d.quote(table), d.quoteList(idx.Columns))
}

func (d *baseDialect) renderInlineForeignKey(fk ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		d.quote(fk.Name), d.quoteList(fk.Columns), d.quote(fk.RefTable), d.quoteList(fk.RefColumns),
		fk.OnDelete, fk.OnUpdate)
}

func (d *baseDialect) renderAddForeignKey(table string, fk ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s;", d.quote(table), d.renderInlineForeignKey(fk))
}

func (d *baseDialect) quoteList(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = d.quote(id)
	}
	return strings.Join(quoted, ", ")
}

func doubleQuote(ident string) string { return `"` + ident + `"` }
func backtickQuote(ident string) string { return "`" + ident + "`" }

// NewPostgresDialect returns a SqlDialect targeting PostgreSQL:
// VARCHAR(n)/TEXT, TIMESTAMP, JSONB, native UUID, BYTEA.
func NewPostgresDialect() SqlDialect {
	return &baseDialect{
		name:  "postgres",
		quote: doubleQuote,
		columnType: func(t FieldType) string {
			switch t.Kind {
			case KindString:
				if t.Length > 0 {
					return fmt.Sprintf("VARCHAR(%d)", t.Length)
				}
				return "TEXT"
			case KindText:
				return "TEXT"
			case KindInteger:
				return "INTEGER"
			case KindBigInt:
				return "BIGINT"
			case KindBoolean:
				return "BOOLEAN"
			case KindTimestamp:
				return "TIMESTAMP"
			case KindJSON:
				return "JSONB"
			case KindUUID:
				return "UUID"
			case KindBinary:
				return "BYTEA"
			default:
				return "TEXT"
			}
		},
	}
}

// NewMySQLDialect returns a SqlDialect targeting MySQL: VARCHAR(n)/
// TEXT, DATETIME, JSON, CHAR(36) for UUID (no native uuid type), BLOB.
func NewMySQLDialect() SqlDialect {
	return &baseDialect{
		name:  "mysql",
		quote: backtickQuote,
		columnType: func(t FieldType) string {
			switch t.Kind {
			case KindString:
				if t.Length > 0 {
					return fmt.Sprintf("VARCHAR(%d)", t.Length)
				}
				return "TEXT"
			case KindText:
				return "TEXT"
			case KindInteger:
				return "INT"
			case KindBigInt:
				return "BIGINT"
			case KindBoolean:
				return "TINYINT(1)"
			case KindTimestamp:
				return "DATETIME"
			case KindJSON:
				return "JSON"
			case KindUUID:
				return "CHAR(36)"
			case KindBinary:
				return "BLOB"
			default:
				return "TEXT"
			}
		},
	}
}

// NewSQLiteDialect returns a SqlDialect targeting SQLite, whose type
// affinity system collapses most portable kinds to TEXT or INTEGER.
func NewSQLiteDialect() SqlDialect {
	return &baseDialect{
		name:  "sqlite",
		quote: doubleQuote,
		columnType: func(t FieldType) string {
			switch t.Kind {
			case KindString, KindText, KindJSON, KindUUID:
				return "TEXT"
			case KindInteger, KindBigInt, KindBoolean:
				return "INTEGER"
			case KindTimestamp:
				return "DATETIME"
			case KindBinary:
				return "BLOB"
			default:
				return "TEXT"
			}
		},
	}
}
