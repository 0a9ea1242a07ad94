package model

import (
	"fmt"
	"sort"
)

// MigrationOpKind tags the shape of a MigrationOp.
type MigrationOpKind int

const (
	OpCreateTable MigrationOpKind = iota
	OpDropTable
	OpAddColumn
	OpDropColumn
	OpCopyDataHint
	OpAddIndex
	OpDropIndex
	OpAddForeignKey
	OpDropForeignKey
)

func (k MigrationOpKind) String() string {
	switch k {
	case OpCreateTable:
		return "CreateTable"
	case OpDropTable:
		return "DropTable"
	case OpAddColumn:
		return "AddColumn"
	case OpDropColumn:
		return "DropColumn"
	case OpCopyDataHint:
		return "CopyDataHint"
	case OpAddIndex:
		return "AddIndex"
	case OpDropIndex:
		return "DropIndex"
	case OpAddForeignKey:
		return "AddForeignKey"
	case OpDropForeignKey:
		return "DropForeignKey"
	default:
		return "Unknown"
	}
}

// MigrationOp is one step of a migration plan. Which of Model, Field,
// Index, ForeignKey is populated depends on Kind.
type MigrationOp struct {
	Kind       MigrationOpKind
	Table      string
	Model      *Model
	Field      *Field
	Index      *IndexDefinition
	ForeignKey *ForeignKey
	Hint       string // populated for OpCopyDataHint
}

// Diff computes the totally ordered migration op list that carries
// old forward to new: created tables (topological order, dependencies
// first), dropped tables (reverse topological order), then per common
// table a column/index/foreign-key diff, each category internally
// sorted by name for determinism across re-runs.
func Diff(old, new *ComposedSchema) []MigrationOp {
	oldOrder, _ := topologicalOrder(old)
	newOrder, _ := topologicalOrder(new)

	createdSet := make(map[string]bool)
	for name := range new.byName {
		if _, ok := old.byName[name]; !ok {
			createdSet[name] = true
		}
	}
	droppedSet := make(map[string]bool)
	for name := range old.byName {
		if _, ok := new.byName[name]; !ok {
			droppedSet[name] = true
		}
	}

	var ops []MigrationOp

	for _, name := range filterOrder(newOrder, createdSet) {
		m, _ := new.Model(name)
		ops = append(ops, MigrationOp{Kind: OpCreateTable, Table: name, Model: m})
	}

	dropped := filterOrder(oldOrder, droppedSet)
	for i := len(dropped) - 1; i >= 0; i-- {
		name := dropped[i]
		m, _ := old.Model(name)
		ops = append(ops, MigrationOp{Kind: OpDropTable, Table: name, Model: m})
	}

	var common []string
	for name := range old.byName {
		if _, ok := new.byName[name]; ok {
			common = append(common, name)
		}
	}
	sort.Strings(common)
	for _, name := range common {
		oldM, _ := old.Model(name)
		newM, _ := new.Model(name)
		ops = append(ops, diffModel(oldM, newM)...)
	}

	return ops
}

func diffModel(oldM, newM *Model) []MigrationOp {
	var ops []MigrationOp

	oldFields := fieldsByName(oldM.Fields)
	newFields := fieldsByName(newM.Fields)

	var added, dropped, altered []string
	for name, f := range newFields {
		if old, ok := oldFields[name]; !ok {
			added = append(added, name)
		} else if !old.compatible(f) || old.Default != f.Default {
			altered = append(altered, name)
		}
	}
	for name := range oldFields {
		if _, ok := newFields[name]; !ok {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(added)
	sort.Strings(altered)
	sort.Strings(dropped)

	for _, name := range added {
		f := newFields[name]
		ops = append(ops, MigrationOp{Kind: OpAddColumn, Table: newM.Name, Field: &f})
	}
	for _, name := range altered {
		oldF := oldFields[name]
		newF := newFields[name]
		tmp := newF
		tmp.Name = newF.Name + "_new"
		ops = append(ops,
			MigrationOp{Kind: OpAddColumn, Table: newM.Name, Field: &tmp},
			MigrationOp{Kind: OpCopyDataHint, Table: newM.Name,
				Hint: fmt.Sprintf("copy %s into %s, then drop %s", oldF.Name, tmp.Name, oldF.Name)},
			MigrationOp{Kind: OpDropColumn, Table: newM.Name, Field: &oldF},
		)
	}
	for _, name := range dropped {
		f := oldFields[name]
		ops = append(ops, MigrationOp{Kind: OpDropColumn, Table: newM.Name, Field: &f})
	}

	oldIdx := indexesByName(oldM.Indexes)
	newIdx := indexesByName(newM.Indexes)
	var idxAdded, idxDropped []string
	for name, idx := range newIdx {
		if old, ok := oldIdx[name]; !ok || !sameIndex(old, idx) {
			if ok {
				idxDropped = append(idxDropped, name)
			}
			idxAdded = append(idxAdded, name)
		}
	}
	for name := range oldIdx {
		if _, ok := newIdx[name]; !ok {
			idxDropped = append(idxDropped, name)
		}
	}
	sort.Strings(idxDropped)
	sort.Strings(idxAdded)
	for _, name := range idxDropped {
		idx := oldIdx[name]
		ops = append(ops, MigrationOp{Kind: OpDropIndex, Table: newM.Name, Index: &idx})
	}
	for _, name := range idxAdded {
		idx := newIdx[name]
		ops = append(ops, MigrationOp{Kind: OpAddIndex, Table: newM.Name, Index: &idx})
	}

	oldFK := fksByName(oldM.ForeignKeys)
	newFK := fksByName(newM.ForeignKeys)
	var fkAdded, fkDropped []string
	for name, fk := range newFK {
		if old, ok := oldFK[name]; !ok || !sameForeignKey(old, fk) {
			if ok {
				fkDropped = append(fkDropped, name)
			}
			fkAdded = append(fkAdded, name)
		}
	}
	for name := range oldFK {
		if _, ok := newFK[name]; !ok {
			fkDropped = append(fkDropped, name)
		}
	}
	sort.Strings(fkDropped)
	sort.Strings(fkAdded)
	for _, name := range fkDropped {
		fk := oldFK[name]
		ops = append(ops, MigrationOp{Kind: OpDropForeignKey, Table: newM.Name, ForeignKey: &fk})
	}
	for _, name := range fkAdded {
		fk := newFK[name]
		ops = append(ops, MigrationOp{Kind: OpAddForeignKey, Table: newM.Name, ForeignKey: &fk})
	}

	return ops
}

func fieldsByName(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}

func indexesByName(indexes []IndexDefinition) map[string]IndexDefinition {
	m := make(map[string]IndexDefinition, len(indexes))
	for _, i := range indexes {
		m[i.Name] = i
	}
	return m
}

func fksByName(fks []ForeignKey) map[string]ForeignKey {
	m := make(map[string]ForeignKey, len(fks))
	for _, fk := range fks {
		m[fk.Name] = fk
	}
	return m
}

func sameIndex(a, b IndexDefinition) bool {
	if a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

func sameForeignKey(a, b ForeignKey) bool {
	if a.RefTable != b.RefTable || a.OnDelete != b.OnDelete || a.OnUpdate != b.OnUpdate {
		return false
	}
	if len(a.Columns) != len(b.Columns) || len(a.RefColumns) != len(b.RefColumns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for i := range a.RefColumns {
		if a.RefColumns[i] != b.RefColumns[i] {
			return false
		}
	}
	return true
}
