package catalog

import (
	"context"
	"fmt"
)

type moduleDef struct {
	code string
	name string
}

type typeDef struct {
	code string
	name string
}

var seedModules = []moduleDef{
	{"EMPLOYEES", "Employees"},
	{"POSITIONS", "Positions"},
	{"DEPARTMENTS", "Departments"},
	{"COMPETENCIES", "Competencies"},
	{"ASSESSMENTS", "Assessments"},
	{"REPORTS", "Reports"},
	{"ADMIN", "Administration"},
}

var seedTypes = []typeDef{
	{"C", "Create"},
	{"R", "Read"},
	{"U", "Update"},
	{"D", "Delete"},
}

// Custom permission types outside the CRUD grid, keyed by module.
var seedCustomTypes = map[string][]typeDef{
	"EMPLOYEES":   {{"IMPORT", "Import from spreadsheet"}, {"EXPORT", "Export"}},
	"ASSESSMENTS": {{"NOTIFY", "Send notifications"}},
	"REPORTS":     {{"EXPORT", "Export"}},
}

// Seed ensures the platform catalog exists: every module crossed with the
// CRUD types plus per-module custom codes.
func Seed(ctx context.Context, svc *Service) error {
	for _, m := range seedModules {
		types := append([]typeDef{}, seedTypes...)
		types = append(types, seedCustomTypes[m.code]...)
		for _, t := range types {
			_, err := svc.Ensure(ctx, Permission{
				ModuleCode:         m.code,
				ModuleName:         m.name,
				PermissionTypeCode: t.code,
				PermissionTypeName: t.name,
			})
			if err != nil {
				return fmt.Errorf("catalog: seed %s:%s: %w", m.code, t.code, err)
			}
		}
	}
	return nil
}
