package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	documentColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "origin", Type: field.TypeString, Size: 2048},
		{Name: "filename", Type: field.TypeString, Nullable: true},
		{Name: "kind", Type: field.TypeString, Size: 16},
		{Name: "size_bytes", Type: field.TypeInt64, Default: 0},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "method", Type: field.TypeString, Nullable: true},
		{Name: "strategy", Type: field.TypeString, Nullable: true},
		{Name: "error", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	DocumentsTable = &schema.Table{
		Name:       "documents",
		Columns:    documentColumns,
		PrimaryKey: []*schema.Column{documentColumns[0]},
	}

	testTypeColumns = []*schema.Column{
		{Name: "code", Type: field.TypeString, Size: 64},
		{Name: "name", Type: field.TypeString},
		{Name: "category", Type: field.TypeString, Nullable: true},
		{Name: "description", Type: field.TypeString, Nullable: true, Size: 2147483647},
	}
	TestTypesTable = &schema.Table{
		Name:       "test_types",
		Columns:    testTypeColumns,
		PrimaryKey: []*schema.Column{testTypeColumns[0]},
	}

	parameterDefinitionColumns = []*schema.Column{
		{Name: "code", Type: field.TypeString, Size: 64},
		{Name: "name", Type: field.TypeString},
		{Name: "unit", Type: field.TypeString, Nullable: true},
		{Name: "data_type", Type: field.TypeString, Size: 16},
		{Name: "reference_range", Type: field.TypeJSON, Nullable: true},
		{Name: "test_type_code", Type: field.TypeString, Nullable: true, Size: 64},
		{Name: "synthesized", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
	}
	ParameterDefinitionsTable = &schema.Table{
		Name:       "parameter_definitions",
		Columns:    parameterDefinitionColumns,
		PrimaryKey: []*schema.Column{parameterDefinitionColumns[0]},
	}

	testResultColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "test_type_code", Type: field.TypeString, Size: 64},
		{Name: "performed_at", Type: field.TypeTime},
		{Name: "date_defaulted", Type: field.TypeBool, Default: false},
		{Name: "lab_name", Type: field.TypeString, Nullable: true},
		{Name: "raw_excerpt", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
	}
	TestResultsTable = &schema.Table{
		Name:       "test_results",
		Columns:    testResultColumns,
		PrimaryKey: []*schema.Column{testResultColumns[0]},
		Indexes: []*schema.Index{
			{Name: "test_results_performed_at", Columns: []*schema.Column{testResultColumns[2]}},
		},
	}

	parameterValueColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "position", Type: field.TypeInt, Default: 0},
		{Name: "raw_value", Type: field.TypeString, Size: 2147483647},
		{Name: "numeric_value", Type: field.TypeFloat64, Nullable: true},
		{Name: "text_value", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "boolean_value", Type: field.TypeBool, Nullable: true},
		{Name: "unit", Type: field.TypeString, Nullable: true},
		{Name: "reference_range", Type: field.TypeJSON, Nullable: true},
		{Name: "is_abnormal", Type: field.TypeBool, Default: false},
		{Name: "test_result_id", Type: field.TypeUUID},
		{Name: "parameter_code", Type: field.TypeString, Size: 64},
	}
	ParameterValuesTable = &schema.Table{
		Name:       "parameter_values",
		Columns:    parameterValueColumns,
		PrimaryKey: []*schema.Column{parameterValueColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "parameter_values_test_results_values",
				Columns:    []*schema.Column{parameterValueColumns[9]},
				RefColumns: []*schema.Column{testResultColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "parameter_values_parameter_definitions_values",
				Columns:    []*schema.Column{parameterValueColumns[10]},
				RefColumns: []*schema.Column{parameterDefinitionColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "parameter_values_result_code", Unique: true, Columns: []*schema.Column{parameterValueColumns[9], parameterValueColumns[10]}},
			{Name: "parameter_values_code", Columns: []*schema.Column{parameterValueColumns[10]}},
		},
	}

	resultDocumentColumns = []*schema.Column{
		{Name: "test_result_id", Type: field.TypeUUID},
		{Name: "document_id", Type: field.TypeUUID},
	}
	TestResultDocumentsTable = &schema.Table{
		Name:       "test_result_documents",
		Columns:    resultDocumentColumns,
		PrimaryKey: []*schema.Column{resultDocumentColumns[0], resultDocumentColumns[1]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "test_result_documents_test_result",
				Columns:    []*schema.Column{resultDocumentColumns[0]},
				RefColumns: []*schema.Column{testResultColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "test_result_documents_document",
				Columns:    []*schema.Column{resultDocumentColumns[1]},
				RefColumns: []*schema.Column{documentColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// Tables lists every table in dependency order.
	Tables = []*schema.Table{
		DocumentsTable,
		TestTypesTable,
		ParameterDefinitionsTable,
		TestResultsTable,
		ParameterValuesTable,
		TestResultDocumentsTable,
	}
)

func init() {
	ParameterValuesTable.ForeignKeys[0].RefTable = TestResultsTable
	ParameterValuesTable.ForeignKeys[1].RefTable = ParameterDefinitionsTable
	TestResultDocumentsTable.ForeignKeys[0].RefTable = TestResultsTable
	TestResultDocumentsTable.ForeignKeys[1].RefTable = DocumentsTable
}

// Migrate creates missing tables, columns and indexes. It never drops anything.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		d.logger.Error("db.migrate.failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	d.logger.Info("db.migrate.ok", "tables", len(Tables))
	return nil
}
