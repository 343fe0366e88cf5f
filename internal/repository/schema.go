package repository

// Schema definitions for the compenso database.
// The SQLite and PostgreSQL dialects share one schema; MySQL needs inline
// indexes and bounded key columns.

const schemaDoctorConfigs = `
CREATE TABLE IF NOT EXISTS doctor_configs (
    tenant_id VARCHAR(191) NOT NULL,
    doctor_id VARCHAR(191) NOT NULL,
    base_rule TEXT NOT NULL,
    exceptions TEXT NOT NULL,
    product_costs TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, doctor_id)
);
`

const schemaProductCatalog = `
CREATE TABLE IF NOT EXISTS product_catalog (
    tenant_id VARCHAR(191) NOT NULL,
    name VARCHAR(191) NOT NULL,
    unit VARCHAR(64) NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, name)
);
`

const schemaCalculations = `
CREATE TABLE IF NOT EXISTS calculations (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(191) NOT NULL,
    doctor_id VARCHAR(191) NOT NULL,
    line TEXT NOT NULL,
    result TEXT NOT NULL,
    net_compensation DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calculations_tenant ON calculations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_calculations_doctor ON calculations(tenant_id, doctor_id, created_at);
`

const mysqlDoctorConfigs = `
CREATE TABLE IF NOT EXISTS doctor_configs (
    tenant_id VARCHAR(191) NOT NULL,
    doctor_id VARCHAR(191) NOT NULL,
    base_rule TEXT NOT NULL,
    exceptions MEDIUMTEXT NOT NULL,
    product_costs MEDIUMTEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    PRIMARY KEY (tenant_id, doctor_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

const mysqlProductCatalog = `
CREATE TABLE IF NOT EXISTS product_catalog (
    tenant_id VARCHAR(191) NOT NULL,
    name VARCHAR(191) NOT NULL,
    unit VARCHAR(64) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    PRIMARY KEY (tenant_id, name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

const mysqlCalculations = `
CREATE TABLE IF NOT EXISTS calculations (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(191) NOT NULL,
    doctor_id VARCHAR(191) NOT NULL,
    line TEXT NOT NULL,
    result TEXT NOT NULL,
    net_compensation DOUBLE NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_calculations_tenant (tenant_id),
    INDEX idx_calculations_doctor (tenant_id, doctor_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

// AllSchemas returns the schema statements for a driver in order.
func AllSchemas(driver string) []string {
	if driver == "mysql" {
		return []string{
			mysqlDoctorConfigs,
			mysqlProductCatalog,
			mysqlCalculations,
		}
	}
	return []string{
		schemaDoctorConfigs,
		schemaProductCatalog,
		schemaCalculations,
	}
}
