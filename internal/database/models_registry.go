package database

import "freightdesk/internal/models"

// Models returns every GORM model the service migrates. New models must be
// registered here so Migrate and the test database stay in sync.
func Models() []interface{} {
	return []interface{}{
		&models.WorkflowEntity{},
		&models.AuditRecord{},
	}
}
