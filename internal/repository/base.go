// Package repository provides data access layer implementations for the application.
package repository

import (
	"freightdesk/internal/database"

	"gorm.io/gorm"
)

// readDB routes list/history queries to the read replica when one is
// configured. Writes always go to the primary.
func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}
