package database

import "gorm.io/gorm"

// DB is the process-wide GORM handle, assigned once by SetupDatabase.
var DB *gorm.DB

// GetDB returns the database instance.
func GetDB() *gorm.DB {
	return DB
}
