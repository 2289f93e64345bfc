package models

import (
	"log"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Expense{},
		&Receipt{},
		&History{},
		&PaymentOutboxRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
