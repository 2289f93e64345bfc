// seed-users creates the demo org chart for local development: one employee
// reporting to one manager, plus finance, compliance, vp, cfo and an admin
// console user. Existing usernames are left untouched.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-users
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const seedPassword = "password123"

type seedUser struct {
	Username            string
	Name                string
	Email               string
	EmployeeNumber      string
	Role                workflow.UserRole
	Department          string
	ApprovalLimit       decimal.Decimal
	MonthlyExpenseLimit decimal.Decimal
}

func seedUsers() []seedUser {
	return []seedUser{
		{
			Username:            "john_employee",
			Name:                "John Smith",
			Email:               "john@company.com",
			EmployeeNumber:      "EMP001",
			Role:                workflow.RoleEmployee,
			Department:          "Engineering",
			ApprovalLimit:       decimal.Zero,
			MonthlyExpenseLimit: decimal.NewFromInt(2000),
		},
		{
			Username:            "jane_manager",
			Name:                "Jane Johnson",
			Email:               "jane@company.com",
			EmployeeNumber:      "MGR001",
			Role:                workflow.RoleManager,
			Department:          "Engineering",
			ApprovalLimit:       decimal.NewFromInt(5000),
			MonthlyExpenseLimit: decimal.NewFromInt(5000),
		},
		{
			Username:            "mike_finance",
			Name:                "Mike Wilson",
			Email:               "mike@company.com",
			EmployeeNumber:      "FIN001",
			Role:                workflow.RoleFinance,
			Department:          "Finance",
			ApprovalLimit:       decimal.NewFromInt(5000),
			MonthlyExpenseLimit: decimal.NewFromInt(10000),
		},
		{
			Username:            "sarah_compliance",
			Name:                "Sarah Davis",
			Email:               "sarah@company.com",
			EmployeeNumber:      "CMP001",
			Role:                workflow.RoleCompliance,
			Department:          "Compliance",
			ApprovalLimit:       decimal.NewFromInt(5000),
			MonthlyExpenseLimit: decimal.NewFromInt(5000),
		},
		{
			Username:            "david_vp",
			Name:                "David Brown",
			Email:               "david@company.com",
			EmployeeNumber:      "VP001",
			Role:                workflow.RoleVP,
			Department:          "Executive",
			ApprovalLimit:       decimal.NewFromInt(50000),
			MonthlyExpenseLimit: decimal.NewFromInt(15000),
		},
		{
			Username:            "lisa_cfo",
			Name:                "Lisa Anderson",
			Email:               "lisa@company.com",
			EmployeeNumber:      "CFO001",
			Role:                workflow.RoleCFO,
			Department:          "Executive",
			ApprovalLimit:       decimal.NewFromFloat(999999.99),
			MonthlyExpenseLimit: decimal.NewFromInt(25000),
		},
	}
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(seedPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	created := map[string]*models.User{}
	for _, s := range seedUsers() {
		var existing models.User
		err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", s.Username).First(&existing).Error
		if err == nil {
			fmt.Printf("User %q already exists, skipping\n", s.Username)
			created[s.Username] = &existing
			continue
		}
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user %q: %v\n", s.Username, err)
			os.Exit(1)
		}

		email := s.Email
		u := models.User{
			Username:            s.Username,
			Name:                s.Name,
			Email:               &email,
			EmployeeNumber:      s.EmployeeNumber,
			Password:            hashedStr,
			IsActive:            utils.NewTrue(),
			IsAdmin:             utils.NewFalse(),
			Role:                s.Role,
			Department:          s.Department,
			ApprovalLimit:       s.ApprovalLimit,
			MonthlyExpenseLimit: s.MonthlyExpenseLimit,
			IsActiveApprover:    utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create user %q: %v\n", s.Username, err)
			os.Exit(1)
		}
		created[s.Username] = &u
		fmt.Printf("Created user: %s (%s)\n", s.Username, s.Role)
	}

	// Reporting line: john_employee reports to jane_manager.
	if john, ok := created["john_employee"]; ok {
		if jane, ok := created["jane_manager"]; ok && john.ManagerId == nil {
			if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", john.ID).
				Update("manager_id", jane.ID).Error; err != nil {
				fmt.Fprintf(os.Stderr, "failed to set manager for %q: %v\n", john.Username, err)
				os.Exit(1)
			}
			fmt.Printf("Set %s as manager for %s\n", jane.Username, john.Username)
		}
	}

	// Admin console user.
	var admin models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", "admin").First(&admin).Error
	if err == gorm.ErrRecordNotFound {
		adminHashed, err := utils.HashPassword("admin123")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash admin password: %v\n", err)
			os.Exit(1)
		}
		email := "admin@company.com"
		u := models.User{
			Username:            "admin",
			Name:                "Admin",
			Email:               &email,
			EmployeeNumber:      "ADMIN001",
			Password:            string(adminHashed),
			IsActive:            utils.NewTrue(),
			IsAdmin:             utils.NewTrue(),
			Role:                workflow.RoleCFO,
			Department:          "Administration",
			ApprovalLimit:       decimal.NewFromFloat(999999.99),
			MonthlyExpenseLimit: decimal.NewFromInt(25000),
			IsActiveApprover:    utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Created admin user: username=\"admin\"")
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d users\n", len(created))
}
