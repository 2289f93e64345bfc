package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID             int               `gorm:"primary_key" json:"id"`
	Username       string            `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name           string            `gorm:"size:100;not null" json:"name" binding:"required"`
	Email          *string           `gorm:"size:100;unique" json:"email"`
	Phone          string            `gorm:"size:20" json:"phone"`
	EmployeeNumber string            `gorm:"size:20;not null;unique" json:"employee_number" binding:"required"`
	Password       string            `gorm:"size:255;not null" json:"password"`
	IsActive       *bool             `gorm:"not null" json:"is_active"`
	IsAdmin        *bool             `gorm:"not null;default:false" json:"is_admin"`
	Role           workflow.UserRole `gorm:"type:enum('employee','manager','finance','compliance','vp','cfo');default:'employee'" json:"role"`
	Department     string            `gorm:"size:100;not null" json:"department"`

	// Organizational hierarchy, nullable for the top of the chain.
	ManagerId *int  `gorm:"index" json:"manager_id"`
	Manager   *User `gorm:"foreignKey:ManagerId" json:"manager,omitempty"`

	ApprovalLimit       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"approval_limit"`
	MonthlyExpenseLimit decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"monthly_expense_limit"`
	IsActiveApprover    *bool           `gorm:"not null;default:true" json:"is_active_approver"`
	LastApprovalDate    *time.Time      `json:"last_approval_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username       string            `json:"username" binding:"required"`
	Name           string            `json:"name" binding:"required"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	EmployeeNumber string            `json:"employee_number" binding:"required"`
	Password       string            `json:"password" binding:"required"`
	Role           workflow.UserRole `json:"role" binding:"required"`
	Department     string            `json:"department" binding:"required"`
	ManagerId      *int              `json:"manager_id"`
	IsAdmin        *bool             `json:"is_admin"`

	// Limits fall back to the role defaults when omitted.
	ApprovalLimit       *decimal.Decimal `json:"approval_limit"`
	MonthlyExpenseLimit *decimal.Decimal `json:"monthly_expense_limit"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		return err
	}
	return nil
}

// Role defaults, applied at creation when no explicit limit is given and
// never renegotiated afterwards except by administrative update.
func DefaultApprovalLimit(role workflow.UserRole) decimal.Decimal {
	switch role {
	case workflow.RoleManager, workflow.RoleFinance, workflow.RoleCompliance:
		return decimal.NewFromInt(5000)
	case workflow.RoleVP:
		return decimal.NewFromInt(50000)
	case workflow.RoleCFO:
		return decimal.NewFromFloat(999999.99)
	}
	return decimal.Zero
}

func DefaultMonthlyExpenseLimit(role workflow.UserRole) decimal.Decimal {
	switch role {
	case workflow.RoleManager, workflow.RoleCompliance:
		return decimal.NewFromInt(5000)
	case workflow.RoleFinance:
		return decimal.NewFromInt(10000)
	case workflow.RoleVP:
		return decimal.NewFromInt(15000)
	case workflow.RoleCFO:
		return decimal.NewFromInt(25000)
	}
	return decimal.NewFromInt(2000)
}

type LoginInfo struct {
	Token      string `json:"token"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

func (result *User) PrepareGive() {
	result.Password = ""
	if result.Manager != nil {
		result.Manager.PrepareGive()
	}
}

// AsActor converts the stored user into the engine's view of it.
func (user *User) AsActor() *workflow.Actor {
	return &workflow.Actor{
		ID:                  user.ID,
		Username:            user.Username,
		Name:                user.Name,
		Role:                user.Role,
		Department:          user.Department,
		IsActiveApprover:    user.IsActiveApprover != nil && *user.IsActiveApprover,
		ApprovalLimit:       user.ApprovalLimit,
		MonthlyExpenseLimit: user.MonthlyExpenseLimit,
	}
}

func (user *User) AsParty() *workflow.Party {
	return &workflow.Party{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	err := config.RemoveRedisKey("Token:" + fmt.Sprint(token))
	if err != nil {
		return false, nil
	}
	// remove current token from tokens list
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var err error
	var result LoginInfo

	user := User{}

	// get User info
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error

		if err != nil {
			return &result, errors.New("invalid username or password")
		}
	}

	// check login credentials
	err = utils.ComparePassword(user.Password, password)

	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return &result, errors.New("invalid username or password")
	}

	isActive := user.IsActive != nil && *user.IsActive
	if !isActive {
		return &result, errors.New("user is disabled")
	}

	// generate token & response
	token := uuid.New()
	result.Token = token.String()
	result.Name = user.Name
	result.Username = user.Username
	result.Role = string(user.Role)
	result.Department = user.Department

	// store token in redis
	token_lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		token_lifespan = 24
	}

	// add new token to the user's tokens set
	if err := config.AddRedisSet("Tokens:"+user.Username, token.String()); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token.String(), user.Username, time.Duration(token_lifespan)*time.Hour); err != nil {
		return &result, err
	}

	return &result, nil
}

func GetAllUsers(ctx context.Context) ([]*User, error) {

	db := config.GetDB()
	var results []*User

	if err := db.WithContext(ctx).Preload("Manager").Order("id").Find(&results).Error; err != nil {
		return results, errors.New("no user")
	}

	for i, u := range results {
		u.PrepareGive()
		results[i] = u
	}

	return results, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	db := config.GetDB()
	var count int64

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return &User{}, errors.New("invalid email address")
	}
	if !input.Role.IsValid() {
		return &User{}, errors.New("invalid role")
	}

	err := db.WithContext(ctx).Model(&User{}).
		Where("username = ?", input.Username).
		Or("employee_number = ?", input.EmployeeNumber).
		Or("email = ?", input.Email).
		Count(&count).Error
	if err != nil {
		return &User{}, err
	}
	if count > 0 {
		return &User{}, errors.New("duplicate username, employee number or email")
	}

	if input.ManagerId != nil {
		if err := utils.ValidateResourceId[User](ctx, *input.ManagerId); err != nil {
			return &User{}, errors.New("manager not found")
		}
	}

	phone := input.Phone
	if phone != "" {
		normalized, err := utils.NormalizePhoneNumber(phone, utils.CountryCode)
		if err != nil {
			return &User{}, errors.New("invalid phone number")
		}
		phone = normalized
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return &User{}, err
	}
	input.Email = strings.ToLower(input.Email)

	approvalLimit := DefaultApprovalLimit(input.Role)
	if input.ApprovalLimit != nil {
		approvalLimit = *input.ApprovalLimit
	}
	monthlyLimit := DefaultMonthlyExpenseLimit(input.Role)
	if input.MonthlyExpenseLimit != nil {
		monthlyLimit = *input.MonthlyExpenseLimit
	}
	isAdmin := utils.NewFalse()
	if input.IsAdmin != nil {
		isAdmin = input.IsAdmin
	}

	user := User{
		Username:            html.EscapeString(strings.TrimSpace(input.Username)),
		Name:                input.Name,
		Email:               utils.NilIfEmpty(input.Email),
		Phone:               phone,
		EmployeeNumber:      strings.TrimSpace(input.EmployeeNumber),
		Password:            string(hashedPassword),
		IsActive:            utils.NewTrue(),
		IsAdmin:             isAdmin,
		Role:                input.Role,
		Department:          input.Department,
		ManagerId:           input.ManagerId,
		ApprovalLimit:       approvalLimit,
		MonthlyExpenseLimit: monthlyLimit,
		IsActiveApprover:    utils.NewTrue(),
	}

	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return &User{}, err
	}
	user.Password = ""
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {

	db := config.GetDB()
	var result User

	err := db.WithContext(ctx).Preload("Manager").First(&result, id).Error

	if err != nil {
		return &result, utils.ErrorRecordNotFound
	}

	result.PrepareGive()

	return &result, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {

	db := config.GetDB()
	var result User

	if err := db.WithContext(ctx).Where("username = ?", username).Take(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

type UpdateUserInput struct {
	Name                string           `json:"name"`
	Email               string           `json:"email"`
	Phone               string           `json:"phone"`
	Department          string           `json:"department"`
	ManagerId           *int             `json:"manager_id"`
	IsActive            *bool            `json:"is_active"`
	IsActiveApprover    *bool            `json:"is_active_approver"`
	ApprovalLimit       *decimal.Decimal `json:"approval_limit"`
	MonthlyExpenseLimit *decimal.Decimal `json:"monthly_expense_limit"`
}

// UpdateUser applies the administrative update. Limits change only when
// explicitly given.
func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {

	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return nil, errors.New("invalid email address")
		}
		if err := utils.ValidateUnique[User](ctx, "email", strings.ToLower(input.Email), id); err != nil {
			return nil, err
		}
		user.Email = utils.NilIfEmpty(strings.ToLower(input.Email))
	}
	if input.ManagerId != nil {
		if *input.ManagerId == id {
			return nil, errors.New("user cannot be their own manager")
		}
		if err := utils.ValidateResourceId[User](ctx, *input.ManagerId); err != nil {
			return nil, errors.New("manager not found")
		}
		user.ManagerId = input.ManagerId
	}
	if input.Name != "" {
		user.Name = input.Name
	}
	if input.Phone != "" {
		normalized, err := utils.NormalizePhoneNumber(input.Phone, utils.CountryCode)
		if err != nil {
			return nil, errors.New("invalid phone number")
		}
		user.Phone = normalized
	}
	if input.Department != "" {
		user.Department = input.Department
	}
	if input.IsActive != nil {
		user.IsActive = input.IsActive
	}
	if input.IsActiveApprover != nil {
		user.IsActiveApprover = input.IsActiveApprover
	}
	if input.ApprovalLimit != nil {
		user.ApprovalLimit = *input.ApprovalLimit
	}
	if input.MonthlyExpenseLimit != nil {
		user.MonthlyExpenseLimit = *input.MonthlyExpenseLimit
	}

	if err := db.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return &user, nil
}

func (user *User) DestroyAllSessions(ctx context.Context) error {
	allTokens, err := config.GetRedisSetMembers("Tokens:" + user.Username)
	if err != nil {
		return err
	}
	for _, token := range allTokens {
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			return err
		}
	}
	if err := config.RemoveRedisKey("Tokens:" + user.Username); err != nil {
		return err
	}

	return nil
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return nil, err
	}
	// check oldPassword
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return nil, errors.New("old password is wrong")
	}

	//turn password into hash
	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	newPassword = string(hashedPassword)

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&user).UpdateColumn("password", newPassword).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		tx.Rollback()
		return nil, err
	}

	// destroying all session tokens
	if err := user.DestroyAllSessions(ctx); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &user, tx.Commit().Error
}
