package model

import "time"

// User represents a marketplace account as stored in the `users` table.
// Buyers place bids and watch auctions; suppliers list lots.  The json
// tags are omitted because these structs are used internally by the
// repository layer; handlers define separate response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address, also the notification target.
//  PasswordHash – bcrypt hashed password.
//  CompanyName  – legal name of the trading company.
//  Role         – BUYER or SUPPLIER.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	CompanyName  string    // users.company_name
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Account roles.  Suppliers create and launch auctions for their lots;
// buyers bid on them.
const (
	RoleBuyer    = "BUYER"
	RoleSupplier = "SUPPLIER"
)
