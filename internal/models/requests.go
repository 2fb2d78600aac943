package models

// Request payloads. Every API request carries an "actions" field used for
// routing; the structs below describe the remaining fields per action.

type ListRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=500"`
	Page   int    `json:"page" validate:"omitempty,min=1"`
	Q      string `json:"q" validate:"max=200"`
	BotID  string `json:"bot_id" validate:"omitempty,max=36"`
	Status string `json:"status" validate:"max=20"`
}

type StringIDRequest struct {
	ID string `json:"id" validate:"required,max=36"`
}

type NumericIDRequest struct {
	ID uint `json:"id" validate:"required"`
}

// --- Tenants (admin) ---

type TenantAddRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	APIKey string `json:"api_key" validate:"omitempty,min=16,max=200"`
}

type TenantEditRequest struct {
	ID        string  `json:"id" validate:"required,max=36"`
	Name      *string `json:"name" validate:"omitempty,max=200"`
	Status    *string `json:"status" validate:"omitempty,oneof=active suspended"`
	RotateKey bool    `json:"rotate_key"`
}

// --- Bots ---

type BotAddRequest struct {
	Token       string `json:"token" validate:"required,max=200"`
	Name        string `json:"name" validate:"max=200"`
	WelcomeText string `json:"welcome_text" validate:"max=4096"`
	Config      string `json:"config" validate:"omitempty,json"`
	IsPrimary   bool   `json:"is_primary"`
}

type BotEditRequest struct {
	ID          string  `json:"id" validate:"required,max=36"`
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Token       *string `json:"token" validate:"omitempty,max=200"`
	WelcomeText *string `json:"welcome_text" validate:"omitempty,max=4096"`
	Config      *string `json:"config" validate:"omitempty,json"`
	Status      *string `json:"status" validate:"omitempty,oneof=active disabled"`
}

type SelectBotRequest struct {
	BotID string `json:"bot_id" validate:"required,max=36"`
}

// --- Products ---

type ProductAddRequest struct {
	Name        string `json:"name" validate:"required,max=300"`
	Description string `json:"description" validate:"max=4096"`
	Price       int64  `json:"price" validate:"min=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Content     string `json:"content" validate:"required"`
	Stock       *int   `json:"stock" validate:"omitempty,min=-1"`
	BotID       string `json:"bot_id" validate:"omitempty,max=36"`
}

type ProductEditRequest struct {
	ID          uint    `json:"id" validate:"required"`
	Name        *string `json:"name" validate:"omitempty,max=300"`
	Description *string `json:"description" validate:"omitempty,max=4096"`
	Price       *int64  `json:"price" validate:"omitempty,min=0"`
	Currency    *string `json:"currency" validate:"omitempty,len=3"`
	Content     *string `json:"content"`
	Stock       *int    `json:"stock" validate:"omitempty,min=-1"`
	Active      *bool   `json:"active"`
}

// --- Customers ---

type CustomerEditRequest struct {
	ID      uint  `json:"id" validate:"required"`
	Blocked *bool `json:"blocked" validate:"required"`
}

// --- Orders ---

type OrderAddRequest struct {
	CustomerID uint   `json:"customer_id" validate:"required"`
	ProductID  uint   `json:"product_id" validate:"required"`
	Note       string `json:"note" validate:"max=500"`
}

// --- Broadcasts ---

type BroadcastAddRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
	BotID   string `json:"bot_id" validate:"omitempty,max=36"`
}
