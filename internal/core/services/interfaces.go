package services

import "bitrix24-connector/internal/core/domain"

// Input DTOs for the contact endpoints

// AddressInput is a contact address as sent by API clients
type AddressInput struct {
	Street   string `json:"street" validate:"omitempty,max=255"`
	Ward     string `json:"ward" validate:"omitempty,max=255"`
	District string `json:"district" validate:"omitempty,max=255"`
	City     string `json:"city" validate:"omitempty,max=255"`
}

// BankInfoInput is stored as a requisite + bank detail pair
type BankInfoInput struct {
	BankName      string `json:"bankName" validate:"required,max=255"`
	AccountNumber string `json:"accountNumber" validate:"required,max=64"`
	AccountHolder string `json:"accountHolder" validate:"omitempty,max=255"`
}

// holder returns the account holder, falling back to the bank name
func (b *BankInfoInput) holder() string {
	if b.AccountHolder != "" {
		return b.AccountHolder
	}
	return b.BankName
}

// CreateContactInput for creating a contact
type CreateContactInput struct {
	Name     string         `json:"name" validate:"required,max=255"`
	LastName string         `json:"lastName" validate:"omitempty,max=255"`
	Phone    string         `json:"phone" validate:"omitempty,max=64"`
	Email    string         `json:"email" validate:"omitempty,email"`
	Website  string         `json:"website" validate:"omitempty,max=255"`
	Address  *AddressInput  `json:"address" validate:"omitempty"`
	BankInfo *BankInfoInput `json:"bankInfo" validate:"omitempty"`
	Comments string         `json:"comments"`
}

// UpdateContactInput for updating a contact; empty fields are left untouched
type UpdateContactInput struct {
	Name     string         `json:"name" validate:"omitempty,max=255"`
	LastName string         `json:"lastName" validate:"omitempty,max=255"`
	Phone    string         `json:"phone" validate:"omitempty,max=64"`
	Email    string         `json:"email" validate:"omitempty,email"`
	Website  string         `json:"website" validate:"omitempty,max=255"`
	Address  *AddressInput  `json:"address" validate:"omitempty"`
	BankInfo *BankInfoInput `json:"bankInfo" validate:"omitempty"`
	Comments string         `json:"comments"`
}

// ContactQuery for listing contacts
type ContactQuery struct {
	Page    int    `query:"page" validate:"min=1"`
	Limit   int    `query:"limit" validate:"min=1,max=100"`
	Search  string `query:"search"`
	Email   string `query:"email"`
	Phone   string `query:"phone"`
	OrderBy string `query:"orderBy" validate:"oneof=ID NAME LAST_NAME DATE_CREATE DATE_MODIFY"`
	Order   string `query:"order" validate:"oneof=ASC DESC"`
}

// DefaultContactQuery returns the list defaults
func DefaultContactQuery() ContactQuery {
	return ContactQuery{
		Page:    1,
		Limit:   20,
		OrderBy: "ID",
		Order:   "DESC",
	}
}

// CreateContactResult is returned by Create
type CreateContactResult struct {
	ID      string          `json:"id"`
	Contact *domain.Contact `json:"contact"`
}
