package services

import (
	"encoding/json"
	"strings"

	"bitrix24-connector/internal/core/domain"
)

// CRM entity constants
const (
	contactEntityTypeID = 3
	defaultPresetID     = 1
	multiFieldWork      = "WORK"
	requisiteTitle      = "Bank details"
	bankDetailTitle     = "Bank account"
)

var contactSelect = []string{
	"ID", "NAME", "LAST_NAME", "SECOND_NAME", "EMAIL", "PHONE", "WEB",
	"ADDRESS", "ADDRESS_2", "ADDRESS_CITY", "ADDRESS_REGION", "ADDRESS_PROVINCE",
	"COMMENTS", "DATE_CREATE", "DATE_MODIFY", "ASSIGNED_BY_ID",
}

// bitrixID accepts ids sent either as JSON numbers or strings
type bitrixID string

func (id *bitrixID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = bitrixID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = bitrixID(n.String())
	return nil
}

type bitrixMultiField struct {
	ID        bitrixID `json:"ID,omitempty"`
	Value     string   `json:"VALUE"`
	ValueType string   `json:"VALUE_TYPE"`
}

type bitrixContact struct {
	ID              bitrixID           `json:"ID"`
	Name            string             `json:"NAME"`
	LastName        string             `json:"LAST_NAME"`
	SecondName      string             `json:"SECOND_NAME"`
	Email           []bitrixMultiField `json:"EMAIL"`
	Phone           []bitrixMultiField `json:"PHONE"`
	Web             []bitrixMultiField `json:"WEB"`
	Address         string             `json:"ADDRESS"`
	Address2        string             `json:"ADDRESS_2"`
	AddressCity     string             `json:"ADDRESS_CITY"`
	AddressRegion   string             `json:"ADDRESS_REGION"`
	AddressProvince string             `json:"ADDRESS_PROVINCE"`
	Comments        string             `json:"COMMENTS"`
	DateCreate      string             `json:"DATE_CREATE"`
	DateModify      string             `json:"DATE_MODIFY"`
	AssignedByID    bitrixID           `json:"ASSIGNED_BY_ID"`
}

type bitrixRequisite struct {
	ID     bitrixID `json:"ID"`
	Name   string   `json:"NAME"`
	RQName string   `json:"RQ_NAME"`
}

type bitrixBankDetail struct {
	ID          bitrixID `json:"ID"`
	Name        string   `json:"NAME"`
	BankName    string   `json:"RQ_BANK_NAME"`
	AccountNum  string   `json:"RQ_ACC_NUM"`
	AccountName string   `json:"RQ_ACC_NAME"`
}

func firstValue(fields []bitrixMultiField) string {
	if len(fields) == 0 {
		return ""
	}
	return fields[0].Value
}

func (b *bitrixContact) toDomain() *domain.Contact {
	contact := &domain.Contact{
		ID:         string(b.ID),
		Name:       b.Name,
		LastName:   b.LastName,
		Email:      firstValue(b.Email),
		Phone:      firstValue(b.Phone),
		Website:    firstValue(b.Web),
		Comments:   b.Comments,
		DateCreate: b.DateCreate,
		DateModify: b.DateModify,
		AssignedBy: string(b.AssignedByID),
	}

	parts := make([]string, 0, 5)
	for _, p := range []string{b.Address, b.Address2, b.AddressCity, b.AddressRegion, b.AddressProvince} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if full := strings.Join(parts, ", "); full != "" {
		contact.Address = &domain.Address{
			Street:   b.Address,
			District: b.Address2,
			City:     b.AddressCity,
			Full:     full,
		}
	}
	return contact
}

func multiField(value string) []map[string]string {
	return []map[string]string{{"VALUE": value, "VALUE_TYPE": multiFieldWork}}
}

// contactFields maps the base contact fields; bank info is never part of it.
// Empty values are skipped so updates only touch what was supplied.
func contactFields(name, lastName, email, phone, website, comments string, addr *AddressInput) map[string]any {
	data := map[string]any{}

	if name != "" {
		data["NAME"] = name
	}
	if lastName != "" {
		data["LAST_NAME"] = lastName
	}
	if comments != "" {
		data["COMMENTS"] = comments
	}
	if email != "" {
		data["EMAIL"] = multiField(email)
	}
	if phone != "" {
		data["PHONE"] = multiField(phone)
	}
	if website != "" {
		data["WEB"] = multiField(website)
	}

	if addr != nil {
		if addr.Street != "" {
			data["ADDRESS"] = addr.Street
		}
		if addr.District != "" {
			data["ADDRESS_2"] = addr.District
		}
		if addr.City != "" {
			data["ADDRESS_CITY"] = addr.City
		}
		if addr.Ward != "" {
			data["ADDRESS_REGION"] = addr.Ward
		}
	}
	return data
}

func (in *CreateContactInput) fields() map[string]any {
	return contactFields(in.Name, in.LastName, in.Email, in.Phone, in.Website, in.Comments, in.Address)
}

func (in *UpdateContactInput) fields() map[string]any {
	return contactFields(in.Name, in.LastName, in.Email, in.Phone, in.Website, in.Comments, in.Address)
}

func requisiteFields(contactID string, bank *BankInfoInput) map[string]any {
	return map[string]any{
		"ENTITY_TYPE_ID": contactEntityTypeID,
		"ENTITY_ID":      contactID,
		"PRESET_ID":      defaultPresetID,
		"NAME":           requisiteTitle,
		"RQ_NAME":        bank.holder(),
	}
}

func bankDetailFields(requisiteID string, bank *BankInfoInput) map[string]any {
	return map[string]any{
		"ENTITY_ID":    requisiteID,
		"NAME":         bankDetailTitle,
		"RQ_BANK_NAME": bank.BankName,
		"RQ_ACC_NUM":   bank.AccountNumber,
		"RQ_ACC_NAME":  bank.holder(),
		"ACTIVE":       "Y",
		"SORT":         100,
	}
}
