package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"bitrix24-connector/internal/core/domain"
	"bitrix24-connector/internal/pkg/pagination"

	"github.com/rs/zerolog/log"
)

// RemoteCaller issues one REST call for a portal
type RemoteCaller interface {
	Call(ctx context.Context, portal, method string, payload map[string]any) (*APIResponse, error)
}

// ContactService composes contact, requisite and bank detail calls
type ContactService struct {
	remote RemoteCaller
}

// NewContactService creates a new contact service
func NewContactService(remote RemoteCaller) *ContactService {
	return &ContactService{remote: remote}
}

// List returns one page of contacts
func (s *ContactService) List(ctx context.Context, portal string, q ContactQuery) (*domain.ContactList, error) {
	filter := map[string]any{}
	if q.Search != "" {
		filter["%NAME"] = q.Search
	}
	if q.Email != "" {
		filter["%EMAIL"] = q.Email
	}
	if q.Phone != "" {
		filter["%PHONE"] = q.Phone
	}

	resp, err := s.remote.Call(ctx, portal, "crm.contact.list", map[string]any{
		"start":  pagination.Start(q.Page, q.Limit),
		"order":  map[string]string{q.OrderBy: q.Order},
		"filter": filter,
		"select": contactSelect,
	})
	if err != nil {
		return nil, err
	}

	var rows []bitrixContact
	if err := resp.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode contact list: %w", err)
	}
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	contacts := make([]*domain.Contact, 0, len(rows))
	for i := range rows {
		contacts = append(contacts, rows[i].toDomain())
	}

	total := resp.Total
	if total < len(contacts) {
		total = len(contacts)
	}

	return &domain.ContactList{
		Contacts:   contacts,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: pagination.TotalPages(total, q.Limit),
	}, nil
}

// Get returns a contact with its bank info when one is linked
func (s *ContactService) Get(ctx context.Context, portal, id string) (*domain.Contact, error) {
	raw, err := s.fetch(ctx, portal, id)
	if err != nil {
		return nil, err
	}

	contact := raw.toDomain()

	bank := s.readBankInfo(ctx, portal, id)
	logNonFatal(bank, portal, id)
	if !bank.Failed() && bank.Value != nil {
		contact.BankInfo = bank.Value
	}
	return contact, nil
}

// Create adds the contact, then its bank info, and returns the stored contact
func (s *ContactService) Create(ctx context.Context, portal string, in *CreateContactInput) (*CreateContactResult, error) {
	resp, err := s.remote.Call(ctx, portal, "crm.contact.add", map[string]any{
		"fields": in.fields(),
	})
	if err != nil {
		return nil, err
	}

	var id bitrixID
	if err := resp.Decode(&id); err != nil || id == "" {
		return nil, fmt.Errorf("crm.contact.add returned no contact id")
	}
	contactID := string(id)

	log.Info().Str("domain", portal).Str("contact_id", contactID).Msg("Contact created")

	if in.BankInfo != nil {
		logNonFatal(s.createBankInfo(ctx, portal, contactID, in.BankInfo), portal, contactID)
	}

	contact, err := s.Get(ctx, portal, contactID)
	if err != nil {
		return nil, err
	}
	return &CreateContactResult{ID: contactID, Contact: contact}, nil
}

// Update applies supplied base fields and bank info, then refetches
func (s *ContactService) Update(ctx context.Context, portal, id string, in *UpdateContactInput) (*domain.Contact, error) {
	if _, err := s.fetch(ctx, portal, id); err != nil {
		return nil, err
	}

	if fields := in.fields(); len(fields) > 0 {
		_, err := s.remote.Call(ctx, portal, "crm.contact.update", map[string]any{
			"id":     id,
			"fields": fields,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("domain", portal).Str("contact_id", id).Msg("Contact updated")
	}

	if in.BankInfo != nil {
		logNonFatal(s.updateBankInfo(ctx, portal, id, in.BankInfo), portal, id)
	}

	return s.Get(ctx, portal, id)
}

// Delete removes every linked requisite, then the contact
func (s *ContactService) Delete(ctx context.Context, portal, id string) error {
	if _, err := s.fetch(ctx, portal, id); err != nil {
		return err
	}

	logNonFatal(s.deleteRequisites(ctx, portal, id), portal, id)

	if _, err := s.remote.Call(ctx, portal, "crm.contact.delete", map[string]any{"id": id}); err != nil {
		if isRemoteNotFound(err) {
			return domain.ErrContactNotFound
		}
		return err
	}

	log.Info().Str("domain", portal).Str("contact_id", id).Msg("Contact deleted")
	return nil
}

func (s *ContactService) fetch(ctx context.Context, portal, id string) (*bitrixContact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ValidationError("contact id is required")
	}

	resp, err := s.remote.Call(ctx, portal, "crm.contact.get", map[string]any{"id": id})
	if err != nil {
		if isRemoteNotFound(err) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}

	if isEmptyResult(resp.Result) {
		return nil, domain.ErrContactNotFound
	}

	var raw bitrixContact
	if err := resp.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode contact %s: %w", id, err)
	}
	if raw.ID == "" {
		return nil, domain.ErrContactNotFound
	}
	return &raw, nil
}

func (s *ContactService) listRequisites(ctx context.Context, portal, contactID string) ([]bitrixRequisite, error) {
	resp, err := s.remote.Call(ctx, portal, "crm.requisite.list", map[string]any{
		"filter": map[string]any{
			"ENTITY_TYPE_ID": contactEntityTypeID,
			"ENTITY_ID":      contactID,
		},
		"select": []string{"ID", "NAME", "RQ_NAME"},
	})
	if err != nil {
		return nil, err
	}

	var requisites []bitrixRequisite
	if err := resp.Decode(&requisites); err != nil {
		return nil, err
	}
	return requisites, nil
}

func (s *ContactService) listBankDetails(ctx context.Context, portal, requisiteID string) ([]bitrixBankDetail, error) {
	resp, err := s.remote.Call(ctx, portal, "crm.requisite.bankdetail.list", map[string]any{
		"filter": map[string]any{"ENTITY_ID": requisiteID},
		"select": []string{"ID", "NAME", "RQ_BANK_NAME", "RQ_ACC_NUM", "RQ_ACC_NAME"},
	})
	if err != nil {
		return nil, err
	}

	var details []bitrixBankDetail
	if err := resp.Decode(&details); err != nil {
		return nil, err
	}
	return details, nil
}

// readBankInfo looks up the first requisite and its first bank detail.
// A nil value with no error means the contact has no bank info.
func (s *ContactService) readBankInfo(ctx context.Context, portal, contactID string) domain.Result[*domain.BankInfo] {
	const step = "read bank info"

	requisites, err := s.listRequisites(ctx, portal, contactID)
	if err != nil {
		return domain.Fail[*domain.BankInfo](step, err)
	}
	if len(requisites) == 0 {
		return domain.Ok[*domain.BankInfo](step, nil)
	}

	requisite := requisites[0]
	details, err := s.listBankDetails(ctx, portal, string(requisite.ID))
	if err != nil {
		return domain.Fail[*domain.BankInfo](step, err)
	}
	if len(details) == 0 {
		return domain.Ok[*domain.BankInfo](step, nil)
	}

	detail := details[0]
	holder := detail.AccountName
	if holder == "" {
		holder = requisite.RQName
	}
	return domain.Ok(step, &domain.BankInfo{
		BankName:      detail.BankName,
		AccountNumber: detail.AccountNum,
		AccountHolder: holder,
	})
}

// createBankInfo adds a requisite and a bank detail linked to it; the value is the requisite id
func (s *ContactService) createBankInfo(ctx context.Context, portal, contactID string, bank *BankInfoInput) domain.Result[string] {
	const step = "create bank info"

	resp, err := s.remote.Call(ctx, portal, "crm.requisite.add", map[string]any{
		"fields": requisiteFields(contactID, bank),
	})
	if err != nil {
		return domain.Fail[string](step, err)
	}

	var requisiteID bitrixID
	if err := resp.Decode(&requisiteID); err != nil || requisiteID == "" {
		return domain.Fail[string](step, errors.New("crm.requisite.add returned no requisite id"))
	}

	if _, err := s.remote.Call(ctx, portal, "crm.requisite.bankdetail.add", map[string]any{
		"fields": bankDetailFields(string(requisiteID), bank),
	}); err != nil {
		return domain.Fail[string](step, fmt.Errorf("requisite %s created but bank detail failed: %w", requisiteID, err))
	}

	log.Info().Str("domain", portal).Str("contact_id", contactID).Str("requisite_id", string(requisiteID)).Msg("Bank info added")
	return domain.Ok(step, string(requisiteID))
}

// updateBankInfo updates the first requisite in place, creating one when none exists
func (s *ContactService) updateBankInfo(ctx context.Context, portal, contactID string, bank *BankInfoInput) domain.Result[string] {
	const step = "update bank info"

	requisites, err := s.listRequisites(ctx, portal, contactID)
	if err != nil {
		return domain.Fail[string](step, err)
	}
	if len(requisites) == 0 {
		return s.createBankInfo(ctx, portal, contactID, bank)
	}

	requisiteID := string(requisites[0].ID)
	if _, err := s.remote.Call(ctx, portal, "crm.requisite.update", map[string]any{
		"id":     requisiteID,
		"fields": map[string]any{"RQ_NAME": bank.holder()},
	}); err != nil {
		return domain.Fail[string](step, err)
	}

	details, err := s.listBankDetails(ctx, portal, requisiteID)
	if err != nil {
		return domain.Fail[string](step, err)
	}

	if len(details) == 0 {
		_, err = s.remote.Call(ctx, portal, "crm.requisite.bankdetail.add", map[string]any{
			"fields": bankDetailFields(requisiteID, bank),
		})
	} else {
		_, err = s.remote.Call(ctx, portal, "crm.requisite.bankdetail.update", map[string]any{
			"id": string(details[0].ID),
			"fields": map[string]any{
				"RQ_BANK_NAME": bank.BankName,
				"RQ_ACC_NUM":   bank.AccountNumber,
				"RQ_ACC_NAME":  bank.holder(),
			},
		})
	}
	if err != nil {
		return domain.Fail[string](step, err)
	}

	log.Info().Str("domain", portal).Str("contact_id", contactID).Str("requisite_id", requisiteID).Msg("Bank info updated")
	return domain.Ok(step, requisiteID)
}

// deleteRequisites removes every requisite linked to the contact; the value is the number removed
func (s *ContactService) deleteRequisites(ctx context.Context, portal, contactID string) domain.Result[int] {
	const step = "delete bank info"

	requisites, err := s.listRequisites(ctx, portal, contactID)
	if err != nil {
		return domain.Fail[int](step, err)
	}

	deleted := 0
	var errs []error
	for _, rq := range requisites {
		if _, err := s.remote.Call(ctx, portal, "crm.requisite.delete", map[string]any{"id": string(rq.ID)}); err != nil {
			errs = append(errs, fmt.Errorf("requisite %s: %w", rq.ID, err))
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return domain.Result[int]{Step: step, Value: deleted, Err: errors.Join(errs...)}
	}
	return domain.Ok(step, deleted)
}

// logNonFatal reports a failed best-effort step without failing the caller
func logNonFatal[T any](r domain.Result[T], portal, contactID string) {
	if !r.Failed() {
		return
	}
	log.Warn().Err(r.Err).Str("domain", portal).Str("contact_id", contactID).Str("step", r.Step).Msg("Non-fatal step failed")
}

func isRemoteNotFound(err error) bool {
	var apiErr *domain.RemoteAPIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.EqualFold(apiErr.Code, "NOT_FOUND") ||
		strings.Contains(strings.ToLower(apiErr.Description), "not found")
}

func isEmptyResult(raw []byte) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "[]", "{}":
		return true
	}
	return false
}
