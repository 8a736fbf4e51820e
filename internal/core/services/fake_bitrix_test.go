package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"bitrix24-connector/internal/adapters/persistence/models"
	"bitrix24-connector/internal/adapters/persistence/repositories"
	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/domain"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeBitrix is an in-memory Bitrix24 portal: the OAuth token endpoint plus
// the CRM methods the connector uses.
type fakeBitrix struct {
	server *httptest.Server

	mu          sync.Mutex
	refreshes   int
	exchanges   int
	calls       []string
	validTokens map[string]bool
	always401   bool
	failMethods map[string]string
	tokenSeq    int
	expiresIn   int

	nextID      int
	contacts    map[string]map[string]any
	requisites  map[string]map[string]any
	bankDetails map[string]map[string]any
}

func newFakeBitrix(t *testing.T) *fakeBitrix {
	f := &fakeBitrix{
		validTokens: map[string]bool{},
		failMethods: map[string]string{},
		expiresIn:   3600,
		nextID:      100,
		contacts:    map[string]map[string]any{},
		requisites:  map[string]map[string]any{},
		bankDetails: map[string]map[string]any{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// Domain is the host:port the connector should treat as the portal domain
func (f *fakeBitrix) Domain() string {
	u, _ := url.Parse(f.server.URL)
	return u.Host
}

func (f *fakeBitrix) allowToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validTokens[token] = true
}

func (f *fakeBitrix) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validTokens = map[string]bool{}
}

func (f *fakeBitrix) failMethod(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMethods[method] = description
}

func (f *fakeBitrix) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeBitrix) methodCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeBitrix) contact(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[id]
}

func (f *fakeBitrix) requisiteList() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.requisites))
	for _, id := range sortedKeys(f.requisites) {
		out = append(out, f.requisites[id])
	}
	return out
}

func (f *fakeBitrix) bankDetailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bankDetails)
}

func (f *fakeBitrix) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/oauth/token/":
		f.handleToken(w, r)
	case strings.HasPrefix(r.URL.Path, "/rest/"):
		f.handleRest(w, r, strings.TrimPrefix(r.URL.Path, "/rest/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBitrix) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client", "error_description": "bad client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" || r.PostForm.Get("refresh_token") == "revoked" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "refresh token revoked"})
			return
		}
		f.refreshes++
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "code expired"})
			return
		}
		f.exchanges++
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}

	f.tokenSeq++
	access := fmt.Sprintf("access-%d", f.tokenSeq)
	f.validTokens[access] = true

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": fmt.Sprintf("refresh-%d", f.tokenSeq),
		"expires_in":    f.expiresIn,
		"token_type":    "bearer",
		"scope":         "crm",
		"member_id":     "member-from-server",
	})
}

func (f *fakeBitrix) handleRest(w http.ResponseWriter, r *http.Request, method string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "INVALID_REQUEST", "error_description": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, method)

	token, _ := body["auth"].(string)
	if f.always401 || !f.validTokens[token] {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "expired_token", "error_description": "The access token provided has expired."})
		return
	}

	if desc, ok := f.failMethods[method]; ok {
		writeJSON(w, http.StatusOK, map[string]any{"error": "ERROR_CORE", "error_description": desc})
		return
	}

	result, total, apiErr := f.dispatch(method, body)
	if apiErr != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "NOT_FOUND", "error_description": apiErr})
		return
	}

	resp := map[string]any{"result": result, "time": map[string]any{"start": 0, "finish": 0}}
	if total >= 0 {
		resp["total"] = total
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeBitrix) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeBitrix) dispatch(method string, body map[string]any) (any, int, string) {
	fields, _ := body["fields"].(map[string]any)
	id := fmt.Sprint(body["id"])

	switch method {
	case "app.info":
		return map[string]any{"ID": 1, "CODE": "connector", "INSTALLED": true}, -1, ""

	case "crm.contact.add":
		cid := f.newID()
		record := map[string]any{"ID": cid, "DATE_CREATE": time.Now().Format(time.RFC3339)}
		for k, v := range fields {
			record[k] = v
		}
		f.contacts[cid] = record
		n, _ := strconv.Atoi(cid)
		return n, -1, ""

	case "crm.contact.get":
		c, ok := f.contacts[id]
		if !ok {
			return nil, -1, "Not found"
		}
		return c, -1, ""

	case "crm.contact.update":
		c, ok := f.contacts[id]
		if !ok {
			return nil, -1, "Not found"
		}
		for k, v := range fields {
			c[k] = v
		}
		return true, -1, ""

	case "crm.contact.delete":
		if _, ok := f.contacts[id]; !ok {
			return nil, -1, "Not found"
		}
		delete(f.contacts, id)
		return true, -1, ""

	case "crm.contact.list":
		return f.listContacts(body)

	case "crm.requisite.add":
		rid := f.newID()
		record := map[string]any{"ID": rid}
		for k, v := range fields {
			record[k] = v
		}
		f.requisites[rid] = record
		n, _ := strconv.Atoi(rid)
		return n, -1, ""

	case "crm.requisite.list":
		filter, _ := body["filter"].(map[string]any)
		return f.filterRecords(f.requisites, "ENTITY_ID", fmt.Sprint(filter["ENTITY_ID"])), -1, ""

	case "crm.requisite.update":
		rq, ok := f.requisites[id]
		if !ok {
			return nil, -1, "Not found"
		}
		for k, v := range fields {
			rq[k] = v
		}
		return true, -1, ""

	case "crm.requisite.delete":
		if _, ok := f.requisites[id]; !ok {
			return nil, -1, "Not found"
		}
		delete(f.requisites, id)
		return true, -1, ""

	case "crm.requisite.bankdetail.add":
		bid := f.newID()
		record := map[string]any{"ID": bid}
		for k, v := range fields {
			record[k] = v
		}
		record["ENTITY_ID"] = fmt.Sprint(record["ENTITY_ID"])
		f.bankDetails[bid] = record
		n, _ := strconv.Atoi(bid)
		return n, -1, ""

	case "crm.requisite.bankdetail.list":
		filter, _ := body["filter"].(map[string]any)
		return f.filterRecords(f.bankDetails, "ENTITY_ID", fmt.Sprint(filter["ENTITY_ID"])), -1, ""

	case "crm.requisite.bankdetail.update":
		bd, ok := f.bankDetails[id]
		if !ok {
			return nil, -1, "Not found"
		}
		for k, v := range fields {
			bd[k] = v
		}
		return true, -1, ""
	}

	return nil, -1, "Method not found"
}

func (f *fakeBitrix) filterRecords(records map[string]map[string]any, key, value string) []map[string]any {
	out := []map[string]any{}
	for _, id := range sortedKeys(records) {
		if fmt.Sprint(records[id][key]) == value {
			out = append(out, records[id])
		}
	}
	return out
}

func (f *fakeBitrix) listContacts(body map[string]any) (any, int, string) {
	filter, _ := body["filter"].(map[string]any)
	name, _ := filter["%NAME"].(string)

	matched := []map[string]any{}
	for _, id := range sortedKeys(f.contacts) {
		c := f.contacts[id]
		if name != "" && !strings.Contains(strings.ToLower(fmt.Sprint(c["NAME"])), strings.ToLower(name)) {
			continue
		}
		matched = append(matched, c)
	}

	start := 0
	if v, ok := body["start"].(float64); ok {
		start = int(v)
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + 50
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), ""
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testStack wires the real services against a fake portal and a sqlite store
type testStack struct {
	fake     *fakeBitrix
	repo     repositories.TokenRepository
	tokens   *TokenService
	bitrix   *BitrixService
	contacts *ContactService
	install  *InstallService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "tokens.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	fake := newFakeBitrix(t)
	cfg := config.BitrixConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		Scheme:       "http",
		Timeout:      5 * time.Second,
	}

	repo := repositories.NewTokenRepository(db, filepath.Join(dir, "tokens.json"))
	tokens := NewTokenService(repo, cfg, fake.server.Client())
	bitrix := NewBitrixService(tokens, cfg, fake.server.Client())

	return &testStack{
		fake:     fake,
		repo:     repo,
		tokens:   tokens,
		bitrix:   bitrix,
		contacts: NewContactService(bitrix),
		install:  NewInstallService(tokens, bitrix),
	}
}

// seed stores a credential for the fake portal that the portal accepts
func (s *testStack) seed(t *testing.T, access string, expiresIn int64) {
	t.Helper()

	_, err := s.tokens.SaveDirect(context.Background(), domain.DirectToken{
		AccessToken:  access,
		RefreshToken: "refresh-seed",
		Domain:       s.fake.Domain(),
		MemberID:     "member-1",
		Scope:        "crm",
		ExpiresIn:    expiresIn,
	})
	require.NoError(t, err)
	s.fake.allowToken(access)
}
