package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"slabtrack/internal/config"
	"slabtrack/internal/domain"
	"slabtrack/internal/http/handlers"
	applog "slabtrack/internal/log"
	"slabtrack/internal/psa"
	"slabtrack/internal/repos"
	"slabtrack/internal/services"
)

type fakeGrading struct {
	err error
}

func (f *fakeGrading) GetCertificationByCertNumber(ctx context.Context, cert string) (psa.Certification, error) {
	if f.err != nil {
		return psa.Certification{}, f.err
	}
	return psa.Certification{Cert: psa.Cert{CertNumber: cert, CardGrade: "10", TotalPopulation: 77}}, nil
}

func (f *fakeGrading) GetCertificationWithPopulation(ctx context.Context, cert string) (psa.Certification, error) {
	c, err := f.GetCertificationByCertNumber(ctx, cert)
	if err != nil {
		return c, err
	}
	c.Population = &psa.Population{Grade10: 77, Grade9: 120}
	return c, nil
}

type fakeMarket struct {
	mu       sync.Mutex
	bids     int
	bidErr   error
	exchange []string
}

func (f *fakeMarket) PlaceBid(ctx context.Context, userID, itemID string, maxBid decimal.Decimal) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids++
	if f.bidErr != nil {
		return nil, f.bidErr
	}
	return json.RawMessage(fmt.Sprintf(`{"item":%q,"max":%q}`, itemID, maxBid.StringFixed(2))), nil
}

func (f *fakeMarket) ConsentURL(state string) string {
	return "https://auth.example.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeMarket) Exchange(ctx context.Context, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchange = append(f.exchange, userID+":"+code)
	return nil
}

type testApp struct {
	app     *fiber.App
	grading *fakeGrading
	market  *fakeMarket
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	authSvc := services.NewAuthService(repos.NewUserRepo(db))
	for _, u := range []domain.User{
		{ID: "u-ann", Email: "ann@slabtrack.test", Name: "Ann", Role: domain.RoleCollector},
		{ID: "u-bob", Email: "bob@slabtrack.test", Name: "Bob", Role: domain.RoleCollector},
		{ID: "u-admin", Email: "admin@slabtrack.test", Name: "Admin", Role: domain.RoleAdmin},
	} {
		if err := authSvc.Register(context.Background(), u, "Passw0rd!", bcrypt.MinCost); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}

	ta := &testApp{grading: &fakeGrading{}, market: &fakeMarket{}}
	cfg := config.Config{CertFreshness: time.Hour}
	deps := handlers.NewDeps(db, cfg, authSvc, ta.grading, ta.market)

	ta.app = fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	ta.app.Use(requestid.New())
	deps.Mount(ta.app)
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, sid string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (ta *testApp) login(t *testing.T, email string) string {
	t.Helper()
	resp := ta.do(t, "POST", "/login", "", map[string]string{"email": email, "password": "Passw0rd!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			return c.Value
		}
	}
	t.Fatal("sid cookie missing")
	return ""
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestLoginAndSessionGuard(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.do(t, "POST", "/login", "", map[string]string{"email": "ann@slabtrack.test", "password": "Wr0ngPass!"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 for bad password, got %d", resp.StatusCode)
	}
	if resp := ta.do(t, "GET", "/api/v1/snipes", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without session, got %d", resp.StatusCode)
	}

	sid := ta.login(t, "ann@slabtrack.test")
	resp = ta.do(t, "GET", "/api/v1/snipes", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if list := decode[[]domain.Snipe](t, resp); len(list) != 0 {
		t.Fatalf("want empty list, got %d", len(list))
	}

	if resp := ta.do(t, "POST", "/logout", sid, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	if resp := ta.do(t, "GET", "/api/v1/snipes", sid, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("session should be gone after logout, got %d", resp.StatusCode)
	}
}

func TestSnipeLifecycle(t *testing.T) {
	ta := newTestApp(t)
	sid := ta.login(t, "ann@slabtrack.test")

	resp := ta.do(t, "POST", "/api/v1/snipes", sid, map[string]any{"itemId": "110551234567", "maxBid": 50, "title": "Base Set Charizard"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	sn := decode[domain.Snipe](t, resp)
	if sn.Status != domain.SnipePending || sn.UserID != "u-ann" || !sn.MaxBid.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected snipe: %+v", sn)
	}

	resp = ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/bid", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bid: %d", resp.StatusCode)
	}
	placed := decode[domain.Snipe](t, resp)
	if placed.Status != domain.SnipeCompleted || placed.BidPlacedAt == nil {
		t.Fatalf("unexpected bid result: %+v", placed)
	}
	if !strings.Contains(string(placed.BidResponse), `"50.00"`) {
		t.Fatalf("bid response not stored: %s", placed.BidResponse)
	}

	if resp := ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/bid", sid, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second bid should conflict, got %d", resp.StatusCode)
	}
	if resp := ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/cancel", sid, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel after bid should conflict, got %d", resp.StatusCode)
	}
	if ta.market.bids != 1 {
		t.Fatalf("want exactly one marketplace bid, got %d", ta.market.bids)
	}
}

func TestSnipeBidFailureRecorded(t *testing.T) {
	ta := newTestApp(t)
	ta.market.bidErr = errors.New("rate limited")
	sid := ta.login(t, "ann@slabtrack.test")

	sn := decode[domain.Snipe](t, ta.do(t, "POST", "/api/v1/snipes", sid, map[string]any{"itemId": "110551234567", "maxBid": "19.99"}))
	resp := ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/bid", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bid: %d", resp.StatusCode)
	}
	got := decode[domain.Snipe](t, resp)
	if got.Status != domain.SnipeError || got.ErrorMessage != "rate limited" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCreateSnipeValidation(t *testing.T) {
	ta := newTestApp(t)
	sid := ta.login(t, "ann@slabtrack.test")

	cases := []map[string]any{
		{"itemId": "not-an-item", "maxBid": 10},
		{"itemId": "110551234567", "maxBid": 0},
		{"itemId": "110551234567", "maxBid": "10.001"},
		{"itemId": "110551234567", "maxBid": 10, "scheduledFor": "tomorrow"},
	}
	for _, body := range cases {
		if resp := ta.do(t, "POST", "/api/v1/snipes", sid, body); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%v: want 400, got %d", body, resp.StatusCode)
		}
	}

	resp := ta.do(t, "POST", "/api/v1/snipes", sid, map[string]any{
		"itemId": "110551234567", "maxBid": 10, "scheduledFor": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("scheduled create: %d", resp.StatusCode)
	}
	if sn := decode[domain.Snipe](t, resp); sn.Status != domain.SnipeQueued {
		t.Fatalf("want queued, got %s", sn.Status)
	}
}

func TestSnipeOwnership(t *testing.T) {
	ta := newTestApp(t)
	ann := ta.login(t, "ann@slabtrack.test")
	bob := ta.login(t, "bob@slabtrack.test")

	sn := decode[domain.Snipe](t, ta.do(t, "POST", "/api/v1/snipes", ann, map[string]any{"itemId": "110551234567", "maxBid": 5}))

	if resp := ta.do(t, "GET", "/api/v1/snipes/"+sn.ID, bob, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other collector should not see snipe, got %d", resp.StatusCode)
	}
	if resp := ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/bid", bob, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other collector should not bid, got %d", resp.StatusCode)
	}
	if ta.market.bids != 0 {
		t.Fatal("marketplace must not be called for a foreign snipe")
	}
	if resp := ta.do(t, "GET", "/api/v1/snipes/"+sn.ID, ann, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read: %d", resp.StatusCode)
	}
}

func TestAdminResolve(t *testing.T) {
	ta := newTestApp(t)
	ann := ta.login(t, "ann@slabtrack.test")
	admin := ta.login(t, "admin@slabtrack.test")

	sn := decode[domain.Snipe](t, ta.do(t, "POST", "/api/v1/snipes", ann, map[string]any{"itemId": "110551234567", "maxBid": 5}))
	path := "/api/v1/admin/snipes/" + sn.ID + "/resolve"

	if resp := ta.do(t, "POST", path, ann, map[string]string{"outcome": "won"}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("collector resolve: want 403, got %d", resp.StatusCode)
	}
	if resp := ta.do(t, "POST", path, admin, map[string]string{"outcome": "won"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("resolving a pending snipe: want 409, got %d", resp.StatusCode)
	}
	ta.do(t, "POST", "/api/v1/snipes/"+sn.ID+"/bid", ann, nil)
	if resp := ta.do(t, "POST", path, admin, map[string]string{"outcome": "maybe"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad outcome: want 400, got %d", resp.StatusCode)
	}
	resp := ta.do(t, "POST", path, admin, map[string]string{"outcome": "won"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d", resp.StatusCode)
	}
	if got := decode[domain.Snipe](t, resp); got.Status != domain.SnipeWon {
		t.Fatalf("want won, got %s", got.Status)
	}
}

func TestCertEndpoint(t *testing.T) {
	ta := newTestApp(t)

	if resp := ta.do(t, "GET", "/api/v1/certs/abc", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cert: want 400, got %d", resp.StatusCode)
	}

	resp := ta.do(t, "GET", "/api/v1/certs/12345678?population=true", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cert: %d", resp.StatusCode)
	}
	rec := decode[domain.CertificationRecord](t, resp)
	if rec.CertNumber != "12345678" || rec.PSA10Count != 77 || rec.PSA9Count != 120 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	ta.grading.err = fmt.Errorf("%w: psa down", domain.ErrUpstream)
	resp = ta.do(t, "GET", "/api/v1/certs/99999999", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("no record and upstream down: want 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "psa down") {
		t.Fatalf("upstream detail leaked: %s", body)
	}

	ta.grading.err = fmt.Errorf("psa 55555555: %w", domain.ErrNotFound)
	if resp := ta.do(t, "GET", "/api/v1/certs/55555555", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown cert: want 404, got %d", resp.StatusCode)
	}
}

func TestExportWorkbook(t *testing.T) {
	ta := newTestApp(t)
	sid := ta.login(t, "ann@slabtrack.test")
	ta.do(t, "POST", "/api/v1/snipes", sid, map[string]any{"itemId": "110551234567", "maxBid": 5})

	resp := ta.do(t, "GET", "/api/v1/snipes/export.xlsx", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("PK")) {
		t.Fatal("workbook is not a zip container")
	}
}

func TestEbayConnectCallback(t *testing.T) {
	ta := newTestApp(t)
	sid := ta.login(t, "ann@slabtrack.test")

	resp := ta.do(t, "GET", "/api/v1/ebay/connect", sid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect: %d", resp.StatusCode)
	}
	var state string
	for _, c := range resp.Cookies() {
		if c.Name == "ebay_state" {
			state = c.Value
		}
	}
	if state == "" {
		t.Fatal("state cookie missing")
	}
	out := decode[map[string]string](t, resp)
	if !strings.Contains(out["url"], url.QueryEscape(state)) {
		t.Fatalf("consent url does not carry state: %s", out["url"])
	}

	callback := func(q string) *http.Response {
		req := httptest.NewRequest("GET", "/api/v1/ebay/callback?"+q, nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		req.AddCookie(&http.Cookie{Name: "ebay_state", Value: state})
		r, err := ta.app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	if r := callback("code=abc&state=forged"); r.StatusCode != http.StatusBadRequest {
		t.Fatalf("forged state: want 400, got %d", r.StatusCode)
	}
	if r := callback("code=abc&state=" + url.QueryEscape(state)); r.StatusCode != http.StatusOK {
		t.Fatalf("callback: %d", r.StatusCode)
	}
	if len(ta.market.exchange) != 1 || ta.market.exchange[0] != "u-ann:abc" {
		t.Fatalf("unexpected exchanges: %v", ta.market.exchange)
	}
}

func TestErrorHandlerHidesInternals(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	app.Get("/err", func(c *fiber.Ctx) error {
		return errors.New("db timeout: secret trace")
	})

	var logs bytes.Buffer
	old := applog.SetOutput(&logs)
	defer applog.SetOutput(old)

	resp, err := app.Test(httptest.NewRequest("GET", "/err", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "secret") {
		t.Fatalf("internal details leaked: %s", body)
	}
	if !strings.Contains(logs.String(), "db timeout") || !strings.Contains(logs.String(), `"action":"server.error"`) {
		t.Fatalf("error not logged: %s", logs.String())
	}
}

func TestLoginFailureIsSecurityLogged(t *testing.T) {
	ta := newTestApp(t)
	var logs bytes.Buffer
	old := applog.SetOutput(&logs)
	defer applog.SetOutput(old)

	ta.do(t, "POST", "/login", "", map[string]string{"email": "ann@slabtrack.test", "password": "Wr0ngPass!"})

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var e struct {
			Action string `json:"action"`
			Kind   string `json:"kind"`
		}
		if json.Unmarshal([]byte(line), &e) == nil && e.Action == "auth.login.fail" && e.Kind == "security" {
			found = true
		}
	}
	if !found {
		t.Fatalf("auth.login.fail not logged: %s", logs.String())
	}
}

func TestLoginThrottle(t *testing.T) {
	ta := newTestApp(t)
	for i := 0; i < 6; i++ {
		resp := ta.do(t, "POST", "/login", "", map[string]string{"email": "ann@slabtrack.test", "password": "Wr0ngPass!"})
		if i < 5 && resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: want 401, got %d", i, resp.StatusCode)
		}
		if i == 5 && resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429 after limit, got %d", resp.StatusCode)
		}
	}
}

func TestLoginIssuesFreshSession(t *testing.T) {
	ta := newTestApp(t)
	const planted = "planted-session-id"

	resp := ta.do(t, "POST", "/login", planted, map[string]string{"email": "ann@slabtrack.test", "password": "Passw0rd!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d", resp.StatusCode)
	}
	var sid string
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			sid = c.Value
		}
	}
	if sid == "" || sid == planted {
		t.Fatalf("login must issue a new session id, got %q", sid)
	}
	if resp := ta.do(t, "GET", "/api/v1/snipes", planted, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("pre-login session id must stay anonymous, got %d", resp.StatusCode)
	}
	if resp := ta.do(t, "GET", "/api/v1/snipes", sid, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("new session should be authenticated, got %d", resp.StatusCode)
	}
}
