package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpn-backend/internal/db"
	"vpn-backend/internal/service"
)

type stubCertAPI struct{}

func (stubCertAPI) Issue(ctx context.Context, addr, name string) (*service.IssuedCert, error) {
	return &service.IssuedCert{
		Name:        name,
		DownloadURL: "https://" + addr + "/downloads/" + name + ".ovpn",
	}, nil
}

func (stubCertAPI) Revoke(ctx context.Context, addr, name string) error { return nil }

func (stubCertAPI) Health(ctx context.Context, addr string) error { return nil }

type stubGateway struct {
	mu      sync.Mutex
	counter int
}

func (g *stubGateway) CreateIntent(ctx context.Context, amount int, description string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	op := fmt.Sprintf("op-%d", g.counter)
	return op, "https://pay.example.com/" + op, nil
}

type stubNotifier struct{}

func (stubNotifier) SubscriptionExpiring(ctx context.Context, ev service.Event) error { return nil }

func (stubNotifier) SubscriptionExpired(ctx context.Context, ev service.Event) error { return nil }

func setupTestRouter(t *testing.T) (*gin.Engine, *db.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := db.NewRepository(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate())
	require.NoError(t, repo.SeedPrices())

	certs := stubCertAPI{}
	selector := service.NewNodeSelector(repo, certs)
	provisioner := service.NewCertificateProvisioner(repo, repo, certs)
	orch := service.NewSubscriptionOrchestrator(repo, selector, provisioner, &stubGateway{}, stubNotifier{})
	bonuses := service.NewReferralBonusEngine(repo)
	reconciler := service.NewPaymentReconciler(repo, repo, orch, bonuses)
	users := service.NewUserService(repo)

	router := gin.New()
	NewHandler(users, orch, reconciler, bonuses, repo, repo).Register(router)
	return router, repo
}

func seedTestData(t *testing.T, repo *db.Repository) {
	t.Helper()

	region := db.Region{Code: "EU", Name: "Europe"}
	require.NoError(t, repo.DB().Create(&region).Error)
	require.NoError(t, repo.DB().Create(&db.Server{
		Address:  "eu1.vpn.example.com",
		Protocol: db.ProtocolOpenVPN,
		Active:   true,
		MaxCerts: 10,
		RegionID: region.ID,
	}).Error)
	require.NoError(t, repo.DB().Create(&db.User{TgID: 100}).Error)
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTrialEndpoint(t *testing.T) {
	router, repo := setupTestRouter(t)
	seedTestData(t, repo)

	rec := doJSON(router, http.MethodPost, "/subscriptions", gin.H{
		"tg_id":       100,
		"type":        "trial",
		"region_code": "EU",
		"protocol":    "openvpn",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp subscriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, db.TypeTrial, resp.Type)
	assert.Len(t, resp.Certificates, 1)

	// Второй пробный период отклоняется
	rec = doJSON(router, http.MethodPost, "/subscriptions", gin.H{
		"tg_id":       100,
		"type":        "trial",
		"region_code": "EU",
		"protocol":    "openvpn",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePaidReturnsPaymentURL(t *testing.T) {
	router, repo := setupTestRouter(t)
	seedTestData(t, repo)

	rec := doJSON(router, http.MethodPost, "/subscriptions", gin.H{
		"tg_id":       100,
		"type":        "4_devices",
		"duration":    "1_month",
		"region_code": "EU",
		"protocol":    "openvpn",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer service.PaymentAnswer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, 450, answer.Amount)
	assert.NotEmpty(t, answer.URL)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	router, repo := setupTestRouter(t)
	seedTestData(t, repo)

	tests := []struct {
		name string
		body gin.H
	}{
		{
			name: "missing tg_id",
			body: gin.H{"type": "trial", "region_code": "EU", "protocol": "openvpn"},
		},
		{
			name: "unknown type",
			body: gin.H{"tg_id": 100, "type": "99_devices", "region_code": "EU", "protocol": "openvpn"},
		},
		{
			name: "unknown protocol",
			body: gin.H{"tg_id": 100, "type": "trial", "region_code": "EU", "protocol": "pptp"},
		},
		{
			name: "bad region code",
			body: gin.H{"tg_id": 100, "type": "trial", "region_code": "EURO", "protocol": "openvpn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPost, "/subscriptions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUpdateSubscriptionValidation(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{
			name: "bad region code",
			body: gin.H{"tg_id": 100, "sub_id": 1, "duration": "1_month", "region_code": "EURO"},
		},
		{
			name: "unknown duration",
			body: gin.H{"tg_id": 100, "sub_id": 1, "duration": "2_weeks"},
		},
		{
			name: "unknown type",
			body: gin.H{"tg_id": 100, "sub_id": 1, "duration": "1_month", "type": "99_devices"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPatch, "/subscriptions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWebhookUnknownOperationAcknowledged(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/subscriptions/answer", gin.H{
		"type":   "notification",
		"event":  "payment.succeeded",
		"object": gin.H{"id": "op-unknown", "status": "succeeded"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
}

func TestPriceList(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/subscriptions/price", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var prices []priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prices))
	assert.Len(t, prices, 6)
}

func TestSweepEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/subscriptions/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report service.SweepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.Deactivated)
}

func TestReferralSummaryEndpoint(t *testing.T) {
	router, repo := setupTestRouter(t)
	seedTestData(t, repo)

	rec := doJSON(router, http.MethodGet, "/referral/100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary service.BonusSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Zero(t, summary.Count)

	rec = doJSON(router, http.MethodGet, "/referral/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUserEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/users", gin.H{"tg_id": 300})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(300), resp.TgID)
}
