package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpn-backend/internal/db"
)

// fakeCertAPI имитирует API сертификатов нод: учитывает выпуски и
// отзывы, позволяет пометить ноду нездоровой или сломанной.
type fakeCertAPI struct {
	mu         sync.Mutex
	unhealthy  map[string]bool
	failIssue  map[string]bool
	failRevoke map[string]bool
	issued     []string
	revoked    []string
}

func newFakeCertAPI() *fakeCertAPI {
	return &fakeCertAPI{
		unhealthy:  make(map[string]bool),
		failIssue:  make(map[string]bool),
		failRevoke: make(map[string]bool),
	}
}

func (f *fakeCertAPI) Issue(ctx context.Context, addr, name string) (*IssuedCert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIssue[addr] {
		return nil, fmt.Errorf("node %s: issue failed", addr)
	}
	f.issued = append(f.issued, addr+":"+name)
	return &IssuedCert{
		Name:        name,
		DownloadURL: "https://" + addr + "/downloads/" + name + ".ovpn",
	}, nil
}

func (f *fakeCertAPI) Revoke(ctx context.Context, addr, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevoke[addr] {
		return fmt.Errorf("node %s: revoke failed", addr)
	}
	f.revoked = append(f.revoked, addr+":"+name)
	return nil
}

func (f *fakeCertAPI) Health(ctx context.Context, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unhealthy[addr] {
		return fmt.Errorf("node %s: unhealthy", addr)
	}
	return nil
}

func (f *fakeCertAPI) issuedOn(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.issued {
		if strings.HasPrefix(rec, addr+":") {
			n++
		}
	}
	return n
}

func (f *fakeCertAPI) revokedOn(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.revoked {
		if strings.HasPrefix(rec, addr+":") {
			n++
		}
	}
	return n
}

// fakeGateway выдает детерминированные id операций.
type fakeGateway struct {
	mu      sync.Mutex
	counter int
	fail    bool
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amount int, description string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", "", fmt.Errorf("gateway down")
	}
	f.counter++
	op := fmt.Sprintf("op-%d", f.counter)
	return op, "https://pay.example.com/" + op, nil
}

// fakeNotifier копит опубликованные события.
type fakeNotifier struct {
	mu       sync.Mutex
	expiring []Event
	expired  []Event
}

func (f *fakeNotifier) SubscriptionExpiring(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiring = append(f.expiring, ev)
	return nil
}

func (f *fakeNotifier) SubscriptionExpired(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, ev)
	return nil
}

type testEnv struct {
	repo       *db.Repository
	certs      *fakeCertAPI
	gateway    *fakeGateway
	notifier   *fakeNotifier
	orch       *SubscriptionOrchestrator
	reconciler *PaymentReconciler
	bonuses    *ReferralBonusEngine
	users      *UserService

	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := db.NewRepository(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate())

	certs := newFakeCertAPI()
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}

	selector := NewNodeSelector(repo, certs)
	provisioner := NewCertificateProvisioner(repo, repo, certs)
	orch := NewSubscriptionOrchestrator(repo, selector, provisioner, gateway, notifier)
	bonuses := NewReferralBonusEngine(repo)
	reconciler := NewPaymentReconciler(repo, repo, orch, bonuses)

	env := &testEnv{
		repo:       repo,
		certs:      certs,
		gateway:    gateway,
		notifier:   notifier,
		orch:       orch,
		reconciler: reconciler,
		bonuses:    bonuses,
		users:      NewUserService(repo),
		now:        time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	orch.now = func() time.Time { return env.now }

	return env
}

func (e *testEnv) seedRegion(t *testing.T, code, name string) *db.Region {
	t.Helper()
	region := db.Region{Code: code, Name: name}
	require.NoError(t, e.repo.DB().Create(&region).Error)
	return &region
}

func (e *testEnv) seedServer(t *testing.T, regionID uint, addr string, protocol db.Protocol, maxCerts int) *db.Server {
	t.Helper()
	server := db.Server{
		Address:  addr,
		Protocol: protocol,
		Active:   true,
		MaxCerts: maxCerts,
		RegionID: regionID,
	}
	require.NoError(t, e.repo.DB().Create(&server).Error)
	return &server
}

func (e *testEnv) seedUser(t *testing.T, tgID int64, referrerID *uint) *db.User {
	t.Helper()
	user := db.User{TgID: tgID, ReferrerID: referrerID}
	require.NoError(t, e.repo.DB().Create(&user).Error)
	return &user
}

func (e *testEnv) seedPrice(t *testing.T, subType db.SubscriptionType, duration db.Duration, amount int) {
	t.Helper()
	require.NoError(t, e.repo.DB().Create(&db.Price{
		Type:     subType,
		Duration: duration,
		Amount:   amount,
	}).Error)
}

func (e *testEnv) serverByID(t *testing.T, id uint) *db.Server {
	t.Helper()
	server, err := e.repo.ServerByID(id)
	require.NoError(t, err)
	require.NotNil(t, server)
	return server
}

func (e *testEnv) subscriptionByID(t *testing.T, id uint) *db.Subscription {
	t.Helper()
	sub, err := e.repo.SubscriptionByID(id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}
