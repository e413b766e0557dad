package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/catalog"
	"github.com/mmeshcher/tamagotchi-server/internal/middleware"
	"github.com/mmeshcher/tamagotchi-server/internal/model"
	"github.com/mmeshcher/tamagotchi-server/internal/repository"
	"github.com/mmeshcher/tamagotchi-server/internal/service"
)

const (
	ownerA = "0b6f3a52-8d57-4a8e-9f0a-3c1d2e4f5a6b"
	ownerB = "7c2e9d10-1f4b-4c3a-b5d6-e7f8091a2b3c"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	owner  *middleware.OwnerMiddleware
	svc    *service.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	svc := service.NewService(repository.NewMemoryRepository(), nil, logger)
	owner := middleware.NewOwnerMiddleware("test-secret")
	h := NewHandler(svc, logger, owner, nil)

	return &testServer{t: t, router: h.SetupRouter(), owner: owner, svc: svc}
}

func (s *testServer) ownerCookie(ownerID string) *http.Cookie {
	w := httptest.NewRecorder()
	s.owner.SetOwnerCookie(w, ownerID)
	return w.Result().Cookies()[0]
}

func (s *testServer) do(ownerID, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ownerID != "" {
		req.AddCookie(s.ownerCookie(ownerID))
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createPet(ownerID, name, kind string) model.Pet {
	s.t.Helper()
	rec := s.do(ownerID, http.MethodPost, "/api/pets", createPetRequest{Name: name, Kind: kind})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create pet: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var p model.Pet
	decodeBody(s.t, rec, &p)
	return p
}

func (s *testServer) setCoins(petID string, coins int) {
	s.t.Helper()
	// монеты зарабатываются в мини-игре
	rec := s.do(ownerOf(s, petID), http.MethodPost, "/api/pets/"+petID+"/game", gameResultRequest{Score: 1, CoinsEarned: coins})
	if rec.Code != http.StatusOK {
		s.t.Fatalf("finish game: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func ownerOf(s *testServer, petID string) string {
	p, err := s.svc.GetPet(context.Background(), petID)
	if err != nil {
		s.t.Fatalf("get pet: %v", err)
	}
	return p.OwnerID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, status, rec.Body.String())
	}
	var e errorResponse
	decodeBody(t, rec, &e)
	if e.Error != code {
		t.Fatalf("error code = %q, want %q", e.Error, code)
	}
	if e.Message == "" {
		t.Fatalf("error message must not be empty")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateAndListPets(t *testing.T) {
	s := newTestServer(t)

	p := s.createPet(ownerA, "Rex", "dog")
	if p.OwnerID != ownerA || p.Kind != model.KindDog || p.Health != 100 {
		t.Fatalf("unexpected pet: %+v", p)
	}

	s.createPet(ownerB, "Tom", "cat")

	rec := s.do(ownerA, http.MethodGet, "/api/pets", nil)
	var pets []model.Pet
	decodeBody(t, rec, &pets)
	if len(pets) != 1 || pets[0].ID != p.ID {
		t.Fatalf("owner A must see only own pets, got %+v", pets)
	}
}

func TestListPets_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(ownerA, http.MethodGet, "/api/pets", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty JSON array, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnonymousRequestGetsOwnerCookie(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/api/pets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected owner cookie to be issued")
	}
}

func TestCreatePet_Errors(t *testing.T) {
	s := newTestServer(t)

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets", createPetRequest{Name: "", Kind: "dog"}),
		http.StatusBadRequest, CodeInvalidInput)
	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets", createPetRequest{Name: "Rex", Kind: "dragon"}),
		http.StatusBadRequest, CodeInvalidKind)

	s.createPet(ownerA, "Rex", "dog")
	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets", createPetRequest{Name: "Max", Kind: "dog"}),
		http.StatusConflict, CodeKindTaken)

	s.createPet(ownerA, "Tom", "cat")
	s.createPet(ownerA, "Bobo", "monkey")
	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets", createPetRequest{Name: "Extra", Kind: "cat"}),
		http.StatusConflict, CodePetLimitReached)

	req := httptest.NewRequest(http.MethodPost, "/api/pets", bytes.NewBufferString("{"))
	req.AddCookie(s.ownerCookie(ownerA))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusBadRequest, CodeInvalidInput)
}

func TestForeignPetIsNotFound(t *testing.T) {
	s := newTestServer(t)
	p := s.createPet(ownerA, "Rex", "dog")

	assertError(t, s.do(ownerB, http.MethodGet, "/api/pets/"+p.ID, nil), http.StatusNotFound, CodePetNotFound)
	assertError(t, s.do(ownerB, http.MethodPost, "/api/pets/"+p.ID+"/actions/feed", nil), http.StatusNotFound, CodePetNotFound)
	assertError(t, s.do(ownerB, http.MethodDelete, "/api/pets/"+p.ID, nil), http.StatusNotFound, CodePetNotFound)
	assertError(t, s.do(ownerA, http.MethodGet, "/api/pets/unknown", nil), http.StatusNotFound, CodePetNotFound)

	rec := s.do(ownerA, http.MethodGet, "/api/pets/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner must see own pet, status = %d", rec.Code)
	}
}

func TestApplyAction(t *testing.T) {
	s := newTestServer(t)
	p := s.createPet(ownerA, "Rex", "dog")

	rec := s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/actions/play", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got model.Pet
	decodeBody(t, rec, &got)
	if got.Hunger != 10 || got.Energy != 90 || got.Happiness != 100 {
		t.Fatalf("unexpected state after play: %+v", got)
	}

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/actions/dance", nil),
		http.StatusBadRequest, CodeUnknownAction)
}

func TestFinishGame(t *testing.T) {
	s := newTestServer(t)
	p := s.createPet(ownerA, "Bobo", "monkey")

	rec := s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/game", gameResultRequest{Score: 250, CoinsEarned: 25})
	var got model.Pet
	decodeBody(t, rec, &got)
	if got.Coins != 25 {
		t.Fatalf("coins = %d, want 25", got.Coins)
	}

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/game", gameResultRequest{Score: 1, CoinsEarned: 100000}),
		http.StatusBadRequest, CodeInvalidInput)
}

func TestShopFlow(t *testing.T) {
	s := newTestServer(t)
	p := s.createPet(ownerA, "Bobo", "monkey")

	rec := s.do(ownerA, http.MethodGet, "/api/shop/items", nil)
	var items []catalog.Item
	decodeBody(t, rec, &items)
	if len(items) != 5 {
		t.Fatalf("expected 5 shop items, got %d", len(items))
	}

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/shop/buy", itemRequest{ItemID: "banana_snack"}),
		http.StatusPaymentRequired, CodeNotEnoughCoins)

	s.setCoins(p.ID, 40)

	rec = s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/shop/buy", itemRequest{ItemID: "banana_snack"})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var bought model.Pet
	decodeBody(t, rec, &bought)
	if bought.Coins != 25 {
		t.Fatalf("coins after buy = %d, want 25", bought.Coins)
	}

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/shop/buy", itemRequest{ItemID: "golden_apple"}),
		http.StatusNotFound, CodeItemNotFound)

	rec = s.do(ownerA, http.MethodGet, "/api/pets/"+p.ID+"/inventory", nil)
	var inv []inventoryResponse
	decodeBody(t, rec, &inv)
	if len(inv) != 1 || inv[0].ItemID != "banana_snack" || inv[0].Quantity != 1 || inv[0].Item == nil {
		t.Fatalf("unexpected inventory: %+v", inv)
	}

	rec = s.do(ownerA, http.MethodGet, "/api/pets/"+p.ID+"/purchases?limit=5", nil)
	var hist []purchaseResponse
	decodeBody(t, rec, &hist)
	if len(hist) != 1 || hist[0].Price != 15 {
		t.Fatalf("unexpected history: %+v", hist)
	}

	rec = s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/inventory/use", itemRequest{ItemID: "banana_snack"})
	if rec.Code != http.StatusOK {
		t.Fatalf("use: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var used useItemResponse
	decodeBody(t, rec, &used)
	if used.Remaining != 0 || used.Pet == nil || used.Pet.Energy != 100 {
		t.Fatalf("unexpected use result: %+v", used)
	}

	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/inventory/use", itemRequest{ItemID: "banana_snack"}),
		http.StatusConflict, CodeItemNotInInventory)
	assertError(t, s.do(ownerA, http.MethodPost, "/api/pets/"+p.ID+"/inventory/use", itemRequest{}),
		http.StatusBadRequest, CodeInvalidInput)
	assertError(t, s.do(ownerA, http.MethodGet, "/api/pets/"+p.ID+"/purchases?limit=abc", nil),
		http.StatusBadRequest, CodeInvalidInput)
}

func TestDeletePet(t *testing.T) {
	s := newTestServer(t)
	p := s.createPet(ownerA, "Rex", "dog")

	rec := s.do(ownerA, http.MethodDelete, "/api/pets/"+p.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	assertError(t, s.do(ownerA, http.MethodGet, "/api/pets/"+p.ID, nil), http.StatusNotFound, CodePetNotFound)
}

type failingService struct {
	Service
}

func (failingService) ListPets(ctx context.Context, ownerID string) ([]model.Pet, error) {
	return nil, errors.New("db is down")
}

func TestInternalErrorIsHidden(t *testing.T) {
	owner := middleware.NewOwnerMiddleware("test-secret")
	h := NewHandler(failingService{}, zap.NewNop(), owner, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/pets", nil)
	req = req.WithContext(middleware.WithOwnerID(req.Context(), ownerA))
	rec := httptest.NewRecorder()

	h.ListPets(rec, req)

	assertError(t, rec, http.StatusInternalServerError, CodeInternal)
	if bytes.Contains(rec.Body.Bytes(), []byte("db is down")) {
		t.Fatalf("internal error details must not leak: %s", rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(ownerA, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
