// Package handler содержит HTTP-обработчики API сервиса виртуальных питомцев.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/catalog"
	"github.com/mmeshcher/tamagotchi-server/internal/middleware"
	"github.com/mmeshcher/tamagotchi-server/internal/model"
	"github.com/mmeshcher/tamagotchi-server/internal/repository"
	"github.com/mmeshcher/tamagotchi-server/internal/service"
)

// Коды ошибок API.
const (
	CodePetNotFound        = "PET_NOT_FOUND"
	CodeItemNotFound       = "ITEM_NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidKind        = "INVALID_KIND"
	CodeUnknownAction      = "UNKNOWN_ACTION"
	CodeNotEnoughCoins     = "NOT_ENOUGH_COINS"
	CodeItemNotInInventory = "ITEM_NOT_IN_INVENTORY"
	CodePetLimitReached    = "PET_LIMIT_REACHED"
	CodeKindTaken          = "KIND_TAKEN"
	CodeInternal           = "INTERNAL_ERROR"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreatePet(ctx context.Context, ownerID, name, kind string) (*model.Pet, error)
	ListPets(ctx context.Context, ownerID string) ([]model.Pet, error)
	GetPet(ctx context.Context, petID string) (*model.Pet, error)
	ApplyAction(ctx context.Context, petID, action string) (*model.Pet, error)
	FinishGame(ctx context.Context, petID string, score, coinsEarned int) (*model.Pet, error)
	DeletePet(ctx context.Context, petID string) error
	Items() []catalog.Item
	Buy(ctx context.Context, petID, itemID string) (*model.Pet, error)
	UseItem(ctx context.Context, petID, itemID string) (*model.Pet, int, error)
	GetInventory(ctx context.Context, petID string) ([]service.InventoryItem, error)
	GetPurchaseHistory(ctx context.Context, petID string, limit int) ([]model.PurchaseRecord, error)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service         Service
	logger          *zap.Logger
	ownerMiddleware *middleware.OwnerMiddleware
	ws              http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// ws обслуживает WebSocket-подключения и может быть nil.
func NewHandler(s Service, logger *zap.Logger, owner *middleware.OwnerMiddleware, ws http.Handler) *Handler {
	return &Handler{
		service:         s,
		logger:          logger,
		ownerMiddleware: owner,
		ws:              ws,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createPetRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type gameResultRequest struct {
	Score       int `json:"score"`
	CoinsEarned int `json:"coinsEarned"`
}

type itemRequest struct {
	ItemID string `json:"itemId"`
}

type inventoryResponse struct {
	ItemID    string        `json:"itemId"`
	Quantity  int           `json:"quantity"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Item      *catalog.Item `json:"item"`
}

type purchaseResponse struct {
	ItemID    string    `json:"itemId"`
	Price     int       `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

type useItemResponse struct {
	Pet       *model.Pet `json:"pet"`
	Remaining int        `json:"remaining"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeServiceError переводит ошибку сервиса или хранилища в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrPetNotFound):
		h.writeError(w, http.StatusNotFound, CodePetNotFound, "pet not found")
	case errors.Is(err, service.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, CodeItemNotFound, "item not found")
	case errors.Is(err, service.ErrInvalidKind):
		h.writeError(w, http.StatusBadRequest, CodeInvalidKind, "kind must be one of dog, cat, monkey")
	case errors.Is(err, service.ErrUnknownAction):
		h.writeError(w, http.StatusBadRequest, CodeUnknownAction, "action must be one of feed, play, sleep, heal, clean")
	case errors.Is(err, service.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid input")
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, CodeNotEnoughCoins, "not enough coins")
	case errors.Is(err, repository.ErrItemNotInInventory):
		h.writeError(w, http.StatusConflict, CodeItemNotInInventory, "item not in inventory")
	case errors.Is(err, service.ErrPetLimitReached):
		h.writeError(w, http.StatusConflict, CodePetLimitReached, "an owner can keep at most 3 pets")
	case errors.Is(err, repository.ErrKindTaken):
		h.writeError(w, http.StatusConflict, CodeKindTaken, "owner already has a pet of this kind")
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		h.writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidInput, "malformed JSON body")
		return false
	}
	return true
}

// ownedPet загружает питомца из URL и проверяет, что он принадлежит текущему владельцу.
// Чужой питомец неотличим от отсутствующего.
func (h *Handler) ownedPet(w http.ResponseWriter, r *http.Request) (*model.Pet, bool) {
	ownerID, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidInput, "owner required")
		return nil, false
	}

	petID := chi.URLParam(r, "petID")
	if petID == "" {
		h.writeError(w, http.StatusBadRequest, CodeInvalidInput, "pet id required")
		return nil, false
	}

	p, err := h.service.GetPet(r.Context(), petID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	if p.OwnerID != ownerID {
		h.writeError(w, http.StatusNotFound, CodePetNotFound, "pet not found")
		return nil, false
	}
	return p, true
}

// ListPets возвращает питомцев текущего владельца.
func (h *Handler) ListPets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidInput, "owner required")
		return
	}

	pets, err := h.service.ListPets(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if pets == nil {
		pets = []model.Pet{}
	}
	h.writeJSON(w, http.StatusOK, pets)
}

// CreatePet создаёт питомца текущему владельцу.
func (h *Handler) CreatePet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidInput, "owner required")
		return
	}

	var req createPetRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.CreatePet(r.Context(), ownerID, req.Name, req.Kind)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// GetPet возвращает питомца.
func (h *Handler) GetPet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// DeletePet удаляет питомца вместе с инвентарём и историей покупок.
func (h *Handler) DeletePet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePet(r.Context(), p.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyAction выполняет действие над питомцем.
func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	updated, err := h.service.ApplyAction(r.Context(), p.ID, chi.URLParam(r, "action"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// FinishGame зачисляет монеты по результату мини-игры.
func (h *Handler) FinishGame(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	var req gameResultRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.service.FinishGame(r.Context(), p.ID, req.Score, req.CoinsEarned)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// ListItems возвращает товары магазина.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Items())
}

// Buy покупает товар для питомца.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.service.Buy(r.Context(), p.ID, req.ItemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// UseItem применяет предмет из инвентаря к питомцу.
func (h *Handler) UseItem(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, remaining, err := h.service.UseItem(r.Context(), p.ID, req.ItemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, useItemResponse{Pet: updated, Remaining: remaining})
}

// GetInventory возвращает инвентарь питомца.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	items, err := h.service.GetInventory(r.Context(), p.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res := make([]inventoryResponse, 0, len(items))
	for _, it := range items {
		res = append(res, inventoryResponse{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
			Item:      it.Item,
		})
	}
	h.writeJSON(w, http.StatusOK, res)
}

// GetPurchases возвращает историю покупок питомца.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPet(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeInvalidInput, "limit must be an integer")
			return
		}
		limit = n
	}

	history, err := h.service.GetPurchaseHistory(r.Context(), p.ID, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res := make([]purchaseResponse, 0, len(history))
	for _, rec := range history {
		res = append(res, purchaseResponse{
			ItemID:    rec.ItemID,
			Price:     rec.Price,
			CreatedAt: rec.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Health сообщает, что сервис жив.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
