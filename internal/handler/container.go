package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dockhive/dockhive/internal/auth"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/service"
)

// ContainerHandler exposes the container lifecycle API. Every route is
// behind auth.RequireAuth; the owner always comes from the token, never from
// the request body.
type ContainerHandler struct {
	containers *service.ContainerService
	logger     *slog.Logger
}

// NewContainerHandler creates a ContainerHandler.
func NewContainerHandler(containers *service.ContainerService, logger *slog.Logger) *ContainerHandler {
	return &ContainerHandler{containers: containers, logger: logger}
}

type createContainerRequest struct {
	Name       string `json:"name"`
	Image      string `json:"image"`
	Memory     int64  `json:"memory" validate:"required,gt=0"`
	MemorySwap int64  `json:"memorySwap" validate:"gte=0"`
	CPUCores   int64  `json:"cpuCores" validate:"required,gte=1"`
	CPUShares  int64  `json:"cpuShares" validate:"gte=0"`
}

// HandleCreate admits a container creation request.
//
// HTTP: POST /api/containers
// Responds 202 with the provisional record; the caller polls GET
// /api/containers to observe the final state.
func (h *ContainerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req createContainerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	spec := model.ResourceSpec{
		MemoryBytes:     req.Memory,
		MemorySwapBytes: req.MemorySwap,
		CPUCores:        req.CPUCores,
		CPUShares:       req.CPUShares,
	}

	record, err := h.containers.Create(r.Context(), owner, spec, req.Image, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, record)
}

// HandleList returns the caller's containers.
//
// HTTP: GET /api/containers
func (h *ContainerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	containers, err := h.containers.List(r.Context(), owner)
	if err != nil {
		h.logger.Error("listing containers", slog.String("owner", owner), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, containers)
}

// HandleStart starts a stopped container.
//
// HTTP: POST /api/containers/{name}/start
func (h *ContainerHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.containers.Start)
}

// HandleStop stops a running container. The port lease and catalog record
// survive; the container is resumable.
//
// HTTP: POST /api/containers/{name}/stop
func (h *ContainerHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.containers.Stop)
}

// HandleDelete force-removes a container, frees its port and drops the
// record.
//
// HTTP: DELETE /api/containers/{name}
func (h *ContainerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.containers.Delete)
}

func (h *ContainerHandler) lifecycleOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, owner, name string) error) {
	owner, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	name := chi.URLParam(r, "name")

	if err := op(r.Context(), owner, name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

type calculateRequest struct {
	Memory     int64 `json:"memory" validate:"gte=0"`
	MemorySwap int64 `json:"memorySwap" validate:"gte=0"`
	CPUCores   int64 `json:"cpuCores" validate:"gte=0"`
}

// HandleCalculate prices a resource spec without provisioning anything.
// Public: no authentication, no side effects.
//
// HTTP: POST /api/calculate
func (h *ContainerHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	spec := model.ResourceSpec{
		MemoryBytes:     req.Memory,
		MemorySwapBytes: req.MemorySwap,
		CPUCores:        req.CPUCores,
	}

	writeJSON(w, http.StatusOK, map[string]int64{"credits": spec.Price()})
}
