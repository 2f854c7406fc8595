package fleet

import (
	"net/http"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/httputil"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/gorilla/mux"
)

// Handler 车队域 HTTP 传输层。
// 只做三件事：取 Actor、解析入参、调服务层；不含任何权限/过滤逻辑。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册车队域路由（全部在闸门保护之下）。
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/vehicles", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicles/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/api/vehicles/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/vehicles/{id}/assignments", h.assign).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicles/assignments/{assignmentId}", h.unassign).Methods(http.MethodDelete)
	r.HandleFunc("/api/vehicles/{id}/maintenance", h.addMaintenance).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicles/{id}/maintenance", h.maintenanceHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/drivers", h.availableDrivers).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/vehicles", h.stats).Methods(http.MethodGet)
}

func actorOrFail(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperrors.ErrUnauthenticated)
		return rbac.Actor{}, false
	}
	return actor, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	vehicles, err := h.svc.ListVehicles(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, vehicles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetVehicle(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, detail)
}

type vehiclePayload struct {
	Plate    *string `json:"plate"`
	Model    *string `json:"model"`
	Brand    *string `json:"brand"`
	Year     *int    `json:"year"`
	FuelType *string `json:"fuel_type"`
	Capacity *int    `json:"capacity"`
	Status   *string `json:"status"`
	Notes    *string `json:"notes"`
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var in vehiclePayload
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.svc.CreateVehicle(r.Context(), actor, CreateVehicleInput{
		Plate:    strOrEmpty(in.Plate),
		Model:    strOrEmpty(in.Model),
		Brand:    strOrEmpty(in.Brand),
		Year:     intOrZero(in.Year),
		FuelType: strOrEmpty(in.FuelType),
		Capacity: intOrZero(in.Capacity),
		Status:   strOrEmpty(in.Status),
		Notes:    strOrEmpty(in.Notes),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, v)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var in vehiclePayload
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.svc.UpdateVehicle(r.Context(), actor, mux.Vars(r)["id"], UpdateVehicleInput{
		Plate:    in.Plate,
		Model:    in.Model,
		Brand:    in.Brand,
		Year:     in.Year,
		FuelType: in.FuelType,
		Capacity: in.Capacity,
		Status:   in.Status,
		Notes:    in.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.svc.DeleteVehicle(r.Context(), actor, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var in struct {
		DriverID string `json:"driver_id"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.svc.AssignDriver(r.Context(), actor, mux.Vars(r)["id"], in.DriverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, a)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["assignmentId"]
	if err := h.svc.UnassignDriver(r.Context(), actor, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) addMaintenance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var in struct {
		Type      string     `json:"type"`
		Status    string     `json:"status"`
		Date      *time.Time `json:"date"`
		CostCents int64      `json:"cost_cents"`
		Notes     string     `json:"notes"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}

	input := MaintenanceInput{
		Type:      in.Type,
		Status:    in.Status,
		CostCents: in.CostCents,
		Notes:     in.Notes,
	}
	if in.Date != nil {
		input.Date = *in.Date
	}

	m, err := h.svc.AddMaintenance(r.Context(), actor, mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, m)
}

func (h *Handler) maintenanceHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	records, err := h.svc.MaintenanceHistory(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, records)
}

func (h *Handler) availableDrivers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	drivers, err := h.svc.AvailableDrivers(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	type driverView struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	views := make([]driverView, 0, len(drivers))
	for _, d := range drivers {
		views = append(views, driverView{ID: d.ID, Name: d.Name, Email: d.Email})
	}
	httputil.WriteData(w, http.StatusOK, views)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.VehicleStats(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
}
