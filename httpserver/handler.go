package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// Endpoint kinds accepted in resolution URLs.
const (
	kindInput  = "input"
	kindOutput = "output"
	kindEntry  = "entry"
)

// ModuleStatus is one entry of the deployment status listing.
type ModuleStatus struct {
	Name     string `json:"name"`
	Node     string `json:"node"`
	Deployed bool   `json:"deployed"`
	Attested bool   `json:"attested"`
}

// EndpointResolution is the response to an endpoint resolution request.
type EndpointResolution struct {
	Module   string `json:"module"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
	ID       int    `json:"id"`
}

// Handler serves the deployment status API. It reads module state through
// the registry and never mutates the deployment; provisioning stays with
// the pipeline that owns it.
type Handler struct {
	registry interfaces.ModuleRegistry
	log      *slog.Logger
}

// NewHandler creates a status API handler over the given module registry.
func NewHandler(registry interfaces.ModuleRegistry, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log,
	}
}

// HandleModules lists every module of the deployment with its lifecycle
// flags.
//
// URL format: GET /api/modules
func (h *Handler) HandleModules(w http.ResponseWriter, r *http.Request) {
	modules := h.registry.Modules()

	statuses := make([]ModuleStatus, 0, len(modules))
	for _, module := range modules {
		statuses = append(statuses, moduleStatus(module))
	}

	h.writeJSON(w, statuses)
}

// HandleModule reports the lifecycle flags of a single module.
//
// URL format: GET /api/modules/{module}
func (h *Handler) HandleModule(w http.ResponseWriter, r *http.Request) {
	module, ok := h.lookupModule(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, moduleStatus(module))
}

// HandleEndpoint resolves a module endpoint reference to the ID it carries
// on the node.
//
// URL format: GET /api/modules/{module}/endpoints/{kind}/{ref}
//
// The kind is one of input, output or entry; ref is an endpoint name or an
// already assigned numeric ID. Resolving a named Sancus endpoint reads the
// symbol from the module binary and therefore joins an in-flight build.
func (h *Handler) HandleEndpoint(w http.ResponseWriter, r *http.Request) {
	module, ok := h.lookupModule(w, r)
	if !ok {
		return
	}

	kind := r.PathValue("kind")
	ref := interfaces.NewEndpointRefFromString(r.PathValue("ref"))

	var id int
	var err error
	switch kind {
	case kindInput:
		id, err = module.InputID(r.Context(), ref)
	case kindOutput:
		id, err = module.OutputID(r.Context(), ref)
	case kindEntry:
		id, err = module.EntryID(r.Context(), ref)
	default:
		http.Error(w, "Unknown endpoint kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		var notFound *interfaces.EndpointNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("Endpoint resolution failed", "err", err,
			slog.String("module", module.Name()),
			slog.String("kind", kind),
			slog.String("endpoint", ref.String()))
		http.Error(w, "Endpoint resolution failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, EndpointResolution{
		Module:   module.Name(),
		Kind:     kind,
		Endpoint: ref.String(),
		ID:       id,
	})
}

// lookupModule resolves the {module} path parameter, writing the error
// response itself when the module cannot be served.
func (h *Handler) lookupModule(w http.ResponseWriter, r *http.Request) (interfaces.Module, bool) {
	name := r.PathValue("module")
	if name == "" {
		http.Error(w, "Missing module name in URL", http.StatusBadRequest)
		return nil, false
	}

	module, err := h.registry.Module(name)
	if err != nil {
		if errors.Is(err, interfaces.ErrModuleNotFound) {
			http.Error(w, "Module not found", http.StatusNotFound)
			return nil, false
		}
		h.log.Error("Module lookup failed", "err", err, slog.String("module", name))
		http.Error(w, "Module lookup failed", http.StatusInternalServerError)
		return nil, false
	}

	return module, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", "err", err)
	}
}

func moduleStatus(module interfaces.Module) ModuleStatus {
	return ModuleStatus{
		Name:     module.Name(),
		Node:     module.Node().Name(),
		Deployed: module.Deployed(),
		Attested: module.Attested(),
	}
}
