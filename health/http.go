package health

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Response is the JSON body of the health endpoint.
type Response struct {
	Status     string                       `json:"status"`
	Components map[string]ComponentResponse `json:"components,omitempty"`
}

// ComponentResponse is one checker's entry in Response.
type ComponentResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func component(r Result) ComponentResponse {
	c := ComponentResponse{
		Status:   r.Status.String(),
		Message:  r.Message,
		Duration: r.Duration.String(),
		Details:  r.Details,
	}
	if r.Error != nil {
		c.Error = r.Error.Error()
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler serves the aggregate status at its mount point and a single
// component at <mount>/<name>. DOWN answers 503; UP and DEGRADED answer 200.
func Handler(agg *Aggregator, mount string) http.Handler {
	mount = strings.TrimRight(mount, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		name := strings.Trim(strings.TrimPrefix(r.URL.Path, mount), "/")
		if name == "" {
			results := agg.CheckAll(r.Context())
			status := Overall(results)
			resp := Response{Status: status.String(), Components: make(map[string]ComponentResponse, len(results))}
			for n, res := range results {
				resp.Components[n] = component(res)
			}
			writeJSON(w, status.HTTPStatus(), resp)
			return
		}

		res, err := agg.Check(r.Context(), name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, res.Status.HTTPStatus(), component(res))
	})
}

// LivenessHandler answers UP while the process serves requests.
func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusUp.String()})
	})
}

// Mount registers the aggregate endpoint at prefix, components below it,
// and liveness at prefix/liveness.
func Mount(mux *http.ServeMux, prefix string, agg *Aggregator) {
	prefix = strings.TrimRight(prefix, "/")
	h := Handler(agg, prefix)
	mux.Handle(prefix, h)
	mux.Handle(prefix+"/", h)
	mux.Handle(prefix+"/liveness", LivenessHandler())
}
