package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"roi.com/phaser/internal/core"
	"roi.com/phaser/internal/schema"
	"roi.com/phaser/internal/viz"
	"roi.com/phaser/internal/warehouse"
)

type APIHandler struct {
	llm       core.Completer
	schemaDoc *schema.Provider
	executor  warehouse.Executor
}

func NewAPIHandler(llm core.Completer, schemaDoc *schema.Provider, executor warehouse.Executor) *APIHandler {
	return &APIHandler{
		llm:       llm,
		schemaDoc: schemaDoc,
		executor:  executor,
	}
}

// newPipeline wires a per-request pipeline. The services are stateless; the
// only variation between requests is the schema context and the executor.
func (h *APIHandler) newPipeline(schemaDoc string, executor warehouse.Executor) *core.PipelineService {
	planner := core.NewPlannerService(h.llm, schemaDoc)
	analyzer := core.NewAnalysisService(h.llm, schemaDoc)
	ladder := viz.NewLadder(h.llm)
	return core.NewPipelineService(planner, executor, analyzer, ladder)
}

type QueryRequest struct {
	Query       string          `json:"query"`
	ChatHistory []core.ChatTurn `json:"chat_history"`
}

// plotPayload is the image artifact shape the front end embeds.
type plotPayload struct {
	Image     string `json:"image"`
	ImageType string `json:"image_type"`
	HTMLTag   string `json:"html_tag"`
}

type QueryResponse struct {
	ResponseType      string          `json:"response_type"`
	Output            string          `json:"output,omitempty"`
	SQLQuery          string          `json:"sql_query,omitempty"`
	Explanation       string          `json:"explanation,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	Table             string          `json:"table,omitempty"`
	AnalysisStatement string          `json:"analysis_statement,omitempty"`
	AnalysisPlot      any             `json:"analysis_plot,omitempty"`
	CSVData           string          `json:"csv_data,omitempty"`
}

// buildResponse flattens a pipeline response into the wire shape.
func buildResponse(resp *core.Response) QueryResponse {
	out := QueryResponse{ResponseType: string(resp.Kind)}

	switch resp.Kind {
	case core.ResponseSQL:
		out.SQLQuery = resp.SQLQuery
		out.Explanation = resp.Explanation
		if resp.Result != nil {
			if records, err := resp.Result.JSON(); err == nil {
				out.Result = json.RawMessage(records)
			}
			out.Table = resp.Result.HTML()
			out.CSVData = resp.Result.CSV()
		}
		if resp.Analysis != nil {
			out.AnalysisStatement = resp.Analysis.Summary
		}
		if resp.Chart != nil {
			switch resp.Chart.Kind {
			case viz.KindImage:
				encoded := base64.StdEncoding.EncodeToString(resp.Chart.Image)
				out.AnalysisPlot = plotPayload{
					Image:     encoded,
					ImageType: "png",
					HTMLTag:   fmt.Sprintf(`<img src="data:image/png;base64,%s" alt="%s" />`, encoded, html.EscapeString(out.AnalysisStatement)),
				}
			case viz.KindMarkup:
				out.AnalysisPlot = resp.Chart.Markup
			}
		}
	default:
		out.Output = resp.Output
	}
	return out
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "Query cannot be empty", http.StatusBadRequest)
		return
	}

	log.Printf("[%s] query received", requestID)
	pipeline := h.newPipeline(h.schemaDoc.Context(), h.executor)
	resp := pipeline.Run(r.Context(), req.Query, req.ChatHistory)
	log.Printf("[%s] pipeline finished with kind=%s", requestID, resp.Kind)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buildResponse(resp))
}

type csvQueryPayload struct {
	Query       string          `json:"query"`
	ChatHistory []core.ChatTurn `json:"chat_history"`
	CSVData     string          `json:"csv_data"`
}

// CSVQueryHandler runs the pipeline against an uploaded CSV instead of the
// warehouse: the file is loaded into an in-memory database for the duration
// of the request and the schema context is derived from its columns.
func (h *APIHandler) CSVQueryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	var payload csvQueryPayload
	if err := json.Unmarshal([]byte(r.FormValue("json_data")), &payload); err != nil {
		http.Error(w, "Invalid json_data: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		http.Error(w, "Query cannot be empty", http.StatusBadRequest)
		return
	}

	var dataset *warehouse.DatasetExecutor
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		dataset, err = warehouse.LoadCSVDataset(r.Context(), file)
		if err != nil {
			http.Error(w, "Failed to load CSV: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else if payload.CSVData != "" {
		dataset, err = warehouse.LoadCSVDataset(r.Context(), strings.NewReader(payload.CSVData))
		if err != nil {
			http.Error(w, "Failed to load CSV: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		http.Error(w, "No CSV data provided", http.StatusBadRequest)
		return
	}
	defer dataset.Close()

	log.Printf("[%s] CSV query received", requestID)
	pipeline := h.newPipeline(dataset.SchemaContext(), dataset)
	resp := pipeline.Run(r.Context(), payload.Query, payload.ChatHistory)
	log.Printf("[%s] pipeline finished with kind=%s", requestID, resp.Kind)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buildResponse(resp))
}
