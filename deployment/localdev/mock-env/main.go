package main

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"net/http"
	"time"
)

type schemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type deployment struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	CreatedAt          string         `json:"createdAt"`
	Model              map[string]any `json:"model"`
	RuntimeEnvironment string         `json:"runtimeEnvironment"`
	ScoringHref        string         `json:"scoringHref"`
	FeedbackHref       string         `json:"feedbackHref"`
}

var drugSchema = []schemaField{
	{Name: "AGE", Type: "integer"},
	{Name: "SEX", Type: "string"},
	{Name: "BP", Type: "string"},
	{Name: "CHOLESTEROL", Type: "string"},
	{Name: "NA", Type: "decimal(12,6)"},
	{Name: "K", Type: "decimal(12,6)"},
}

var fields = []string{"AGE", "SEX", "BP", "CHOLESTEROL", "NA", "K", "probability", "prediction"}

func deployments() []deployment {
	created := time.Now().Add(-72 * time.Hour).UTC().Format(time.RFC3339)
	return []deployment{
		{
			ID:                 "drug-selection-spark",
			Name:               "Drug selection",
			CreatedAt:          created,
			Model:              map[string]any{"name": "drug-model", "runtimeEnvironment": "spark-2.1", "input_data_schema": map[string]any{"fields": drugSchema}},
			RuntimeEnvironment: "spark-2.1",
			ScoringHref:        "http://mock/score/drug-selection-spark",
			FeedbackHref:       "http://mock/feedback/drug-selection-spark",
		},
		{
			ID:        "churn-spark",
			Name:      "Customer churn",
			CreatedAt: created,
			Model: map[string]any{"name": "churn", "runtimeEnvironment": "spark-2.1", "input_data_schema": map[string]any{"fields": []schemaField{
				{Name: "TENURE", Type: "integer"},
			}}},
			ScoringHref:  "http://mock/score/churn-spark",
			FeedbackHref: "http://mock/feedback/churn-spark",
		},
		{
			ID:           "drug-selection-python",
			Name:         "Drug selection (python)",
			CreatedAt:    created,
			Model:        map[string]any{"name": "drug-model-py", "runtimeEnvironment": "python-3.5", "input_data_schema": map[string]any{"fields": drugSchema}},
			ScoringHref:  "http://mock/score/drug-selection-python",
			FeedbackHref: "http://mock/feedback/drug-selection-python",
		},
	}
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/env/deployments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, deployments())
	})

	mux.HandleFunc("/env/score/", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			ScoringData string `json:"scoringData"`
			ScoringHref string `json:"scoringHref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": "invalid request body"})
			return
		}
		var row []any
		if err := json.Unmarshal([]byte(req.ScoringData), &row); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"errors": []map[string]string{{"message": "scoringData must be a JSON array"}}})
			return
		}
		probs := fakeProbabilities(req.ScoringData)
		values := append(append([]any{}, row...), probs, 0)
		writeJSON(w, http.StatusOK, map[string]any{
			"score": map[string]any{
				"fields":      fields,
				"values":      [][]any{values},
				"probability": map[string]any{"values": probs},
			},
		})
	})

	mux.HandleFunc("/env/feedback/", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	logger := log.New(log.Writer(), "env-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// fakeProbabilities spreads a stable pseudo-random distribution over five drugs.
func fakeProbabilities(seed string) []float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	n := h.Sum32()
	weights := make([]float64, 5)
	var total float64
	for i := range weights {
		weights[i] = float64((n>>(uint(i)*5))&31) + 1
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
