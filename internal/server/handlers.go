package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ogchat/ogchat/internal/backup"
	"github.com/ogchat/ogchat/internal/metering"
	"github.com/ogchat/ogchat/internal/metrics"
	"github.com/ogchat/ogchat/internal/relay"
	"github.com/ogchat/ogchat/internal/types"
)

type chatRequest struct {
	Endpoint string            `json:"endpoint"`
	Model    string            `json:"model"`
	Input    string            `json:"input"`
	Headers  map[string]string `json:"headers"`
}

func (r *chatRequest) validate() error {
	if r.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.Input == "" {
		return errors.New("input is required")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	request := &chatRequest{}
	if !decode(w, r, request) {
		return
	}

	start := time.Now()
	completion, err := s.relayer.Relay(r.Context(), request.Endpoint, request.Model, request.Input, request.Headers)
	if err != nil {
		upstreamError := &relay.UpstreamError{}
		if errors.As(err, &upstreamError) && upstreamError.StatusCode == http.StatusPaymentRequired {
			metrics.ObserveRelay(start, "fee_required")
			if amount, ok := metering.ParseRequiredFee(upstreamError.Message); ok {
				writeJSON(w, http.StatusPaymentRequired, map[string]any{
					"error":       upstreamError.Message,
					"requiredFee": amount.String(),
				})
				return
			}
			// 402 without a parseable amount degrades to a generic failure.
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": upstreamError.Message})
			return
		}
		metrics.ObserveRelay(start, "error")
		metrics.IncRelayError(errorKind(err))
		log.Printf("relay error: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to get completion"})
		return
	}

	metrics.ObserveRelay(start, "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      completion.ID,
		"content": completion.Content,
	})
}

type backupRequest struct {
	Title      string           `json:"title"`
	Transcript types.Transcript `json:"transcript"`
}

func (r *backupRequest) validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if len(r.Transcript) == 0 {
		return errors.New("transcript is required")
	}
	return nil
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	request := &backupRequest{}
	if !decode(w, r, request) {
		return
	}

	rootHash, err := s.uploader.Backup(r.Context(), request.Title, request.Transcript)
	if err != nil {
		notRecorded := &backup.NotRecordedError{}
		if errors.As(err, &notRecorded) {
			// Stored but unreferenced: surface the hash so the caller can
			// still retrieve or re-record it.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":    "backup saved but not recorded on-chain",
				"rootHash": notRecorded.RootHash,
				"details":  notRecorded.Err.Error(),
			})
			return
		}
		log.Printf("backup error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "failed to backup chat",
			"details": err.Error(),
		})
		return
	}

	metrics.IncBackupUploaded()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"rootHash": rootHash,
	})
}

type retrieveRequest struct {
	Hashes []string `json:"hashes"`
}

func (r *retrieveRequest) validate() error {
	if len(r.Hashes) == 0 {
		return errors.New("hashes are required")
	}
	return nil
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	request := &retrieveRequest{}
	if !decode(w, r, request) {
		return
	}

	records := s.retriever.FetchAll(r.Context(), request.Hashes)
	backups := make([]map[string]any, 0, len(records))
	for _, record := range records {
		metrics.IncBackupFetched()
		backups = append(backups, map[string]any{
			"hash":    record.RootHash,
			"content": record,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"backups": backups,
	})
}

type settleFeeRequest struct {
	ProviderAddress string `json:"providerAddress"`
	ServiceName     string `json:"serviceName"`
	Price           string `json:"price"`
}

func (r *settleFeeRequest) validate() error {
	if r.ProviderAddress == "" {
		return errors.New("providerAddress is required")
	}
	if r.ServiceName == "" {
		return errors.New("serviceName is required")
	}
	if r.Price == "" {
		return errors.New("price is required")
	}
	return nil
}

func (s *Server) handleSettleFee(w http.ResponseWriter, r *http.Request) {
	request := &settleFeeRequest{}
	if !decode(w, r, request) {
		return
	}
	amount, err := decimal.NewFromString(request.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "price is not a decimal"})
		return
	}

	if err := s.broker.SettleFee(r.Context(), request.ProviderAddress, request.ServiceName, amount); err != nil {
		log.Printf("settle fee error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "failed to settle fee",
			"details": err.Error(),
		})
		return
	}

	metrics.IncFeeSettlement()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	services, err := s.broker.ListServices(r.Context())
	if err != nil {
		log.Printf("list services error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list models"})
		return
	}
	if services == nil {
		services = []*types.ServiceDescriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": services})
}

type indexPageData struct {
	Owner   string
	Backups []*types.BackupRecord
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := indexPageData{Owner: s.owner.Hex()}
	hashes, err := s.retriever.List(r.Context(), s.owner)
	if err != nil {
		log.Printf("listing backups: %v", err)
	} else {
		data.Backups = s.retriever.FetchAll(r.Context(), hashes)
	}

	if err := s.tmpl.ExecuteTemplate(w, "index.tmpl", data); err != nil {
		log.Printf("rendering index: %v", err)
	}
}

// validator is implemented by every request payload.
type validator interface {
	validate() error
}

// decode parses and validates a JSON request body, replying 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, request validator) bool {
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return false
	}
	if err := request.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func errorKind(err error) string {
	upstreamError := &relay.UpstreamError{}
	if errors.As(err, &upstreamError) {
		return "upstream"
	}
	return "transport"
}
