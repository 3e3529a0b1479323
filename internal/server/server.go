// Package server exposes the same-origin API the web client consumes: chat
// relay, fee settlement, backup and retrieval, plus a backups index page.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ogchat/ogchat/internal/metrics"
	"github.com/ogchat/ogchat/internal/relay"
	"github.com/ogchat/ogchat/internal/types"
)

//go:embed templates
var templatesFS embed.FS

// Relayer forwards chat requests upstream.
type Relayer interface {
	Relay(ctx context.Context, endpoint, modelID, prompt string, headers map[string]string) (*relay.Completion, error)
}

// Broker is the slice of the broker session the server needs.
type Broker interface {
	ListServices(ctx context.Context) ([]*types.ServiceDescriptor, error)
	SettleFee(ctx context.Context, providerID, serviceName string, amount decimal.Decimal) error
}

// Uploader backs transcripts up.
type Uploader interface {
	Backup(ctx context.Context, title string, transcript types.Transcript) (string, error)
}

// Retriever lists and fetches backups.
type Retriever interface {
	List(ctx context.Context, owner common.Address) ([]string, error)
	FetchAll(ctx context.Context, rootHashes []string) []*types.BackupRecord
}

// Server wires the API routes.
type Server struct {
	relayer   Relayer
	broker    Broker
	uploader  Uploader
	retriever Retriever
	owner     common.Address
	tmpl      *template.Template
}

// New server.
func New(relayer Relayer, broker Broker, uploader Uploader, retriever Retriever, owner common.Address) (*Server, error) {
	tmpl, err := template.New("").Funcs(sprig.HtmlFuncMap()).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}
	return &Server{
		relayer:   relayer,
		broker:    broker,
		uploader:  uploader,
		retriever: retriever,
		owner:     owner,
		tmpl:      tmpl,
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/api/chat", metrics.Instrument(post(s.handleChat)))
	mux.Handle("/api/backup", metrics.Instrument(post(s.handleBackup)))
	mux.Handle("/api/retrieve", metrics.Instrument(post(s.handleRetrieve)))
	mux.Handle("/api/settle-fee", metrics.Instrument(post(s.handleSettleFee)))
	mux.Handle("/api/models", metrics.Instrument(http.HandlerFunc(s.handleModels)))
	mux.Handle("/", metrics.Instrument(http.HandlerFunc(s.handleIndex)))
	return mux
}

// Start serves until the listener fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("server listening on http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// post restricts a handler to POST.
func post(handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	})
}
