package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"

	"github.com/mincoin-project/mincoin/internal/chain"
	"github.com/mincoin-project/mincoin/internal/edgenode"
)

// EdgeAPI serves the introspection surface for a single edge node: the
// core it is currently attached to, the cores it knows about for
// failover, and a transaction submission endpoint. An edge node keeps no
// chain or pool of its own, so it has no /chain or /pool route.
type EdgeAPI struct {
	node *edgenode.Manager
	ws   *wsManager
	log  log.Logger
}

// NewEdgeAPI builds an API bound to node and starts its WebSocket
// fan-out loop.
func NewEdgeAPI(node *edgenode.Manager) *EdgeAPI {
	ws := newWSManager()
	go ws.run()
	return &EdgeAPI{node: node, ws: ws, log: log.New("component", "api.edge")}
}

// Router builds the mux router; exposed separately from Run so tests
// can exercise handlers with httptest without binding a socket.
func (a *EdgeAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/peers", a.getPeers).Methods(http.MethodGet)
	r.HandleFunc("/tx", a.postTx).Methods(http.MethodPost)
	r.HandleFunc("/ws", a.ws.serveWS)
	return r
}

// Run blocks serving the edge introspection API on addr.
func (a *EdgeAPI) Run(addr string) error {
	a.log.Info("edge introspection API listening", "addr", addr)
	return http.ListenAndServe(addr, a.Router())
}

type edgePeersView struct {
	Core  string   `json:"core"`
	Known []string `json:"known"`
}

func (a *EdgeAPI) getPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, edgePeersView{Core: a.node.CurrentCore(), Known: a.node.KnownCores()})
}

func (a *EdgeAPI) postTx(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx := chain.Transaction{Sender: req.Sender, Recipient: req.Recipient, Value: req.Value}
	err := a.node.SubmitTransaction(tx)
	a.ws.push(txEvent{Event: "transaction_submitted", Tx: tx, Added: err == nil})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
