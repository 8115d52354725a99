// Package api is the introspection HTTP surface for a core node:
// read-only chain/pool/peer views plus a submit-transaction endpoint
// and a WebSocket event feed. It is not part of the mesh wire protocol;
// it exists for operators and tests to look inside a running node
// without speaking the node's own envelope format.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"

	"github.com/mincoin-project/mincoin/internal/chain"
	"github.com/mincoin-project/mincoin/internal/corenode"
)

// API serves the introspection surface for a single core node.
type API struct {
	node *corenode.Manager
	ws   *wsManager
	log  log.Logger
}

// NewAPI builds an API bound to node and starts its WebSocket fan-out
// loop, hooking the node's miner so every locally mined block is
// pushed to connected clients.
func NewAPI(node *corenode.Manager) *API {
	ws := newWSManager()
	go ws.run()

	a := &API{node: node, ws: ws, log: log.New("component", "api")}
	node.OnBlockMined(func(b chain.Block) {
		a.ws.push(blockEvent{Event: "block_mined", Transactions: len(b.Transactions)})
	})
	return a
}

// Router builds the mux router; exposed separately from Run so tests
// can exercise handlers with httptest without binding a socket.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/chain", a.getChain).Methods(http.MethodGet)
	r.HandleFunc("/pool", a.getPool).Methods(http.MethodGet)
	r.HandleFunc("/peers", a.getPeers).Methods(http.MethodGet)
	r.HandleFunc("/tx", a.postTx).Methods(http.MethodPost)
	r.HandleFunc("/ws", a.ws.serveWS)
	return r
}

// Run blocks serving the introspection API on addr.
func (a *API) Run(addr string) error {
	a.log.Info("introspection API listening", "addr", addr)
	return http.ListenAndServe(addr, a.Router())
}

func (a *API) getChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.node.ChainSnapshot())
}

func (a *API) getPool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.node.PoolSnapshot())
}

type peersView struct {
	Core []string `json:"core"`
	Edge []string `json:"edge"`
}

func (a *API) getPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, peersView{Core: a.node.CoreSnapshot(), Edge: a.node.EdgeSnapshot()})
}

type txRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Value     int32  `json:"value"`
}

type blockEvent struct {
	Event        string `json:"event"`
	Transactions int    `json:"transactions"`
}

type txEvent struct {
	Event string            `json:"event"`
	Tx    chain.Transaction `json:"transaction"`
	Added bool              `json:"added"`
}

func (a *API) postTx(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx := chain.Transaction{Sender: req.Sender, Recipient: req.Recipient, Value: req.Value}
	added := a.node.SubmitTransaction(tx)
	a.ws.push(txEvent{Event: "transaction_accepted", Tx: tx, Added: added})

	if !added {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
