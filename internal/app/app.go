package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/sirupsen/logrus"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

const (
	AppVersion uint64 = 1
)

// MafiaApp is the ABCI application holding all game rooms. The chain is the
// trust anchor: every state mutation is a tx, applied atomically against a
// staged copy of state, and every read is a query against committed state.
type MafiaApp struct {
	*abci.BaseApplication

	home string
	log  *logrus.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, log *logrus.Logger) (*MafiaApp, error) {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &MafiaApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		log:             log,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *MafiaApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "mafiad",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *MafiaApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	// Structural validation only; game rules run at FinalizeBlock.
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *MafiaApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *MafiaApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, nowUnix)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *MafiaApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// Returning the error halts the node loudly rather than diverging.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

// deliverTx applies one tx against a staged deep copy of state; the copy is
// promoted only when the tx fully succeeds. There is no partial-commit state.
func (a *MafiaApp) deliverTx(txBytes []byte, height int64, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "stage state: " + err.Error()}
	}
	staged.Height = height

	res := a.routeTx(staged, env, nowUnix)
	if res.Code == 0 {
		a.st = staged
		a.log.WithFields(logrus.Fields{
			"type":   env.Type,
			"signer": env.Signer,
			"height": height,
		}).Debug("tx applied")
	} else {
		a.log.WithFields(logrus.Fields{
			"type":   env.Type,
			"signer": env.Signer,
			"height": height,
			"reason": res.Log,
		}).Debug("tx rejected")
	}
	return res
}

func (a *MafiaApp) routeTx(st *state.State, env codec.TxEnvelope, nowUnix int64) *abci.ExecTxResult {
	handler, ok := txRoutes[env.Type]
	if !ok {
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
	res, err := handler(st, env, nowUnix)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	return res
}

type txHandler func(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error)

var txRoutes = map[string]txHandler{
	"room/create":          handleCreateRoom,
	"room/join":            handleJoinRoom,
	"shuffle/start":        handleStartShuffle,
	"shuffle/commit_deck":  handleCommitDeck,
	"shuffle/reveal_deck":  handleRevealDeck,
	"reveal/share_keys":    handleShareDecryptionKeys,
	"reveal/commit_role":   handleCommitRole,
	"reveal/confirm_role":  handleConfirmRole,
	"day/start_voting":     handleStartVoting,
	"vote/cast":            handleCastVote,
	"night/commit_action":  handleCommitNightAction,
	"night/reveal_action":  handleRevealNightAction,
	"night/commit_target":  handleCommitMafiaTarget,
	"night/reveal_target":  handleRevealMafiaTarget,
	"room/force_timeout":   handleForcePhaseTimeout,
	"endgame/reveal_role":  handleRevealRoleForEndgame,
	"endgame/finalize":     handleFinalizeGame,
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}

func unmarshalTx(env codec.TxEnvelope, out any) error {
	if err := json.Unmarshal(env.Value, out); err != nil {
		return errBadTxValue(env.Type)
	}
	return nil
}
