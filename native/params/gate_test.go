package params

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/crypto"
	"escrowd/storage"
)

func testAddr(b byte) crypto.Address {
	var addr crypto.Address
	addr[crypto.AddressLength-1] = b
	return addr
}

func newTestGate(t *testing.T) (*Gate, *state.Manager, crypto.Address, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	mgr := state.NewManager(db)
	owner := testAddr(0x0a)
	gate := NewGate(mgr, owner)
	rec := &events.Recorder{}
	gate.SetEmitter(rec)
	return gate, mgr, owner, rec
}

func TestGatePauseLifecycle(t *testing.T) {
	gate, mgr, owner, rec := newTestGate(t)
	ctx := context.Background()

	paused, err := gate.Paused()
	require.NoError(t, err)
	require.False(t, paused)
	require.NoError(t, gate.Check(mgr))

	require.NoError(t, gate.Pause(ctx, owner))
	paused, err = gate.Paused()
	require.NoError(t, err)
	require.True(t, paused)
	require.ErrorIs(t, gate.Check(mgr), ErrPaused)
	require.ErrorIs(t, gate.Pause(ctx, owner), ErrAlreadyPaused)

	require.NoError(t, gate.Unpause(ctx, owner))
	require.ErrorIs(t, gate.Unpause(ctx, owner), ErrNotPaused)
	require.NoError(t, gate.Check(mgr))

	require.Equal(t, []string{events.TypePaused, events.TypeUnpaused}, rec.Types())
}

func TestGateRejectsNonOwner(t *testing.T) {
	gate, _, owner, rec := newTestGate(t)
	stranger := testAddr(0x0b)

	require.True(t, gate.IsOwner(owner))
	require.False(t, gate.IsOwner(stranger))
	require.ErrorIs(t, gate.Pause(context.Background(), stranger), ErrNotOwner)
	require.Empty(t, rec.Types())

	paused, err := gate.Paused()
	require.NoError(t, err)
	require.False(t, paused)
}

func TestGateZeroOwnerIsNobody(t *testing.T) {
	db := storage.NewMemDB()
	defer func() { _ = db.Close() }()
	gate := NewGate(state.NewManager(db), crypto.ZeroAddress)
	require.False(t, gate.IsOwner(crypto.ZeroAddress))
	require.ErrorIs(t, gate.Pause(context.Background(), crypto.ZeroAddress), ErrNotOwner)
}

func TestLoadPausesRejectsGarbage(t *testing.T) {
	db := storage.NewMemDB()
	defer func() { _ = db.Close() }()
	mgr := state.NewManager(db)
	require.NoError(t, mgr.Update(func(tx *state.Tx) error {
		return tx.ParamStorePut(ParamsKeyPauses, []byte("{not json"))
	}))
	_, err := EscrowPaused(mgr)
	require.Error(t, err)
}
