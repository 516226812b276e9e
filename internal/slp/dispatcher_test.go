package slp_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/slp"
)

type fakeSender struct {
	mu         sync.Mutex
	unicasts   int
	multicasts int
	onSend     func()
}

func (f *fakeSender) SendUnicast(ctx context.Context, dst netip.Addr, payload []byte) error {
	f.mu.Lock()
	f.unicasts++
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	return nil
}

func (f *fakeSender) SendMulticast(ctx context.Context, group netip.Addr, payload []byte) error {
	f.mu.Lock()
	f.multicasts++
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	return nil
}

func (f *fakeSender) sendCount() (unicasts, multicasts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unicasts, f.multicasts
}

var testPeer = netip.MustParseAddr("10.0.0.9")
var testGroup = netip.MustParseAddr(slp.MulticastGroupV4)

func TestDoUnicastDeliversReply(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := slp.NewDispatcher(sender, slp.DefaultDispatchConfig(), nil)

	replyMsg := slp.Message{
		Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvAck, XID: 7, LanguageTag: "en"},
		SrvAck: &slp.SrvAckBody{ErrorCode: slp.ErrNone},
	}

	sender.onSend = func() {
		go d.Deliver(testPeer, replyMsg)
	}

	got, err := d.DoUnicast(context.Background(), 7, slp.FuncSrvReg, testPeer, []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, slp.ErrorCode(slp.ErrNone), got.SrvAck.ErrorCode)

	unicasts, _ := sender.sendCount()
	require.Equal(t, 1, unicasts)
}

func TestDoUnicastTimesOutWithoutReply(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	cfg := slp.DefaultDispatchConfig()
	cfg.UnicastRetry = 50 * time.Millisecond
	d := slp.NewDispatcher(sender, cfg, nil)

	_, err := d.DoUnicast(context.Background(), 1, slp.FuncSrvReg, testPeer, []byte("payload"))
	require.ErrorIs(t, err, slp.ErrNetworkTimedOut)
}

func TestDoUnicastCancellation(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := slp.NewDispatcher(sender, slp.DefaultDispatchConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	sender.onSend = func() {
		go cancel()
	}

	_, err := d.DoUnicast(ctx, 2, slp.FuncSrvReg, testPeer, []byte("payload"))
	require.ErrorIs(t, err, slp.ErrRequestCancelled)
}

// TestDoMulticastConvergence covers spec.md §8 scenario 6: one responder
// replies during the initial wait window and is collected once, and
// convergence keeps retransmitting until the cumulative wait reaches
// MCMaxWait.
func TestDoMulticastConvergence(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	cfg := slp.DispatchConfig{
		MCInitialWait: 20 * time.Millisecond,
		MCMaxWait:     200 * time.Millisecond,
		UnicastRetry:  time.Second,
		MaxPDUSize:    1400,
	}
	d := slp.NewDispatcher(sender, cfg, nil)

	responder := netip.MustParseAddr("10.0.0.2")
	replyMsg := slp.Message{
		Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvRply, XID: 9, LanguageTag: "en"},
		SrvRply: &slp.SrvRplyBody{ErrorCode: slp.ErrNone},
	}

	var once sync.Once
	sender.onSend = func() {
		once.Do(func() {
			go func() {
				time.Sleep(5 * time.Millisecond)
				d.Deliver(responder, replyMsg)
			}()
		})
	}

	build := func(prList string) ([]byte, error) { return []byte("req:" + prList), nil }

	start := time.Now()
	result, err := d.DoMulticast(context.Background(), 9, slp.FuncSrvRqst, testGroup, build)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, result.Replies, 1)
	require.Equal(t, responder, result.Replies[0].From)
	require.GreaterOrEqual(t, elapsed, cfg.MCMaxWait, "convergence runs until the cumulative wait reaches MCMaxWait")
}

func TestDoMulticastExhaustsBudgetWithNoReplies(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	cfg := slp.DispatchConfig{
		MCInitialWait: 10 * time.Millisecond,
		MCMaxWait:     40 * time.Millisecond,
		UnicastRetry:  time.Second,
		MaxPDUSize:    1400,
	}
	d := slp.NewDispatcher(sender, cfg, nil)

	build := func(prList string) ([]byte, error) { return []byte("req"), nil }
	result, err := d.DoMulticast(context.Background(), 3, slp.FuncSrvRqst, testGroup, build)
	require.NoError(t, err)
	require.Empty(t, result.Replies)

	_, multicasts := sender.sendCount()
	require.GreaterOrEqual(t, multicasts, 1)
}

func TestDeliverDropsUnknownXID(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := slp.NewDispatcher(sender, slp.DefaultDispatchConfig(), nil)

	// No in-flight request registered for this xid; Deliver must not panic
	// or block.
	d.Deliver(testPeer, slp.Message{Header: slp.Header{XID: 999}})
}
