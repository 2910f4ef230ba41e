package p2p

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

type channelInternal struct {
	In    chan Envelope
	Out   chan Envelope
	Error chan PeerError
}

func testChannel(size int) (*channelInternal, *Channel) {
	in := &channelInternal{
		In:    make(chan Envelope, size),
		Out:   make(chan Envelope, size),
		Error: make(chan PeerError, size),
	}
	return in, NewChannel(in.In, in.Out, in.Error)
}

func TestChannel(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	bctx, bcancel := context.WithCancel(context.Background())
	defer bcancel()

	testCases := []struct {
		Name string
		Case func(context.Context, *testing.T)
	}{
		{
			Name: "Send",
			Case: func(ctx context.Context, t *testing.T) {
				ins, ch := testChannel(1)
				require.NoError(t, ch.Send(ctx, Envelope{From: "kip", To: "merlin"}))

				res, ok := <-ins.Out
				require.True(t, ok)
				require.EqualValues(t, "kip", res.From)
				require.EqualValues(t, "merlin", res.To)
			},
		},
		{
			Name: "SendError",
			Case: func(ctx context.Context, t *testing.T) {
				ins, ch := testChannel(1)
				require.NoError(t, ch.SendError(ctx, PeerError{NodeID: "kip", Err: errors.New("merlin")}))

				res, ok := <-ins.Error
				require.True(t, ok)
				require.EqualValues(t, "kip", res.NodeID)
				require.EqualValues(t, "merlin", res.Err.Error())
			},
		},
		{
			Name: "SendWithCanceledContext",
			Case: func(ctx context.Context, t *testing.T) {
				_, ch := testChannel(0)
				cctx, ccancel := context.WithCancel(ctx)
				ccancel()
				require.Error(t, ch.Send(cctx, Envelope{From: "kip", To: "merlin"}))
			},
		},
		{
			Name: "SendOnClosedChannel",
			Case: func(ctx context.Context, t *testing.T) {
				_, ch := testChannel(0)
				ch.Close()
				require.ErrorIs(t, ch.Send(ctx, Envelope{To: "merlin"}), ErrChannelClosed)
				require.ErrorIs(t, ch.SendError(ctx, PeerError{NodeID: "kip", Err: errors.New("x")}), ErrChannelClosed)
			},
		},
		{
			Name: "ReceiveEmptyIteratorBlocks",
			Case: func(ctx context.Context, t *testing.T) {
				_, ch := testChannel(1)
				iter := ch.Receive(ctx)
				require.NotNil(t, iter)
				out := make(chan bool)
				go func() {
					defer close(out)
					select {
					case <-ctx.Done():
					case out <- iter.Next(ctx):
					}
				}()
				select {
				case <-time.After(10 * time.Millisecond):
				case <-out:
					require.Fail(t, "iterator should not advance")
				}
				require.Nil(t, iter.Envelope())
			},
		},
		{
			Name: "ReceiveWithData",
			Case: func(ctx context.Context, t *testing.T) {
				ins, ch := testChannel(1)
				ins.In <- Envelope{From: "kip", To: "merlin"}
				iter := ch.Receive(ctx)
				require.NotNil(t, iter)
				require.True(t, iter.Next(ctx))

				res := iter.Envelope()
				require.EqualValues(t, "kip", res.From)
				require.EqualValues(t, "merlin", res.To)
			},
		},
		{
			Name: "ReceiveStopsWhenClosed",
			Case: func(ctx context.Context, t *testing.T) {
				_, ch := testChannel(1)
				iter := ch.Receive(ctx)
				ch.Close()
				require.False(t, iter.Next(ctx))
				require.Nil(t, iter.Envelope())
			},
		},
		{
			Name: "IteratorCanceledAfterFirstUseBecomesNil",
			Case: func(ctx context.Context, t *testing.T) {
				ins, ch := testChannel(1)

				ins.In <- Envelope{From: "kip", To: "merlin"}
				iter := ch.Receive(ctx)
				require.NotNil(t, iter)

				require.True(t, iter.Next(ctx))

				res := iter.Envelope()
				require.EqualValues(t, "kip", res.From)

				cctx, ccancel := context.WithCancel(ctx)
				ccancel()

				require.False(t, iter.Next(cctx))
				require.Nil(t, iter.Envelope())
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Cleanup(leaktest.Check(t))

			ctx, cancel := context.WithCancel(bctx)
			defer cancel()

			tc.Case(ctx, t)
		})
	}
}
