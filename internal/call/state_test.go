package call

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNext_Transitions(t *testing.T) {
	cases := []struct {
		from State
		trig trigger
		want State
		err  error
	}{
		{Idle, trigStart, Acquiring, nil},
		{Acquiring, trigMediaReady, Offering, nil},
		{Offering, trigOfferSent, Offering, nil},
		{Offering, trigRemoteAnswer, Connecting, nil},
		{Connecting, trigPeerConnected, Connected, nil},
		{Idle, trigIncoming, Ringing, nil},
		{Ringing, trigAccept, Answering, nil},
		{Answering, trigAnswerSent, Connecting, nil},
		{Ringing, trigReject, Idle, nil},
		{Connected, trigTeardown, Ending, nil},
		{Acquiring, trigTeardown, Ending, nil},
		{Ending, trigReleased, Idle, nil},

		{Offering, trigStart, Offering, ErrConcurrentCall},
		{Connected, trigIncoming, Connected, ErrConcurrentCall},
		{Offering, trigAccept, Offering, ErrConcurrentCall},
		{Idle, trigAccept, Idle, ErrNoIncomingCall},
		{Answering, trigReject, Answering, ErrNoIncomingCall},
		{Idle, trigTeardown, Idle, errAlreadyIdle},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"/"+tc.trig.String(), func(t *testing.T) {
			req := require.New(t)
			got, err := next(tc.from, tc.trig)
			req.Equal(tc.want, got)
			if tc.err == nil {
				req.NoError(err)
			} else {
				req.ErrorIs(err, tc.err)
			}
		})
	}
}

func TestNext_UnknownEdge(t *testing.T) {
	req := require.New(t)

	got, err := next(Idle, trigPeerConnected)

	var te *TransitionError
	req.ErrorAs(err, &te)
	req.Equal(Idle, te.From)
	req.Equal(Idle, got)
}

func TestNext_TeardownFromEveryBusyState(t *testing.T) {
	req := require.New(t)
	for s := Acquiring; s <= Ending; s++ {
		got, err := next(s, trigTeardown)
		req.NoError(err)
		req.Equal(Ending, got)
	}
}
