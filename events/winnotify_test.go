package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifyWinDelivers(t *testing.T) {
	received := make(chan WinNotification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var note WinNotification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&note))
		received <- note
	}))
	defer server.Close()

	notifier := NewNotifier(time.Second)
	notifier.NotifyWin(server.URL, WinNotification{
		AuctionID:    "auc-1",
		BidID:        "bid-1",
		WinningPrice: 1.91,
		ImpressionID: "imp-1",
	})

	select {
	case note := <-received:
		assert.Equal(t, "auc-1", note.AuctionID)
		assert.Equal(t, "bid-1", note.BidID)
		assert.Equal(t, 1.91, note.WinningPrice)
		assert.Equal(t, "imp-1", note.ImpressionID)
	case <-time.After(2 * time.Second):
		t.Fatal("win notification never arrived")
	}
}

func TestNotifyWinEmptyEndpoint(t *testing.T) {
	notifier := NewNotifier(time.Second)
	// Must not panic or block.
	notifier.NotifyWin("", WinNotification{AuctionID: "auc-1"})
}

func TestNotifyWinFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewNotifier(time.Second)
	// Fire and forget: the caller never observes the failure.
	notifier.NotifyWin(server.URL, WinNotification{AuctionID: "auc-2"})
	time.Sleep(100 * time.Millisecond)
}
