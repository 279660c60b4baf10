package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang/glog"
)

// WinNotification is the message emitted to the winning campaign's owner endpoint
// after a committed win.
type WinNotification struct {
	AuctionID    string  `json:"auction_id"`
	BidID        string  `json:"bid_id"`
	WinningPrice float64 `json:"winning_price"`
	ImpressionID string  `json:"impression_id"`
}

// Notifier delivers win notifications best-effort: fire and forget, off the request
// path. Delivery failures are logged and never retried here; retry policy, if any,
// belongs to an external notifier collaborator.
type Notifier struct {
	client *http.Client
}

func NewNotifier(timeout time.Duration) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: timeout},
	}
}

// NotifyWin posts the notification to the owner endpoint on its own goroutine and
// returns immediately. An empty endpoint drops the notification silently; campaigns
// without an owner endpoint are valid.
func (n *Notifier) NotifyWin(endpoint string, note WinNotification) {
	if endpoint == "" {
		return
	}
	go n.send(endpoint, note)
}

func (n *Notifier) send(endpoint string, note WinNotification) {
	payload, err := json.Marshal(note)
	if err != nil {
		glog.Errorf("failed to marshal win notification for auction %s: %v", note.AuctionID, err)
		return
	}

	resp, err := n.client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		glog.Errorf("win notification for auction %s to %s failed: %v", note.AuctionID, endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		glog.Errorf("win notification for auction %s to %s returned status %d", note.AuctionID, endpoint, resp.StatusCode)
	}
}
