// Package databus publishes bridge events for downstream consumers. Publishing
// is best-effort from the caller's point of view.
package databus

import (
	"encoding/json"
	"time"

	"moff.io/wallet-bridge/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
}

type Publisher interface {
	Publish(e Event) error
	Close() error
}

const (
	TopicStateChanged     = "state_changed"
	TopicProviderSelected = "provider_selected"
	TopicBridgeReady      = "bridge_ready"
)

type envelope struct {
	Type    string      `json:"type"`
	Time    int64       `json:"time"`
	Payload interface{} `json:"payload"`
}

type event struct {
	topic   string
	at      time.Time
	payload interface{}
}

func (e *event) Topic() string { return e.topic }

func (e *event) Serialize() []byte {
	bytes, err := json.Marshal(envelope{Type: e.topic, Time: e.at.UnixMilli(), Payload: e.payload})
	if err != nil {
		log.Errorf("marshal %s event:%v", e.topic, err)
		return nil
	}
	return bytes
}

func newEvent(topic string, payload interface{}) Event {
	return &event{topic: topic, at: time.Now(), payload: payload}
}

// StateChanged carries the raw modal state object as sent by the browser.
func StateChanged(state json.RawMessage) Event {
	return newEvent(TopicStateChanged, state)
}

type ProviderSelection struct {
	Provider interface{} `json:"provider"`
	URL      string      `json:"url"`
}

func ProviderSelected(provider interface{}, url string) Event {
	return newEvent(TopicProviderSelected, ProviderSelection{Provider: provider, URL: url})
}

type BridgeAttachment struct {
	RemoteAddr string `json:"remoteAddr"`
	Origin     string `json:"origin"`
}

// BridgeReady is emitted once a browser page attaches and the modal can take
// commands.
func BridgeReady(remoteAddr, origin string) Event {
	return newEvent(TopicBridgeReady, BridgeAttachment{RemoteAddr: remoteAddr, Origin: origin})
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct{}

func (LogPublisher) Publish(e Event) error {
	log.Infof("databus - topic: %s message: %s", e.Topic(), string(e.Serialize()))
	return nil
}

func (LogPublisher) Close() error { return nil }

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) error { return nil }
func (Discard) Close() error        { return nil }
