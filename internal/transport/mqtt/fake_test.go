package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is a completed paho token.
type doneToken struct {
	err error
}

// closedChan is shared by all completed tokens.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}()

func (doneToken) Wait() bool { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} { return closedChan }
func (t doneToken) Error() error { return t.err }

// fakeMessage is a received paho message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (fakeMessage) Duplicate() bool { return false }
func (fakeMessage) Qos() byte { return 0 }
func (fakeMessage) Retained() bool { return false }
func (m fakeMessage) Topic() string { return m.topic }
func (fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte { return m.payload }
func (fakeMessage) Ack() {}

// published is a recorded publication.
type published struct {
	topic    string
	retained bool
	payload  []byte
}

// errBroker is returned by the fake when failing is set.
var errBroker = errors.New("broker refused")

// fakeClient implements the parts of paho.Client the package uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	handlers     map[string]paho.MessageHandler
	publications []published
	failing      bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]paho.MessageHandler)}
}

func (f *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		return doneToken{err: errBroker}
	}

	f.handlers[topic] = callback

	return doneToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, topic := range topics {
		delete(f.handlers, topic)
	}

	return doneToken{}
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		return doneToken{err: errBroker}
	}

	data, _ := payload.([]byte)
	f.publications = append(f.publications, published{topic: topic, retained: retained, payload: data})

	return doneToken{}
}

func (f *fakeClient) Disconnect(uint) {}

// deliver hands payload to the handler subscribed to topic. It reports false
// when nothing is subscribed.
func (f *fakeClient) deliver(topic string, payload string) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()

	if !ok {
		return false
	}

	handler(f, fakeMessage{topic: topic, payload: []byte(payload)})

	return true
}

// subscribed reports whether topic has a handler.
func (f *fakeClient) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.handlers[topic]

	return ok
}

// sent returns a copy of the publications.
func (f *fakeClient) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]published(nil), f.publications...)
}

// newTestClient wraps a fake paho client.
func newTestClient() (*Client, *fakeClient) {
	fake := newFakeClient()

	return NewClient(fake, 1, time.Second, Topics{Prefix: "home"}), fake
}
