package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/gateway"
	"coursepay/internal/infrastructure/lock"
	"coursepay/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic: config.KafkaTopicConfig{
				CoursePurchased: "course.purchased",
				TopUpPaid:       "topup.paid",
			},
		},
		Gateway:  config.GatewayConfig{Timeout: time.Second},
		Business: config.BusinessConfig{MinTopUpAmount: 10000},
	}
}

// noLocks 不加锁，用于验证仅靠数据库约束的正确性
type noLocks struct{}

func (noLocks) NewMutex(string) lock.Mutex { return noopMutex{} }

type noopMutex struct{}

func (noopMutex) Lock(context.Context) error   { return nil }
func (noopMutex) Unlock(context.Context) error { return nil }

// fakeGateway 可编程的网关替身
type fakeGateway struct {
	mu        sync.Mutex
	status    string
	createErr error
	getErr    error
	created   []*gateway.CreateInvoiceRequest
	gets      int
}

func (g *fakeGateway) CreateInvoice(_ context.Context, req *gateway.CreateInvoiceRequest) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	return &gateway.Invoice{
		ID:         "inv-" + req.ExternalID,
		ExternalID: req.ExternalID,
		Status:     gateway.InvoiceStatusPending,
		InvoiceURL: "https://checkout.example/" + req.ExternalID,
	}, nil
}

func (g *fakeGateway) GetInvoice(_ context.Context, externalID string) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	if g.getErr != nil {
		return nil, g.getErr
	}
	return &gateway.Invoice{ExternalID: externalID, Status: g.status}, nil
}

func (g *fakeGateway) setStatus(status string) {
	g.mu.Lock()
	g.status = status
	g.mu.Unlock()
}

func (g *fakeGateway) getCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gets
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (n *recordingNotifier) TopUpCredited(_ context.Context, _ *model.User, _ *model.TopUp, balance int64) error {
	n.mu.Lock()
	n.calls = append(n.calls, balance)
	n.mu.Unlock()
	return nil
}

func jsonDecode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
