package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	reqs []services.DispatchRequest
}

func (s *recordingSender) Send(_ context.Context, req services.DispatchRequest) ([]services.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if req.TemplateID == "panic" {
		panic("boom")
	}
	return nil, nil
}

func TestAsyncNotifierDrainsOnStop(t *testing.T) {
	s := &recordingSender{}
	n := services.NewAsyncNotifier(s, 2, 16)
	n.Start()

	n.Notify(t.Context(), services.NotifyRequest{UserID: "ana", TemplateID: "panic"})
	for i := 0; i < 5; i++ {
		n.Notify(t.Context(), services.NotifyRequest{UserID: "ana", TemplateID: templates.TierUpgrade})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Stop(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.reqs, 6)
	for _, r := range s.reqs {
		assert.Equal(t, "ana", r.Target.UserID)
	}

	// Requests after Stop are dropped.
	n.Notify(t.Context(), services.NotifyRequest{UserID: "ben"})
}
