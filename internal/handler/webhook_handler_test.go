package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/academy-billing-api/internal/dto"
)

type fakeWebhookSrv struct {
	acknowledged bool
	err          error
	received     dto.PaymentNotification
	calls        int
}

func (f *fakeWebhookSrv) Handle(_ context.Context, notification dto.PaymentNotification) (bool, error) {
	f.calls++
	f.received = notification
	return f.acknowledged, f.err
}

func postWebhook(handler *WebhookHandler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Receive(c)
	return rec
}

func TestWebhookHandlerAcknowledges(t *testing.T) {
	srv := &fakeWebhookSrv{acknowledged: true}
	handler := NewWebhookHandler(srv)

	rec := postWebhook(handler, `{"transaction_id":"mid-1","order_id":"inv-1","transaction_status":"settlement"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.calls)
	assert.Equal(t, "mid-1", srv.received.TransactionID)
}

func TestWebhookHandlerTransientFailureIsRetriable(t *testing.T) {
	srv := &fakeWebhookSrv{err: errors.New("provider timeout")}
	handler := NewWebhookHandler(srv)

	rec := postWebhook(handler, `{"transaction_id":"mid-1"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookHandlerAcknowledgesMalformedBody(t *testing.T) {
	srv := &fakeWebhookSrv{acknowledged: true}
	handler := NewWebhookHandler(srv)

	rec := postWebhook(handler, `{not json`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, srv.calls)
}
