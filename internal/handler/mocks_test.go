package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/middleware"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
)

// MockLeadService is a mock implementation of LeadService for testing
type MockLeadService struct {
	CreateLeadFunc     func(ctx context.Context, actor domain.Actor, sub *domain.LeadSubmission) (*domain.Lead, error)
	GetLeadFunc        func(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)
	ListLeadsFunc      func(ctx context.Context, actor domain.Actor, status domain.LeadStatus) ([]*domain.Lead, error)
	TransitionFunc     func(ctx context.Context, actor domain.Actor, id string, to domain.LeadStatus) (*domain.Lead, error)
	RejectLeadFunc     func(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Lead, error)
	ConvertToEventFunc func(ctx context.Context, actor domain.Actor, id string) (*service.ConversionResult, error)
}

func (m *MockLeadService) CreateLead(ctx context.Context, actor domain.Actor, sub *domain.LeadSubmission) (*domain.Lead, error) {
	if m.CreateLeadFunc != nil {
		return m.CreateLeadFunc(ctx, actor, sub)
	}
	return nil, nil
}

func (m *MockLeadService) GetLead(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	if m.GetLeadFunc != nil {
		return m.GetLeadFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *MockLeadService) ListLeads(ctx context.Context, actor domain.Actor, status domain.LeadStatus) ([]*domain.Lead, error) {
	if m.ListLeadsFunc != nil {
		return m.ListLeadsFunc(ctx, actor, status)
	}
	return nil, nil
}

func (m *MockLeadService) transition(ctx context.Context, actor domain.Actor, id string, to domain.LeadStatus) (*domain.Lead, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, actor, id, to)
	}
	return &domain.Lead{ID: id, Status: to}, nil
}

func (m *MockLeadService) MarkContacted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	return m.transition(ctx, actor, id, domain.LeadStatusContacted)
}

func (m *MockLeadService) SendQuote(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	return m.transition(ctx, actor, id, domain.LeadStatusQuoteSent)
}

func (m *MockLeadService) MarkAccepted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	return m.transition(ctx, actor, id, domain.LeadStatusAccepted)
}

func (m *MockLeadService) RejectLead(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Lead, error) {
	if m.RejectLeadFunc != nil {
		return m.RejectLeadFunc(ctx, actor, id, reason)
	}
	return nil, nil
}

func (m *MockLeadService) ConvertToEvent(ctx context.Context, actor domain.Actor, id string) (*service.ConversionResult, error) {
	if m.ConvertToEventFunc != nil {
		return m.ConvertToEventFunc(ctx, actor, id)
	}
	return nil, nil
}

// MockEventService is a mock implementation of EventService for testing.
// StepFunc backs every single-step lifecycle operation.
type MockEventService struct {
	GetEventFunc            func(ctx context.Context, actor domain.Actor, id string) (*service.EventView, error)
	ListEventsFunc          func(ctx context.Context, actor domain.Actor, status domain.EventStatus) ([]*service.EventView, error)
	StepFunc                func(ctx context.Context, actor domain.Actor, op, id string) (*domain.Event, error)
	CreateInvoiceFunc       func(ctx context.Context, actor domain.Actor, id string, in *service.InvoiceInput) (*service.BillingResult, error)
	GetActivePaymentFunc    func(ctx context.Context, actor domain.Actor, id string) (*domain.Payment, error)
	SimulateDepositPaidFunc func(ctx context.Context, actor domain.Actor, id string) (*service.BillingResult, error)
	RecordPaymentFunc       func(ctx context.Context, actor domain.Actor, id string, in *service.PaymentInput) (*service.BillingResult, error)
}

func (m *MockEventService) GetEvent(ctx context.Context, actor domain.Actor, id string) (*service.EventView, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *MockEventService) ListEvents(ctx context.Context, actor domain.Actor, status domain.EventStatus) ([]*service.EventView, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, actor, status)
	}
	return nil, nil
}

func (m *MockEventService) step(ctx context.Context, actor domain.Actor, op, id string) (*domain.Event, error) {
	if m.StepFunc != nil {
		return m.StepFunc(ctx, actor, op, id)
	}
	return &domain.Event{ID: id}, nil
}

func (m *MockEventService) SendContract(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "send_contract", id)
}

func (m *MockEventService) MarkContractSigned(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "contract_signed", id)
}

func (m *MockEventService) CreateInvoice(ctx context.Context, actor domain.Actor, id string, in *service.InvoiceInput) (*service.BillingResult, error) {
	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, actor, id, in)
	}
	return nil, nil
}

func (m *MockEventService) GetActivePayment(ctx context.Context, actor domain.Actor, id string) (*domain.Payment, error) {
	if m.GetActivePaymentFunc != nil {
		return m.GetActivePaymentFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *MockEventService) SimulateDepositPaid(ctx context.Context, actor domain.Actor, id string) (*service.BillingResult, error) {
	if m.SimulateDepositPaidFunc != nil {
		return m.SimulateDepositPaidFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *MockEventService) RecordPayment(ctx context.Context, actor domain.Actor, id string, in *service.PaymentInput) (*service.BillingResult, error) {
	if m.RecordPaymentFunc != nil {
		return m.RecordPaymentFunc(ctx, actor, id, in)
	}
	return nil, nil
}

func (m *MockEventService) MarkDepositDue(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "deposit_due", id)
}

func (m *MockEventService) CompleteEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "complete", id)
}

func (m *MockEventService) CancelEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "cancel", id)
}

func (m *MockEventService) PauseUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "uploads_pause", id)
}

func (m *MockEventService) ResumeUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "uploads_resume", id)
}

func (m *MockEventService) ExpireUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	return m.step(ctx, actor, "uploads_expire", id)
}

// MockAddonService is a mock implementation of AddonService for testing
type MockAddonService struct {
	RequestAddonsFunc func(ctx context.Context, actor domain.Actor, eventID string, names []string) ([]*domain.RequestedService, error)
	ApproveFunc       func(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.RequestedService, error)
	RejectFunc        func(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.RequestedService, error)
	ListFunc          func(ctx context.Context, actor domain.Actor, eventID string, status domain.RequestedServiceStatus) ([]*domain.RequestedService, error)
}

func (m *MockAddonService) RequestAddons(ctx context.Context, actor domain.Actor, eventID string, names []string) ([]*domain.RequestedService, error) {
	if m.RequestAddonsFunc != nil {
		return m.RequestAddonsFunc(ctx, actor, eventID, names)
	}
	return nil, nil
}

func (m *MockAddonService) ApproveServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.RequestedService, error) {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, actor, eventID, requestID)
	}
	return nil, nil
}

func (m *MockAddonService) RejectServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.RequestedService, error) {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, actor, eventID, requestID, reason)
	}
	return nil, nil
}

func (m *MockAddonService) ListServiceRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.RequestedServiceStatus) ([]*domain.RequestedService, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, actor, eventID, status)
	}
	return nil, nil
}

// MockChangeRequestService is a mock implementation of ChangeRequestService for testing
type MockChangeRequestService struct {
	CreateFunc  func(ctx context.Context, actor domain.Actor, eventID string, patch map[string]interface{}) (*domain.ChangeRequest, error)
	ApproveFunc func(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.Event, error)
	RejectFunc  func(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.ChangeRequest, error)
	ListFunc    func(ctx context.Context, actor domain.Actor, eventID string, status domain.ChangeRequestStatus) ([]*domain.ChangeRequest, error)
}

func (m *MockChangeRequestService) CreateChangeRequest(ctx context.Context, actor domain.Actor, eventID string, patch map[string]interface{}) (*domain.ChangeRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, actor, eventID, patch)
	}
	return nil, nil
}

func (m *MockChangeRequestService) ApproveChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.Event, error) {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, actor, eventID, requestID)
	}
	return nil, nil
}

func (m *MockChangeRequestService) RejectChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.ChangeRequest, error) {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, actor, eventID, requestID, reason)
	}
	return nil, nil
}

func (m *MockChangeRequestService) ListChangeRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.ChangeRequestStatus) ([]*domain.ChangeRequest, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, actor, eventID, status)
	}
	return nil, nil
}

// MockTimelineService is a mock implementation of TimelineService for testing
type MockTimelineService struct {
	AddFunc  func(ctx context.Context, actor domain.Actor, eventID string, in *service.TimelineItemInput) (*domain.TimelineItem, error)
	ListFunc func(ctx context.Context, actor domain.Actor, eventID string) ([]*domain.TimelineItem, error)
	SyncFunc func(ctx context.Context, actor domain.Actor, eventID, itemID string) ([]*domain.TimelineItem, error)
}

func (m *MockTimelineService) AddTimelineItem(ctx context.Context, actor domain.Actor, eventID string, in *service.TimelineItemInput) (*domain.TimelineItem, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, actor, eventID, in)
	}
	return nil, nil
}

func (m *MockTimelineService) ListTimeline(ctx context.Context, actor domain.Actor, eventID string) ([]*domain.TimelineItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, actor, eventID)
	}
	return nil, nil
}

func (m *MockTimelineService) ToggleSyncToGoogle(ctx context.Context, actor domain.Actor, eventID, itemID string) ([]*domain.TimelineItem, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, actor, eventID, itemID)
	}
	return nil, nil
}

// MockGalleryService is a mock implementation of GalleryService for testing
type MockGalleryService struct {
	UploadGuestFileFunc func(ctx context.Context, token string, blob *service.Blob) (*domain.FileRecord, error)
	AttachFileFunc      func(ctx context.Context, actor domain.Actor, eventID string, kind domain.FileKind, blob *service.Blob) (*domain.FileRecord, error)
	ListGalleryFunc     func(ctx context.Context, actor domain.Actor, eventID string) (*service.GalleryView, error)
}

func (m *MockGalleryService) UploadGuestFile(ctx context.Context, token string, blob *service.Blob) (*domain.FileRecord, error) {
	if m.UploadGuestFileFunc != nil {
		return m.UploadGuestFileFunc(ctx, token, blob)
	}
	return nil, nil
}

func (m *MockGalleryService) AttachFile(ctx context.Context, actor domain.Actor, eventID string, kind domain.FileKind, blob *service.Blob) (*domain.FileRecord, error) {
	if m.AttachFileFunc != nil {
		return m.AttachFileFunc(ctx, actor, eventID, kind, blob)
	}
	return nil, nil
}

func (m *MockGalleryService) ListGallery(ctx context.Context, actor domain.Actor, eventID string) (*service.GalleryView, error) {
	if m.ListGalleryFunc != nil {
		return m.ListGalleryFunc(ctx, actor, eventID)
	}
	return nil, nil
}

var (
	testAdmin = domain.Actor{Role: domain.RoleAdmin, UserID: "admin-1", Email: "ops@urevent360.com"}
	testHost  = domain.Actor{Role: domain.RoleHost, UserID: "host-1", Email: "maria@example.com"}
)

// newTestRouter returns a router that authenticates every request as actor
func newTestRouter(actor domain.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if actor.Role != domain.RoleGuest {
			c.Set(middleware.ContextKeyUserID, actor.UserID)
			c.Set(middleware.ContextKeyEmail, actor.Email)
		}
		c.Set(middleware.ContextKeyRole, string(actor.Role))
		c.Next()
	})
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp response.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}
