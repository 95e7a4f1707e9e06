package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/model"
)

func (s *Server) contractRoutes(r chi.Router) {
	api := s.api.Contracts
	crudRoutes[core.ContractRequest, *model.Contract, *model.ContractView](s, r, api, func(req *core.ContractRequest, id string) { req.ID = id })
	r.Post("/{id}/void", s.handleContractVoid)
	r.Post("/{id}/archive", s.handleContractArchive)
	r.Post("/{id}/status", s.handleContractStatus)
	r.Get("/{id}/snapshot", get(s, api.Snapshot))
}

type voidRequest struct {
	Reason string `json:"voidReason"`
}

func (s *Server) handleContractVoid(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if !s.decode(w, r, &req) {
		return
	}
	act(s, func(ctx context.Context, id string) error {
		return s.api.Contracts.Void(ctx, id, req.Reason)
	})(w, r)
}

type archiveRequest struct {
	Status model.ArchivedStatus `json:"archivedStatus"`
}

func (s *Server) handleContractArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if !s.decode(w, r, &req) {
		return
	}
	act(s, func(ctx context.Context, id string) error {
		return s.api.Contracts.Archive(ctx, id, req.Status)
	})(w, r)
}

type statusRequest struct {
	Status model.ContractStatus `json:"status"`
}

func (s *Server) handleContractStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	act(s, func(ctx context.Context, id string) error {
		return s.api.Contracts.ChangeStatus(ctx, id, req.Status)
	})(w, r)
}

func (s *Server) paymentPlanRoutes(r chi.Router) {
	crudRoutes[core.PaymentPlanRequest, *model.PaymentPlan, *model.PaymentPlanView](s, r, s.api.PaymentPlans, func(req *core.PaymentPlanRequest, id string) { req.ID = id })
}

func (s *Server) quotationRoutes(r chi.Router) {
	api := s.api.Quotations
	crudRoutes[core.QuotationRequest, *model.Quotation, *model.QuotationView](s, r, api, func(req *core.QuotationRequest, id string) { req.ID = id })
	r.Post("/batch-approve", s.handleQuotationBatchApprove)
	r.Post("/batch-void", s.handleQuotationBatchVoid)
	r.Post("/{id}/approve", s.handleQuotationApprove)
	r.Post("/{id}/revoke", act(s, api.Revoke))
	r.Post("/{id}/void", act(s, api.Void))
	r.Get("/{id}/snapshot", get(s, api.Snapshot))
}

type approveRequest struct {
	IDs            []string             `json:"ids,omitempty"`
	ApprovalStatus model.ApprovalStatus `json:"approvalStatus"`
}

func (s *Server) handleQuotationApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	act(s, func(ctx context.Context, id string) error {
		return s.api.Quotations.Approve(ctx, id, req.ApprovalStatus)
	})(w, r)
}

func (s *Server) handleQuotationBatchApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.batchResult(w, r)(s.api.Quotations.BatchApprove(r.Context(), req.IDs, req.ApprovalStatus))
}

func (s *Server) handleQuotationBatchVoid(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.batchResult(w, r)(s.api.Quotations.BatchVoid(r.Context(), req.IDs))
}

// batchResult writes the outcome of a batch operation.
func (s *Server) batchResult(w http.ResponseWriter, r *http.Request) func(model.BatchResult, error) {
	return func(res model.BatchResult, err error) {
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) priceRoutes(r chi.Router) {
	crudRoutes[core.PriceRequest, *model.ProductPrice, *model.ProductPriceView](s, r, s.api.Prices, func(req *core.PriceRequest, id string) { req.ID = id })
	r.Post("/batch-update", s.handlePriceBatchUpdate)
	r.Post("/pos", s.handlePricePos)
	r.Post("/import/check", importFile(s, s.api.Prices.ImportCheck))
	r.Post("/import", importFile(s, s.api.Prices.Import))
}

func (s *Server) handlePriceBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req core.BatchUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.api.Prices.BatchUpdate(r.Context(), req); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePricePos(w http.ResponseWriter, r *http.Request) {
	var req core.PosRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.api.Prices.EditPos(r.Context(), req); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
