package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unite-defi/swapd/internal/core/application"
	"github.com/unite-defi/swapd/internal/core/domain"
)

type swapHandler struct {
	appSvc *application.Service
}

func newSwapHandler(appSvc *application.Service) *swapHandler {
	return &swapHandler{appSvc}
}

type initiateRequest struct {
	FromAsset      string `json:"fromAsset" binding:"required"`
	ToAsset        string `json:"toAsset" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	EvmBeneficiary string `json:"evmBeneficiary" binding:"required"`
	BtcReceiverPub string `json:"btcReceiverPub" binding:"required"`
	BtcSenderPub   string `json:"btcSenderPub" binding:"required"`
}

type settleRequest struct {
	BtcDestination string `json:"btcDestination"`
}

type legResponse struct {
	Id          string `json:"id"`
	Chain       string `json:"chain"`
	SecretHash  string `json:"secretHash"`
	Timelock    int64  `json:"timelock"`
	Amount      string `json:"amount"`
	Funder      string `json:"funder"`
	Beneficiary string `json:"beneficiary"`
	Status      string `json:"status"`
	Address     string `json:"address,omitempty"`
	FundingTxId string `json:"fundingTxId,omitempty"`
	RedeemTxId  string `json:"redeemTxId,omitempty"`
	RefundTxId  string `json:"refundTxId,omitempty"`
}

type sessionResponse struct {
	Id           string      `json:"id"`
	SecretHash   string      `json:"secretHash"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	InitiatorLeg legResponse `json:"initiatorLeg"`
	ResponderLeg legResponse `json:"responderLeg"`
	CreatedAt    int64       `json:"createdAt"`
	UpdatedAt    int64       `json:"updatedAt"`
}

func toLegResponse(leg domain.HTLCLeg) legResponse {
	return legResponse{
		Id:          leg.Id,
		Chain:       string(leg.Chain),
		SecretHash:  leg.SecretHash,
		Timelock:    leg.Timelock,
		Amount:      leg.Amount,
		Funder:      leg.Funder,
		Beneficiary: leg.Beneficiary,
		Status:      leg.Status.String(),
		Address:     leg.Address,
		FundingTxId: leg.FundingTxId,
		RedeemTxId:  leg.RedeemTxId,
		RefundTxId:  leg.RefundTxId,
	}
}

func toSessionResponse(session *domain.SwapSession) sessionResponse {
	return sessionResponse{
		Id:           session.Id,
		SecretHash:   session.SecretHash,
		Status:       session.Status.String(),
		ErrorMessage: session.ErrorMessage,
		InitiatorLeg: toLegResponse(session.InitiatorLeg),
		ResponderLeg: toLegResponse(session.ResponderLeg),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

func (h *swapHandler) initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.appSvc.Initiate(c.Request.Context(), application.InitiateParams{
		FromAsset:      req.FromAsset,
		ToAsset:        req.ToAsset,
		Amount:         req.Amount,
		EvmBeneficiary: req.EvmBeneficiary,
		BtcReceiverPub: req.BtcReceiverPub,
		BtcSenderPub:   req.BtcSenderPub,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (h *swapHandler) list(c *gin.Context) {
	sessions, err := h.appSvc.ListSessions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionResponse(&sessions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *swapHandler) get(c *gin.Context) {
	session, err := h.appSvc.GetSessionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (h *swapHandler) awaitFunding(c *gin.Context) {
	session, err := h.appSvc.AwaitResponderFunding(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (h *swapHandler) redeem(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.appSvc.RevealAndRedeem(c.Request.Context(), c.Param("id"), req.BtcDestination)
	if err != nil {
		writeSettlementError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (h *swapHandler) refund(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.appSvc.Refund(c.Request.Context(), c.Param("id"), req.BtcDestination)
	if err != nil {
		writeSettlementError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// streamEvents pushes session progress as server-sent events.
func (h *swapHandler) streamEvents(c *gin.Context) {
	ch := h.appSvc.SubscribeProgress()
	defer h.appSvc.UnsubscribeProgress(ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", gin.H{
				"sessionId": event.SessionId,
				"status":    event.Status.String(),
				"detail":    event.Detail,
				"at":        event.At.Unix(),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var swapErr *domain.SwapError
	if errors.As(err, &swapErr) {
		body["kind"] = swapErr.Kind.String()
		if swapErr.SessionId != "" {
			body["sessionId"] = swapErr.SessionId
		}
		if swapErr.LegId != "" {
			body["legId"] = swapErr.LegId
			body["chain"] = string(swapErr.Chain)
		}

		switch swapErr.Kind {
		case domain.ErrMissingParameters, domain.ErrInvalidTimelockOrdering:
			status = http.StatusBadRequest
		case domain.ErrNotFound:
			status = http.StatusNotFound
		case domain.ErrAlreadySettled, domain.ErrTimelockNotYetExpired,
			domain.ErrSecretMismatch, domain.ErrQuoteExpired:
			status = http.StatusConflict
		case domain.ErrTimeout:
			status = http.StatusRequestTimeout
		case domain.ErrInsufficientFunds:
			status = http.StatusPaymentRequired
		case domain.ErrPartialSettlementRisk:
			// surfaced distinctly so callers cannot mistake it for a
			// generic failure
			status = http.StatusInternalServerError
			body["alarm"] = true
		}
	}

	c.JSON(status, body)
}

// writeSettlementError includes the latest session view when available, so
// the caller can resume from state rather than from the failed call.
func writeSettlementError(c *gin.Context, session *domain.SwapSession, err error) {
	if session != nil {
		c.Header("X-Session-Status", session.Status.String())
	}
	writeError(c, err)
}
